package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func waitForReady(ctx context.Context, endpoint string) error {
	timeout := 1 * time.Second
	client := http.Client{}
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			endpoint,
			nil,
		); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = client.Do(req); err == nil {
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// testLookupEnv serves an in-memory database on a random port and talks to the given OpenAI endpoint.
func testLookupEnv(openAIBaseURL string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch key {
		case "MISTERIO_ADDR":
			return "localhost:0", true
		case "MISTERIO_SQLITE_URL":
			return ":memory:", true
		case "MISTERIO_GENERATION_TIMEOUT":
			return "2s", true
		case "OPENAI_API_KEY":
			return "test-key", true
		case "OPENAI_BASE_URL":
			return openAIBaseURL, true
		default:
			return "", false
		}
	}
}

type testServer struct {
	url    string
	client http.Client
}

// startTestServer starts the test server, waits for it to be ready, and returns a client with its own cookie jar.
// The server stops when the test finishes.
func startTestServer(t *testing.T, w io.Writer, lookupEnv func(string) (string, bool)) testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// We need to grab the dynamically allocated port from the log output.
	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == "addr" {
				select {
				case addrCh <- a.Value.String():
				default:
				}
			}
			return a
		},
	})))

	failed := make(chan struct{})
	go func() {
		defer close(done)
		if err := run(ctx, logger, lookupEnv); err != nil {
			assert.NoError(t, err)
			close(failed)
		}
	}()
	select {
	case <-failed:
		t.Fatal("server failed to start")
		return testServer{} //nolint:exhaustruct // This is unreachable.
	case addr := <-addrCh:
		serverURL := fmt.Sprintf("http://%s", addr)
		require.NoError(t, waitForReady(ctx, serverURL+"/api/healthy"))
		return testServer{url: serverURL, client: newClient(t)}
	}
}

func newClient(t *testing.T) http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// Do sends a request with an optional JSON body, decodes a JSON response into out when given, and returns the
// status code.
func (s *testServer) Do(t *testing.T, method, urlPath string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, s.url+urlPath, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// Get fetches a URL and returns the response.
func (s *testServer) Get(t *testing.T, urlPath string) *http.Response {
	t.Helper()
	resp, err := s.client.Get(s.url + urlPath)
	require.NoError(t, err)
	return resp
}

// questState mirrors the quest JSON of the API.
type questState struct {
	Phase            string  `json:"phase"`
	IsActive         bool    `json:"isActive"`
	IsLoading        bool    `json:"isLoading"`
	CurrentStepIndex int     `json:"currentStepIndex"`
	CurrentLocation  string  `json:"currentLocation"`
	IsAwaitingTravel bool    `json:"isAwaitingTravel"`
	IsSolved         bool    `json:"isSolved"`
	ShowBriefing     bool    `json:"showBriefing"`
	RewardSaved      bool    `json:"rewardSaved"`
	Objective        *string `json:"objective"`
	Level            string  `json:"level"`
	Case             *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"case"`
}

type chatTurn struct {
	Event string     `json:"event"`
	Clue  string     `json:"clue"`
	Reply string     `json:"reply"`
	Quest questState `json:"quest"`
}

type backpackItems struct {
	Items []struct {
		Collectible struct {
			ID     string `json:"id"`
			NameES string `json:"nameEs"`
		} `json:"collectible"`
		FoundAt time.Time `json:"foundAt"`
	} `json:"items"`
}

func (b backpackItems) ids() []string {
	ids := make([]string, 0, len(b.Items))
	for _, item := range b.Items {
		ids = append(ids, item.Collectible.ID)
	}
	return ids
}
