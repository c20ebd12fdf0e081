package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/logging"
)

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) (*client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}
	return &client{baseURL: baseURL, http: &http.Client{Jar: jar, Timeout: 30 * time.Second}}, nil //nolint:mnd // generation may be slow
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode body")
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request", slog.String("path", path))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return errors.New("unexpected status", slog.String("path", path), slog.Int("status", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response", slog.String("path", path))
}

type questState struct {
	Phase string `json:"phase"`
}

// TestQuest starts and abandons the builtin mystery.
func TestQuest(ctx context.Context, c *client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	if err := c.do(ctx, http.MethodGet, "/api/healthy", nil, nil); err != nil {
		return errors.Wrap(err, "healthy")
	}
	var state questState
	if err := c.do(ctx, http.MethodPost, "/api/quest/start", map[string]any{"dynamic": false}, &state); err != nil {
		return errors.Wrap(err, "start quest")
	}
	if state.Phase != "briefing" {
		return errors.New("quest did not start", slog.String("phase", state.Phase))
	}
	if err := c.do(ctx, http.MethodPost, "/api/quest/reset", nil, &state); err != nil {
		return errors.Wrap(err, "reset quest")
	}
	if state.Phase != "idle" {
		return errors.New("quest did not reset", slog.String("phase", state.Phase))
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		c        *client
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if c, err = newClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestQuest(ctx, c); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing quest", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
