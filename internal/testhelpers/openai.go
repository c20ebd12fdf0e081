package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
)

// FakeOpenAI is an httptest server speaking the subset of the OpenAI API used by the application.
type FakeOpenAI struct {
	*httptest.Server

	mu       sync.Mutex
	respond  func(request openai.ChatCompletionRequest) (string, int)
	requests []openai.ChatCompletionRequest
}

// FakeSpeech is the body returned for speech synthesis requests.
var FakeSpeech = []byte("ID3-fake-mp3")

// NewFakeOpenAI starts a fake API. respond returns the assistant content and the HTTP status for each chat
// completion request. The server is closed when the test finishes.
func NewFakeOpenAI(t *testing.T, respond func(request openai.ChatCompletionRequest) (string, int)) *FakeOpenAI {
	t.Helper()
	fake := &FakeOpenAI{respond: respond}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", fake.chatCompletion)
	mux.HandleFunc("POST /v1/audio/speech", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(FakeSpeech)
	})
	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Close)
	return fake
}

// BaseURL is the value for the client's base URL configuration.
func (f *FakeOpenAI) BaseURL() string {
	return f.URL + "/v1"
}

// Requests returns the chat completion requests received so far.
func (f *FakeOpenAI) Requests() []openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), f.requests...)
}

func (f *FakeOpenAI) chatCompletion(w http.ResponseWriter, r *http.Request) {
	var request openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()

	content, status := f.respond(request)
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"fake failure","type":"server_error"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ //nolint:exhaustruct // only choices matter
		ID:    "chatcmpl-fake",
		Model: request.Model,
		Choices: []openai.ChatCompletionChoice{{ //nolint:exhaustruct // only message matters
			Index:   0,
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	})
}
