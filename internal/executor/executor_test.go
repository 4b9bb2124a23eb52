package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basetenlabs/loadbench/internal/adapter"
	"github.com/basetenlabs/loadbench/internal/auth"
	"github.com/basetenlabs/loadbench/internal/model"
)

func TestExecutorDoSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"hi"}}]}`+"\n\n")
		flusher.Flush()
		io.WriteString(w, `data: [DONE]`+"\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	ex := New(Config{
		BaseURL: srv.URL,
		Auth:    auth.StaticProvider("tok-abc"),
		Builder: adapter.OpenAIChatAdapter{Temperature: 0.5},
	})

	resp := ex.Do(context.Background(), model.UserRequest{
		Kind:      model.RequestChat,
		Model:     "test-model",
		Prompt:    "hello",
		MaxTokens: 16,
	})

	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hi", resp.GeneratedText)
	assert.Equal(t, "Bearer tok-abc", gotAuth)
	assert.True(t, resp.HasTTFT())
}

func TestExecutorDoServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	}))
	defer srv.Close()

	ex := New(Config{BaseURL: srv.URL, Builder: adapter.OpenAIChatAdapter{}})
	resp := ex.Do(context.Background(), model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "boom", resp.ErrorMessage)
}

func TestExecutorDoTransportError(t *testing.T) {
	ex := New(Config{BaseURL: "http://127.0.0.1:1", Builder: adapter.OpenAIChatAdapter{}})
	resp := ex.Do(context.Background(), model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"})

	assert.Equal(t, -1, resp.StatusCode)
	assert.NotEmpty(t, resp.ErrorMessage)
}

func TestExecutorDisableStreamingForcesStreamFalse(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"x"}}]}`+"\n\n")
	}))
	defer srv.Close()

	ex := New(Config{
		BaseURL:          srv.URL,
		Builder:          adapter.OpenAIChatAdapter{},
		DisableStreaming: true,
	})
	resp := ex.Do(context.Background(), model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, false, gotBody["stream"])
}
