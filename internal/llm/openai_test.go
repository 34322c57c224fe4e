package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)

		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":"echo %s"}}]}`, req.Messages[1].Content)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "key"})
	out, err := o.Complete(context.Background(), "hi", "sys")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out)
}

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Stream(context.Background(), "hi", "")
	require.NoError(t, err)
	text, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestOpenAIEmbedAndRateLimit(t *testing.T) {
	limited := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limited {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"slow down"}`)
			return
		}
		fmt.Fprint(w, `{"data":[{"embedding":[1,0,0.5]}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Model: DefaultOpenAIEmbedModel})

	_, err := o.Embed(context.Background(), "x", PurposeStore)
	assert.ErrorIs(t, err, ErrRateLimited)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, 3*time.Second, httpErr.RetryAfter)

	limited = false
	vec, err := o.Embed(context.Background(), "x", PurposeStore)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0.5}, vec)
}

func TestOpenAIPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gpt-4o-mini" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"id":"gpt-4o-mini"}`)
	}))
	defer srv.Close()

	assert.NoError(t, NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Ping(context.Background()))
	assert.ErrorIs(t, NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Model: "nope"}).Ping(context.Background()), ErrUnavailable)
}
