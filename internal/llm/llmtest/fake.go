// Package llmtest provides an in-memory llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"paper_rag/internal/llm"
)

var _ llm.Provider = (*Fake)(nil)

// Fake records calls and answers through the optional hooks. Unset hooks
// fall back to simple deterministic behaviour.
type Fake struct {
	CompleteFunc func(prompt, system string) (string, error)
	StreamFunc   func(prompt, system string) (*llm.Stream, error)
	ChatFunc     func(messages []llm.Message) (string, error)
	EmbedFunc    func(text string, purpose llm.Purpose) ([]float32, error)
	PingErr      error

	mu    sync.Mutex
	calls map[string]int
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) Name() string  { return "fake" }
func (f *Fake) Model() string { return "fake-model" }

func (f *Fake) Complete(_ context.Context, prompt, system string) (string, error) {
	f.record("Complete")
	if f.CompleteFunc != nil {
		return f.CompleteFunc(prompt, system)
	}
	return "completion", nil
}

func (f *Fake) Stream(_ context.Context, prompt, system string) (*llm.Stream, error) {
	f.record("Stream")
	if f.StreamFunc != nil {
		return f.StreamFunc(prompt, system)
	}
	return llm.TextStream("streamed ", "answer"), nil
}

func (f *Fake) Chat(_ context.Context, messages []llm.Message) (string, error) {
	f.record("Chat")
	if f.ChatFunc != nil {
		return f.ChatFunc(messages)
	}
	return "reply: " + messages[len(messages)-1].Content, nil
}

func (f *Fake) Embed(_ context.Context, text string, purpose llm.Purpose) ([]float32, error) {
	f.record("Embed")
	if f.EmbedFunc != nil {
		return f.EmbedFunc(text, purpose)
	}
	return Vector(text), nil
}

func (f *Fake) Ping(context.Context) error {
	f.record("Ping")
	return f.PingErr
}

// Vector is a deterministic letter-frequency embedding, so texts sharing
// words land close to each other.
func Vector(text string) []float32 {
	v := make([]float32, 27)
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z':
			v[r-'a']++
		default:
			v[26] += 0.1
		}
	}
	return v
}
