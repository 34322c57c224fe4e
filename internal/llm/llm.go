// Package llm defines the capabilities the pipeline needs from a language
// model backend and provides the concrete backends.
package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable     = errors.New("llm provider unavailable")
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrEmptyResponse   = errors.New("empty response from llm provider")
	ErrRateLimited     = errors.New("rate limited")
)

// Purpose tells embedding backends whether a text is indexed or queried.
type Purpose int

const (
	PurposeStore Purpose = iota
	PurposeQuery
)

func (p Purpose) String() string {
	if p == PurposeQuery {
		return "query"
	}
	return "store"
}

// Role of a chat message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Provider is the closed capability set every backend implements.
type Provider interface {
	// Name is the provider kind, e.g. "ollama".
	Name() string
	Model() string

	// Complete returns a whole completion for prompt under an optional
	// system prompt.
	Complete(ctx context.Context, prompt, system string) (string, error)

	// Stream starts a streaming completion. The returned stream must be
	// drained or closed by exactly one consumer.
	Stream(ctx context.Context, prompt, system string) (*Stream, error)

	// Chat sends a full conversation and returns the assistant reply.
	Chat(ctx context.Context, messages []Message) (string, error)

	Embed(ctx context.Context, text string, purpose Purpose) ([]float32, error)

	// Ping checks that the backend is reachable and the model is usable.
	Ping(ctx context.Context) error
}

// IsAvailable reports whether p answers a ping.
func IsAvailable(ctx context.Context, p Provider) bool {
	return p != nil && p.Ping(ctx) == nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
