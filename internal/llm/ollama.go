package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var _ Provider = (*Ollama)(nil)

const (
	DefaultOllamaURL        = "http://localhost:11434"
	DefaultOllamaModel      = "llama3.2"
	DefaultOllamaEmbedModel = "nomic-embed-text"
	DefaultOllamaTimeout    = 120 * time.Second
)

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Ollama talks to a local Ollama server.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}

	return &Ollama{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Complete(ctx context.Context, prompt, system string) (string, error) {
	var out ollamaGenerateResponse
	err := doJSON(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/api/generate", nil,
		ollamaGenerateRequest{Model: o.model, Prompt: prompt, System: system}, &out)
	if err != nil {
		return "", err
	}
	if out.Response == "" {
		return "", ErrEmptyResponse
	}
	return out.Response, nil
}

// Stream reads the newline-delimited JSON objects Ollama emits while
// generating.
func (o *Ollama) Stream(ctx context.Context, prompt, system string) (*Stream, error) {
	resp, err := send(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/api/generate", nil,
		ollamaGenerateRequest{Model: o.model, Prompt: prompt, System: system, Stream: true})
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(resp.Body)
	return NewStream(func() (string, bool, error) {
		var part ollamaGenerateResponse
		if err := dec.Decode(&part); err != nil {
			if errors.Is(err, io.EOF) {
				return "", true, nil
			}
			return "", true, fmt.Errorf("decode stream: %w", err)
		}
		if part.Error != "" {
			return "", true, fmt.Errorf("ollama stream: %s", part.Error)
		}
		return part.Response, part.Done, nil
	}, resp.Body), nil
}

func (o *Ollama) Chat(ctx context.Context, messages []Message) (string, error) {
	req := ollamaChatRequest{Model: o.model, Messages: make([]ollamaMessage, len(messages))}
	for i, m := range messages {
		req.Messages[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	var out ollamaChatResponse
	if err := doJSON(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/api/chat", nil, req, &out); err != nil {
		return "", err
	}
	if out.Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Message.Content, nil
}

// Embed ignores purpose; Ollama embedding models are symmetric.
func (o *Ollama) Embed(ctx context.Context, text string, _ Purpose) ([]float32, error) {
	var out ollamaEmbeddingResponse
	err := doJSON(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/api/embeddings", nil,
		ollamaEmbeddingRequest{Model: o.model, Prompt: text}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	return toFloat32(out.Embedding), nil
}

// Ping checks the server and that the configured model is installed.
func (o *Ollama) Ping(ctx context.Context) error {
	has, err := o.HasModel(ctx)
	if err != nil {
		return fmt.Errorf("%w: ollama at %s: %v", ErrUnavailable, o.baseURL, err)
	}
	if !has {
		return fmt.Errorf("%w: ollama model %s is not installed", ErrUnavailable, o.model)
	}
	return nil
}

func (o *Ollama) HasModel(ctx context.Context) (bool, error) {
	var tags ollamaTagsResponse
	if err := doJSON(ctx, o.client, o.Name(), http.MethodGet, o.baseURL+"/api/tags", nil, nil, &tags); err != nil {
		return false, err
	}

	for _, m := range tags.Models {
		for _, name := range []string{m.Name, m.Model} {
			if name == o.model || strings.TrimSuffix(name, ":latest") == o.model {
				return true, nil
			}
		}
	}
	return false, nil
}

// EnsureModel pulls the configured model when the server does not have it.
func (o *Ollama) EnsureModel(ctx context.Context) error {
	has, err := o.HasModel(ctx)
	if err != nil {
		return fmt.Errorf("%w: ollama at %s: %v", ErrUnavailable, o.baseURL, err)
	}
	if has {
		return nil
	}

	pull := struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}{Name: o.model}

	client := &http.Client{}
	if err := doJSON(ctx, client, o.Name(), http.MethodPost, o.baseURL+"/api/pull", nil, pull, nil); err != nil {
		return fmt.Errorf("pull model %s: %w", o.model, err)
	}
	return nil
}
