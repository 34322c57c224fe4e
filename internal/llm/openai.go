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

var _ Provider = (*OpenAI)(nil)

const (
	DefaultOpenAIURL        = "https://api.openai.com/v1"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultOpenAIEmbedModel = "text-embedding-3-small"
	DefaultOpenAITimeout    = 60 * time.Second
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAI speaks the OpenAI-compatible REST API, which also covers most
// hosted gateways.
type OpenAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultOpenAITimeout
	}

	return &OpenAI{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
		Delta   struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) headers() map[string]string {
	if o.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

func buildOpenAIMessages(prompt, system string) []openAIMessage {
	var msgs []openAIMessage
	if system != "" {
		msgs = append(msgs, openAIMessage{Role: RoleSystem, Content: system})
	}
	return append(msgs, openAIMessage{Role: RoleUser, Content: prompt})
}

func (o *OpenAI) Complete(ctx context.Context, prompt, system string) (string, error) {
	return o.chat(ctx, buildOpenAIMessages(prompt, system))
}

func (o *OpenAI) Chat(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]openAIMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openAIMessage{Role: m.Role, Content: m.Content}
	}
	return o.chat(ctx, msgs)
}

func (o *OpenAI) chat(ctx context.Context, msgs []openAIMessage) (string, error) {
	var out openAIChatResponse
	err := doJSON(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/chat/completions", o.headers(),
		openAIChatRequest{Model: o.model, Messages: msgs}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// Stream consumes the server-sent events of a streaming chat completion.
func (o *OpenAI) Stream(ctx context.Context, prompt, system string) (*Stream, error) {
	resp, err := send(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/chat/completions", o.headers(),
		openAIChatRequest{Model: o.model, Messages: buildOpenAIMessages(prompt, system), Stream: true})
	if err != nil {
		return nil, err
	}

	events := newSSEReader(resp.Body)
	return NewStream(func() (string, bool, error) {
		for {
			data, err := events.next()
			if errors.Is(err, io.EOF) || data == "[DONE]" {
				return "", true, nil
			}
			if err != nil {
				return "", true, fmt.Errorf("read stream: %w", err)
			}

			var part openAIChatResponse
			if err := json.Unmarshal([]byte(data), &part); err != nil {
				return "", true, fmt.Errorf("decode stream: %w", err)
			}
			if len(part.Choices) == 0 || part.Choices[0].Delta.Content == "" {
				continue
			}
			return part.Choices[0].Delta.Content, false, nil
		}
	}, resp.Body), nil
}

// Embed ignores purpose; OpenAI embeddings are symmetric.
func (o *OpenAI) Embed(ctx context.Context, text string, _ Purpose) ([]float32, error) {
	var out openAIEmbeddingResponse
	err := doJSON(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/embeddings", o.headers(),
		openAIEmbeddingRequest{Model: o.model, Input: text}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	return toFloat32(out.Data[0].Embedding), nil
}

func (o *OpenAI) Ping(ctx context.Context) error {
	if err := doJSON(ctx, o.client, o.Name(), http.MethodGet, o.baseURL+"/models/"+o.model, o.headers(), nil, nil); err != nil {
		return fmt.Errorf("%w: openai: %v", ErrUnavailable, err)
	}
	return nil
}
