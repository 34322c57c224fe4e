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

var _ Provider = (*Gemini)(nil)

const (
	DefaultGeminiURL        = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel      = "gemini-2.0-flash"
	DefaultGeminiEmbedModel = "text-embedding-004"
	DefaultGeminiTimeout    = 60 * time.Second
)

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Gemini uses the Generative Language REST API. It is the only backend
// with asymmetric retrieval embeddings.
type Gemini struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultGeminiTimeout
	}

	return &Gemini{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (r geminiGenerateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type geminiEmbedRequest struct {
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

func (g *Gemini) headers() map[string]string {
	return map[string]string{"x-goog-api-key": g.apiKey}
}

func (g *Gemini) endpoint(method string) string {
	return fmt.Sprintf("%s/models/%s:%s", g.baseURL, g.model, method)
}

func (g *Gemini) request(contents []geminiContent, system string) geminiGenerateRequest {
	req := geminiGenerateRequest{Contents: contents}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return req
}

func userContent(prompt string) []geminiContent {
	return []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
}

func (g *Gemini) Complete(ctx context.Context, prompt, system string) (string, error) {
	return g.generate(ctx, g.request(userContent(prompt), system))
}

// Chat maps assistant turns to the "model" role and folds system messages
// into the system instruction.
func (g *Gemini) Chat(ctx context.Context, messages []Message) (string, error) {
	var system []string
	var contents []geminiContent
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	return g.generate(ctx, g.request(contents, strings.Join(system, "\n\n")))
}

func (g *Gemini) generate(ctx context.Context, req geminiGenerateRequest) (string, error) {
	var out geminiGenerateResponse
	if err := doJSON(ctx, g.client, g.Name(), http.MethodPost, g.endpoint("generateContent"), g.headers(), req, &out); err != nil {
		return "", err
	}
	text := out.text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *Gemini) Stream(ctx context.Context, prompt, system string) (*Stream, error) {
	resp, err := send(ctx, g.client, g.Name(), http.MethodPost, g.endpoint("streamGenerateContent")+"?alt=sse",
		g.headers(), g.request(userContent(prompt), system))
	if err != nil {
		return nil, err
	}

	events := newSSEReader(resp.Body)
	return NewStream(func() (string, bool, error) {
		for {
			data, err := events.next()
			if errors.Is(err, io.EOF) {
				return "", true, nil
			}
			if err != nil {
				return "", true, fmt.Errorf("read stream: %w", err)
			}

			var part geminiGenerateResponse
			if err := json.Unmarshal([]byte(data), &part); err != nil {
				return "", true, fmt.Errorf("decode stream: %w", err)
			}
			if text := part.text(); text != "" {
				return text, false, nil
			}
		}
	}, resp.Body), nil
}

// Embed maps purpose onto the retrieval task types.
func (g *Gemini) Embed(ctx context.Context, text string, purpose Purpose) ([]float32, error) {
	task := "RETRIEVAL_DOCUMENT"
	if purpose == PurposeQuery {
		task = "RETRIEVAL_QUERY"
	}

	var out geminiEmbedResponse
	err := doJSON(ctx, g.client, g.Name(), http.MethodPost, g.endpoint("embedContent"), g.headers(),
		geminiEmbedRequest{Content: geminiContent{Parts: []geminiPart{{Text: text}}}, TaskType: task}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Embedding.Values) == 0 {
		return nil, ErrEmptyResponse
	}
	return toFloat32(out.Embedding.Values), nil
}

func (g *Gemini) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/models/%s", g.baseURL, g.model)
	if err := doJSON(ctx, g.client, g.Name(), http.MethodGet, url, g.headers(), nil, nil); err != nil {
		return fmt.Errorf("%w: gemini: %v", ErrUnavailable, err)
	}
	return nil
}
