package llm

import (
	"fmt"

	"paper_rag/internal/config"
)

// Use selects the default model when none is configured.
type Use int

const (
	UseGenerate Use = iota
	UseEmbed
)

// Kind names a provider variant. The aliases "local", "hosted-a" and
// "hosted-b" map to ollama, openai and gemini.
type Kind string

const (
	KindOllama Kind = "ollama"
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
)

func ParseKind(s string) (Kind, error) {
	name, ok := config.ProviderName(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return Kind(name), nil
}

// New builds the provider described by cfg.
func New(cfg config.ProviderConfig, use Use) (Provider, error) {
	kind, err := ParseKind(cfg.Provider)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel(kind, use)
	}

	switch kind {
	case KindOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAI(OpenAIConfig{BaseURL: cfg.URL, APIKey: cfg.APIKey, Model: model, Timeout: cfg.Timeout}), nil
	case KindGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGemini(GeminiConfig{BaseURL: cfg.URL, APIKey: cfg.APIKey, Model: model, Timeout: cfg.Timeout}), nil
	default:
		return NewOllama(OllamaConfig{BaseURL: cfg.URL, Model: model, Timeout: cfg.Timeout}), nil
	}
}

func DefaultModel(kind Kind, use Use) string {
	switch kind {
	case KindOpenAI:
		if use == UseEmbed {
			return DefaultOpenAIEmbedModel
		}
		return DefaultOpenAIModel
	case KindGemini:
		if use == UseEmbed {
			return DefaultGeminiEmbedModel
		}
		return DefaultGeminiModel
	default:
		if use == UseEmbed {
			return DefaultOllamaEmbedModel
		}
		return DefaultOllamaModel
	}
}
