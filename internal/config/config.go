package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	Verbose     bool   `env:"VERBOSE" envDefault:"false"`
	PromptsFile string `env:"PROMPTS_FILE"`
	PullModels  bool   `env:"PULL_MODELS" envDefault:"false"`

	LLM        ProviderConfig   `envPrefix:"LLM_"`
	Embedding  EmbeddingConfig  `envPrefix:"EMBED_"`
	Chunker    ChunkerConfig    `envPrefix:"CHUNK_"`
	Store      StoreConfig      `envPrefix:"STORE_"`
	Translator TranslatorConfig `envPrefix:"TRANSLATE_"`
	Extract    ExtractConfig    `envPrefix:"EXTRACT_"`
	RAG        RAGConfig        `envPrefix:"RAG_"`
}

// ProviderConfig selects one LLM backend. Empty URL and Model fall back
// to the provider defaults.
type ProviderConfig struct {
	Provider string        `env:"PROVIDER" envDefault:"ollama"`
	URL      string        `env:"URL"`
	Model    string        `env:"MODEL"`
	APIKey   string        `env:"API_KEY"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

type EmbeddingConfig struct {
	ProviderConfig
	MaxRetries  int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay  time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
	Concurrency int           `env:"CONCURRENCY" envDefault:"1"`
}

type ChunkerConfig struct {
	MaxSize    int  `env:"MAX_SIZE" envDefault:"1200"`
	MinSize    int  `env:"MIN_SIZE" envDefault:"100"`
	MergeShort bool `env:"MERGE_SHORT" envDefault:"true"`
}

type StoreConfig struct {
	CacheSize int  `env:"CACHE_SIZE" envDefault:"3"`
	Compress  bool `env:"COMPRESS" envDefault:"false"`
	InMemory  bool `env:"IN_MEMORY" envDefault:"false"`
}

type TranslatorConfig struct {
	ProviderConfig
	TargetLanguage  string        `env:"TARGET_LANG" envDefault:"Traditional Chinese"`
	CheckpointEvery int           `env:"CHECKPOINT_EVERY" envDefault:"10"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay      time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
	RequestsPerSec  float64       `env:"RPS" envDefault:"0"`
}

type ExtractConfig struct {
	Command string        `env:"COMMAND" envDefault:"mineru"`
	Method  string        `env:"METHOD" envDefault:"auto"`
	Backend string        `env:"BACKEND" envDefault:"pipeline"`
	Lang    string        `env:"LANG" envDefault:"en"`
	Formula bool          `env:"FORMULA" envDefault:"true"`
	Table   bool          `env:"TABLE" envDefault:"true"`
	Device  string        `env:"DEVICE" envDefault:"cpu"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30m"`

	// Fallback extracts plain text natively when the command is missing.
	Fallback bool `env:"FALLBACK" envDefault:"true"`

	// Concurrency bounds parallel extractions in batch runs.
	Concurrency int `env:"CONCURRENCY" envDefault:"1"`
}

type RAGConfig struct {
	TopK           int     `env:"TOP_K" envDefault:"10"`
	IncludeSources bool    `env:"INCLUDE_SOURCES" envDefault:"true"`
	MinSimilarity  float32 `env:"MIN_SIMILARITY" envDefault:"0"`
}

func Init(cfg interface{}) error {
	return env.Parse(cfg)
}

// Load parses the environment into a fresh Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := Init(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerNames maps the accepted PROVIDER values to provider names.
var providerNames = map[string]string{
	"":         "ollama",
	"ollama":   "ollama",
	"local":    "ollama",
	"openai":   "openai",
	"hosted-a": "openai",
	"gemini":   "gemini",
	"hosted-b": "gemini",
}

// ProviderName resolves a PROVIDER value, aliases included, to ollama,
// openai or gemini.
func ProviderName(s string) (string, bool) {
	name, ok := providerNames[strings.ToLower(strings.TrimSpace(s))]
	return name, ok
}

// Validate reports configuration errors that must stop the process before
// any work is accepted.
func (c *Config) Validate() error {
	var errs []error

	for name, p := range map[string]ProviderConfig{
		"LLM":       c.LLM,
		"EMBED":     c.Embedding.ProviderConfig,
		"TRANSLATE": c.Translator.ProviderConfig,
	} {
		provider, ok := ProviderName(p.Provider)
		if !ok {
			errs = append(errs, fmt.Errorf("%s_PROVIDER %q is not one of ollama, openai, gemini", name, p.Provider))
			continue
		}
		if provider != "ollama" && p.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s_API_KEY is required for provider %q", name, p.Provider))
		}
	}

	if c.Chunker.MaxSize <= 0 {
		errs = append(errs, errors.New("CHUNK_MAX_SIZE must be positive"))
	}
	if c.Chunker.MinSize < 0 || c.Chunker.MinSize >= c.Chunker.MaxSize {
		errs = append(errs, fmt.Errorf("CHUNK_MIN_SIZE must be in [0, %d)", c.Chunker.MaxSize))
	}
	if c.Store.CacheSize < 1 {
		errs = append(errs, errors.New("STORE_CACHE_SIZE must be at least 1"))
	}
	if c.Embedding.MaxRetries < 1 {
		errs = append(errs, errors.New("EMBED_MAX_RETRIES must be at least 1"))
	}
	if c.Translator.CheckpointEvery < 1 {
		errs = append(errs, errors.New("TRANSLATE_CHECKPOINT_EVERY must be at least 1"))
	}
	if c.Translator.MaxRetries < 1 {
		errs = append(errs, errors.New("TRANSLATE_MAX_RETRIES must be at least 1"))
	}
	if c.RAG.TopK < 1 {
		errs = append(errs, errors.New("RAG_TOP_K must be at least 1"))
	}

	return errors.Join(errs...)
}

func (c *Config) VectorDir() string {
	return filepath.Join(c.DataDir, "chroma_db")
}

func (c *Config) TranslatedDir() string {
	return filepath.Join(c.DataDir, "translated_files")
}

func (c *Config) ProgressDir() string {
	return filepath.Join(c.TranslatedDir(), "unfinished_file")
}

func (c *Config) ExtractDir() string {
	return filepath.Join(c.DataDir, "mineru_outputs")
}

func (c *Config) MarkdownDir() string {
	return filepath.Join(c.DataDir, "reconstructed_files")
}

func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.db")
}
