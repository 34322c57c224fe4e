package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"paper_rag/internal/chunker"
	"paper_rag/internal/config"
	"paper_rag/internal/embedding"
	"paper_rag/internal/extract"
	"paper_rag/internal/job"
	"paper_rag/internal/llm"
	"paper_rag/internal/logger"
	"paper_rag/internal/rag"
	"paper_rag/internal/reconstruct"
	"paper_rag/internal/registry"
	"paper_rag/internal/translator"
	"paper_rag/internal/vectorstore"
)

// Deps lets callers replace the backends New would build from config.
// Nil fields are built from the configuration.
type Deps struct {
	Generator  llm.Provider
	Embedder   llm.Provider
	Translator llm.Provider
	Extractor  extract.Extractor
	Observer   job.Observer
}

type App struct {
	cfg      *config.Config
	prompts  config.Prompts
	observer job.Observer

	generator llm.Provider
	embedder  *embedding.Service
	extractor extract.Extractor
	backends  []llm.Provider

	translator    *translator.Translator
	reconstructor *reconstruct.Reconstructor

	// set by Init
	store    *vectorstore.Store
	registry *registry.Registry
	engine   *rag.Engine
}

func New(cfg *config.Config, prompts config.Prompts) (*App, error) {
	return NewWithDeps(cfg, prompts, Deps{})
}

func NewWithDeps(cfg *config.Config, prompts config.Prompts, deps Deps) (*App, error) {
	var err error
	if deps.Generator == nil {
		if deps.Generator, err = llm.New(cfg.LLM, llm.UseGenerate); err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
	}
	if deps.Embedder == nil {
		if deps.Embedder, err = llm.New(cfg.Embedding.ProviderConfig, llm.UseEmbed); err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
	}
	if deps.Translator == nil {
		if deps.Translator, err = llm.New(cfg.Translator.ProviderConfig, llm.UseGenerate); err != nil {
			return nil, fmt.Errorf("translation provider: %w", err)
		}
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(cfg.Extract, cfg.ExtractDir())
	}

	return &App{
		cfg:       cfg,
		prompts:   prompts,
		observer:  deps.Observer,
		generator: deps.Generator,
		embedder: embedding.New(deps.Embedder, embedding.Config{
			MaxRetries:  cfg.Embedding.MaxRetries,
			RetryDelay:  cfg.Embedding.RetryDelay,
			Concurrency: cfg.Embedding.Concurrency,
		}),
		extractor:  deps.Extractor,
		backends:   []llm.Provider{deps.Generator, deps.Embedder, deps.Translator},
		translator: translator.New(deps.Translator, prompts, translator.ConfigFrom(cfg)),
		reconstructor: &reconstruct.Reconstructor{
			OutputDir:  cfg.MarkdownDir(),
			ExtractDir: cfg.ExtractDir(),
			Method:     cfg.Extract.Method,
		},
	}, nil
}

// Init prepares the data directories, opens the vector store and the
// registry, and checks the backends. An unreachable embedding backend is
// fatal; without a reachable LLM questions get a canned answer.
func (a *App) Init(ctx context.Context) error {
	for _, dir := range []string{a.cfg.DataDir, a.cfg.TranslatedDir(), a.cfg.ExtractDir(), a.cfg.MarkdownDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	if a.cfg.PullModels {
		if err := a.ensureOllamaModels(ctx); err != nil {
			return fmt.Errorf("ollama model check failed: %w", err)
		}
	}

	if err := a.embedder.Ping(ctx); err != nil {
		return fmt.Errorf("embedding service %s: %w", a.embedder.Provider(), err)
	}
	logger.Info("✅ Embedding service %s is available", a.embedder.Provider())

	var generator rag.Generator
	if err := a.generator.Ping(ctx); err != nil {
		logger.Warn("⚠️ LLM %s/%s is not available, answers are disabled: %v", a.generator.Name(), a.generator.Model(), err)
	} else {
		generator = a.generator
		logger.Info("✅ LLM %s/%s is available", a.generator.Name(), a.generator.Model())
	}

	storePath := a.cfg.VectorDir()
	if a.cfg.Store.InMemory {
		storePath = ""
	}
	store, err := vectorstore.Open(vectorstore.Options{
		Path:          storePath,
		Compress:      a.cfg.Store.Compress,
		CacheSize:     a.cfg.Store.CacheSize,
		EmbeddingFunc: a.embedder.Func(llm.PurposeStore),
	})
	if err != nil {
		return err
	}

	reg, err := registry.Open(a.cfg.RegistryPath())
	if err != nil {
		return err
	}

	a.store = store
	a.registry = reg
	a.engine = rag.New(rag.Deps{
		Store:     store,
		Embedder:  a.embedder,
		Generator: generator,
		Processor: chunker.NewProcessor(chunker.Config{
			MaxChunkSize:     a.cfg.Chunker.MaxSize,
			MinChunkSize:     a.cfg.Chunker.MinSize,
			MergeShortChunks: a.cfg.Chunker.MergeShort,
		}),
	}, a.prompts, a.cfg.RAG)

	logger.Info("📦 Vector store ready with %d collections", len(store.ListCollections()))
	return nil
}

func (a *App) Close() error {
	if a.registry == nil {
		return nil
	}
	return a.registry.Close()
}

// ensureOllamaModels pulls every configured Ollama model the server does
// not have yet.
func (a *App) ensureOllamaModels(ctx context.Context) error {
	for _, p := range a.backends {
		o, ok := p.(*llm.Ollama)
		if !ok {
			continue
		}
		logger.Info("🔍 Checking ollama model %s", o.Model())
		if err := o.EnsureModel(ctx); err != nil {
			return err
		}
	}
	return nil
}

var errNotInitialized = errors.New("app is not initialized")

func (a *App) ready() error {
	if a.engine == nil {
		return errNotInitialized
	}
	return nil
}
