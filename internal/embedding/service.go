// Package embedding turns text into vectors with bounded retries.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"paper_rag/internal/llm"
	"paper_rag/internal/logger"
)

var ErrEmbeddingFailed = errors.New("embedding failed")

// Embedder is the slice of llm.Provider the service needs.
type Embedder interface {
	Name() string
	Model() string
	Embed(ctx context.Context, text string, purpose llm.Purpose) ([]float32, error)
	Ping(ctx context.Context) error
}

type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
}

// Result pairs a vector with the position of its input text.
type Result struct {
	Index  int
	Vector []float32
}

type Service struct {
	embedder Embedder
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(embedder Embedder, cfg Config) *Service {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{embedder: embedder, cfg: cfg, sleep: llm.Sleep}
}

func (s *Service) Provider() string {
	return s.embedder.Name() + "/" + s.embedder.Model()
}

// Ping reports whether the embedding backend is usable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.embedder.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return nil
}

// Embed tries up to MaxRetries times, waiting RetryDelay*attempt between
// attempts. Rate-limited attempts wait longer, see llm.Backoff.
func (s *Service) Embed(ctx context.Context, text string, purpose llm.Purpose) ([]float32, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		vec, err := s.embedder.Embed(ctx, text, purpose)
		if err == nil && len(vec) > 0 {
			return vec, nil
		}
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		lastErr = err

		logger.Warn("⚠️ embedding attempt %d/%d failed: %v", attempt, s.cfg.MaxRetries, err)
		if attempt == s.cfg.MaxRetries {
			break
		}
		if err := s.sleep(ctx, llm.Backoff(err, s.cfg.RetryDelay*time.Duration(attempt))); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrEmbeddingFailed, s.cfg.MaxRetries, lastErr)
}

// EmbedBatch embeds every text, dropping the ones that still fail after
// retries. Results keep input order and carry their input index.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, purpose llm.Purpose) []Result {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := s.Embed(gctx, text, purpose)
			if err != nil {
				logger.Error("❌ dropping text %d from batch: %v", i, err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()

	results := make([]Result, 0, len(texts))
	for i, v := range vectors {
		if v != nil {
			results = append(results, Result{Index: i, Vector: v})
		}
	}
	return results
}

// Func adapts the service to a plain embedding function with a fixed
// purpose.
func (s *Service) Func(purpose llm.Purpose) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.Embed(ctx, text, purpose)
	}
}
