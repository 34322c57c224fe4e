// Package rag answers questions about ingested documents by retrieving
// the closest chunks and streaming a grounded answer from the LLM.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paper_rag/internal/chunker"
	"paper_rag/internal/config"
	"paper_rag/internal/embedding"
	"paper_rag/internal/llm"
	"paper_rag/internal/logger"
	"paper_rag/internal/vectorstore"
)

const (
	NoResultsAnswer    = "No relevant content was found in the document for this question."
	NoGeneratorAnswer  = "The LLM service is not configured, so no answer can be generated."
	queryFailedMessage = "query failed"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Response is the outcome of Ask. Answer is always non-nil and must be
// drained by exactly one consumer. Sources is nil when nothing was found
// or sources were not requested.
type Response struct {
	Status       Status
	Answer       *llm.Stream
	Message      string
	Sources      []vectorstore.SearchResult
	Query        string
	ResponseTime time.Duration
}

// Embedder is the part of embedding.Service the engine uses.
type Embedder interface {
	Embed(ctx context.Context, text string, purpose llm.Purpose) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, purpose llm.Purpose) []embedding.Result
	Ping(ctx context.Context) error
	Provider() string
}

// Generator streams completions. llm.Provider satisfies it.
type Generator interface {
	Name() string
	Model() string
	Stream(ctx context.Context, prompt, system string) (*llm.Stream, error)
}

type Request struct {
	Question       string
	Collection     string
	TopK           int
	Filter         map[string]string
	IncludeSources bool
}

// Deps are the collaborators of an Engine. Generator may be nil, in which
// case Ask answers with NoGeneratorAnswer after retrieval.
type Deps struct {
	Store     *vectorstore.Store
	Embedder  Embedder
	Generator Generator
	Processor *chunker.Processor
}

type Engine struct {
	store     *vectorstore.Store
	embedder  Embedder
	generator Generator
	processor *chunker.Processor
	prompts   config.Prompts
	cfg       config.RAGConfig
}

func New(deps Deps, prompts config.Prompts, cfg config.RAGConfig) *Engine {
	if cfg.TopK < 1 {
		cfg.TopK = 10
	}
	processor := deps.Processor
	if processor == nil {
		processor = chunker.NewProcessor(chunker.DefaultConfig())
	}
	return &Engine{
		store:     deps.Store,
		embedder:  deps.Embedder,
		generator: deps.Generator,
		processor: processor,
		prompts:   prompts,
		cfg:       cfg,
	}
}

// NewRequest fills a request with the configured defaults.
func (e *Engine) NewRequest(question, collection string) Request {
	return Request{
		Question:       question,
		Collection:     collection,
		TopK:           e.cfg.TopK,
		IncludeSources: e.cfg.IncludeSources,
	}
}

// Ask never returns an error or panics; failures come back as a Response
// with StatusError and the reason in Message and Answer.
func (e *Engine) Ask(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ask %q panicked: %v", req.Collection, r)
			resp = failure(req, fmt.Errorf("internal error: %v", r))
		}
		resp.ResponseTime = time.Since(start)
	}()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return failure(req, errors.New("question is empty"))
	}

	vec, err := e.embedder.Embed(ctx, question, llm.PurposeQuery)
	if err != nil {
		logger.Error("embed question for %s: %v", req.Collection, err)
		return failure(req, fmt.Errorf("could not embed the question: %w", err))
	}

	results, err := e.search(ctx, req, vec)
	if err != nil {
		logger.Error("search %s: %v", req.Collection, err)
		return failure(req, fmt.Errorf("search failed: %w", err))
	}
	if results == nil {
		logger.Info("🔍 No relevant chunks in %s", req.Collection)
		return Response{Status: StatusSuccess, Answer: llm.TextStream(NoResultsAnswer), Query: req.Question}
	}
	logger.Info("🔍 Found %d relevant chunks in %s", len(results), req.Collection)

	resp = Response{Status: StatusSuccess, Query: req.Question}
	if req.IncludeSources {
		resp.Sources = results
	}

	if e.generator == nil {
		resp.Answer = llm.TextStream(NoGeneratorAnswer)
		return resp
	}

	prompt := config.Render(e.prompts.RAGAnswer, map[string]string{
		"question": question,
		"context":  BuildContext(results),
	})
	stream, err := e.generator.Stream(ctx, prompt, "")
	if err != nil {
		logger.Error("generate answer with %s/%s: %v", e.generator.Name(), e.generator.Model(), err)
		return failure(req, fmt.Errorf("answer generation failed: %w", err))
	}
	resp.Answer = stream
	return resp
}

// Search returns the chunks closest to question without generating an
// answer. A nil slice means nothing matched.
func (e *Engine) Search(ctx context.Context, req Request) ([]vectorstore.SearchResult, error) {
	vec, err := e.embedder.Embed(ctx, req.Question, llm.PurposeQuery)
	if err != nil {
		return nil, err
	}
	return e.search(ctx, req, vec)
}

// search folds a missing collection into "no results" and drops hits
// below the configured similarity floor.
func (e *Engine) search(ctx context.Context, req Request, vec []float32) ([]vectorstore.SearchResult, error) {
	topK := req.TopK
	if topK < 1 {
		topK = e.cfg.TopK
	}

	results, err := e.store.Search(ctx, req.Collection, vec, topK, req.Filter)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if e.cfg.MinSimilarity <= 0 {
		return results, nil
	}
	var kept []vectorstore.SearchResult
	for _, r := range results {
		if r.Score >= e.cfg.MinSimilarity {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// BuildContext renders results as numbered fragments in the order given.
func BuildContext(results []vectorstore.SearchResult) string {
	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("[fragment %d] (source: %s, page: %d, similarity: %.3f) %s",
			i+1, r.DocumentName, r.PageNum, r.Score, r.Content))
	}
	return strings.Join(lines, "\n")
}

func failure(req Request, err error) Response {
	msg := queryFailedMessage + ": " + err.Error()
	return Response{
		Status:  StatusError,
		Answer:  llm.TextStream(msg),
		Message: msg,
		Query:   req.Question,
	}
}
