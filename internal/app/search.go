package app

import (
	"context"
	"sort"

	"paper_rag/internal/llm"
	"paper_rag/internal/rag"
	"paper_rag/internal/vectorstore"
)

// Ask answers question from the chunks of collection. The answer stream of
// the response must be drained or closed by the caller.
func (a *App) Ask(ctx context.Context, question, collection string) rag.Response {
	if err := a.ready(); err != nil {
		return rag.Response{
			Status:  rag.StatusError,
			Answer:  llm.TextStream(err.Error()),
			Message: err.Error(),
			Query:   question,
		}
	}
	return a.engine.Ask(ctx, a.engine.NewRequest(question, collection))
}

// Search returns the closest chunks without generating an answer. It
// returns nil when nothing matches.
func (a *App) Search(ctx context.Context, question, collection string, topK int) ([]vectorstore.SearchResult, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	req := a.engine.NewRequest(question, collection)
	if topK > 0 {
		req.TopK = topK
	}
	return a.engine.Search(ctx, req)
}

// PageGroup is the sources found on one page.
type PageGroup struct {
	Page    int
	Results []vectorstore.SearchResult
}

// groupByPage groups results by page, pages ascending, keeping the score
// order within a page.
func groupByPage(results []vectorstore.SearchResult) []PageGroup {
	index := make(map[int]int)
	var groups []PageGroup
	for _, r := range results {
		i, ok := index[r.PageNum]
		if !ok {
			i = len(groups)
			index[r.PageNum] = i
			groups = append(groups, PageGroup{Page: r.PageNum})
		}
		groups[i].Results = append(groups[i].Results, r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Page < groups[j].Page
	})
	return groups
}

// Health reports backend availability and what the store holds.
type Health struct {
	Generator          string
	GeneratorAvailable bool
	Embedding          string
	EmbeddingAvailable bool
	Collections        []string
	Documents          int
	CachedHandles      int
	CacheCapacity      int
}

// Health pings the backends. Success means questions can be answered.
func (a *App) Health(ctx context.Context) Result {
	if err := a.ready(); err != nil {
		return failed("health", err)
	}
	info := a.engine.SystemInfo()
	h := Health{
		Generator:          a.generator.Name() + "/" + a.generator.Model(),
		GeneratorAvailable: a.generator.Ping(ctx) == nil,
		Embedding:          info.Embedding,
		EmbeddingAvailable: a.embedder.Ping(ctx) == nil,
		Collections:        info.Collections,
		CachedHandles:      info.CachedHandles,
		CacheCapacity:      info.CacheCapacity,
	}
	if docs, err := a.registry.List(ctx); err == nil {
		h.Documents = len(docs)
	}

	switch {
	case !h.EmbeddingAvailable:
		return Result{Message: "embedding service is unavailable", Data: h}
	case !h.GeneratorAvailable:
		return Result{Message: "LLM service is unavailable", Data: h}
	default:
		return succeed("all services are available", h)
	}
}

// Store exposes the vector store for collection management. It is nil
// before Init.
func (a *App) Store() *vectorstore.Store {
	return a.store
}
