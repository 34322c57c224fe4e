package rag

import (
	"context"
	"errors"
	"fmt"

	"paper_rag/internal/chunker"
	"paper_rag/internal/content"
	"paper_rag/internal/job"
	"paper_rag/internal/llm"
	"paper_rag/internal/logger"
	"paper_rag/internal/vectorstore"
)

var (
	ErrNoChunks        = errors.New("document produced no chunks")
	ErrNothingEmbedded = errors.New("no chunk could be embedded")
)

// IngestReport summarises one StoreDocument run.
type IngestReport struct {
	Collection string
	Chunks     int
	Embedded   int
	Inserted   int
}

// Skipped is the number of chunks dropped because embedding failed.
func (r IngestReport) Skipped() int {
	return r.Chunks - r.Embedded
}

// StoreDocument indexes a translated content list into the collection
// named after the document. Chunks already present are left untouched, so
// running it twice on the same file inserts nothing the second time.
func (e *Engine) StoreDocument(ctx context.Context, translatedPath string, jc *job.Context) (IngestReport, error) {
	name := content.DocumentName(translatedPath)
	report := IngestReport{Collection: name}

	jc.Report(job.StageIndex, 0, "loading translated content")
	items, err := content.LoadTranslated(translatedPath)
	if err != nil {
		return report, fmt.Errorf("load %s: %w", translatedPath, err)
	}

	chunks, err := e.processor.Process(items)
	if err != nil {
		return report, fmt.Errorf("chunk %s: %w", name, err)
	}
	if len(chunks) == 0 {
		return report, fmt.Errorf("%w: %s", ErrNoChunks, name)
	}
	report.Chunks = len(chunks)
	jc.Report(job.StageIndex, 10, fmt.Sprintf("%d chunks", len(chunks)))

	if err := e.embedder.Ping(ctx); err != nil {
		return report, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	logger.Info("🧠 Embedding %d chunks with %s", len(texts), e.embedder.Provider())
	results := e.embedder.EmbedBatch(ctx, texts, llm.PurposeStore)

	kept := make([]chunker.Chunk, 0, len(results))
	vectors := make([][]float32, 0, len(results))
	for _, r := range results {
		kept = append(kept, chunks[r.Index])
		vectors = append(vectors, r.Vector)
	}
	report.Embedded = len(kept)
	if report.Skipped() > 0 {
		logger.Warn("%d of %d chunks of %s were not embedded and are skipped", report.Skipped(), report.Chunks, name)
	}
	if len(kept) == 0 {
		return report, fmt.Errorf("%w: %s", ErrNothingEmbedded, name)
	}
	jc.Report(job.StageIndex, 80, fmt.Sprintf("embedded %d chunks", len(kept)))

	inserted, err := e.store.AddChunks(ctx, kept, vectors, name)
	if err != nil {
		return report, fmt.Errorf("store chunks of %s: %w", name, err)
	}
	report.Inserted = inserted
	jc.Report(job.StageIndex, 100, fmt.Sprintf("stored %d new chunks", inserted))
	logger.Info("✅ Indexed %s: %d chunks, %d new", name, report.Chunks, inserted)
	return report, nil
}

// SystemInfo describes the configured backends and the store contents.
type SystemInfo struct {
	Generator     string
	Embedding     string
	Collections   []string
	CachedHandles int
	CacheCapacity int
}

func (e *Engine) SystemInfo() SystemInfo {
	info := SystemInfo{
		Generator:   "not configured",
		Embedding:   e.embedder.Provider(),
		Collections: e.store.ListCollections(),
	}
	if e.generator != nil {
		info.Generator = e.generator.Name() + "/" + e.generator.Model()
	}
	info.CachedHandles, info.CacheCapacity = e.store.CacheSize()
	return info
}

// Store exposes the underlying vector store for collection management.
func (e *Engine) Store() *vectorstore.Store {
	return e.store
}
