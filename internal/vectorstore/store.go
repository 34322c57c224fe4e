// Package vectorstore keeps chunk vectors in named collections, one per
// document, on top of chromem-go.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"paper_rag/internal/chunker"
	"paper_rag/internal/logger"
)

// MetricCosine is the only supported distance metric.
const MetricCosine = "cosine"

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidBatch       = errors.New("invalid chunk batch")
	ErrUnsupportedMetric  = errors.New("unsupported distance metric")
	ErrNoEmbeddingFunc    = errors.New("vectors must be supplied by the caller")
)

// SearchResult is one retrieved chunk. Score is the cosine similarity,
// higher is closer.
type SearchResult struct {
	ChunkID      string
	Content      string
	DocumentName string
	PageNum      int
	ChunkIndex   int
	ContentType  string
	Score        float32
}

type Options struct {
	// Path of the persistent database directory. Empty keeps everything in
	// memory.
	Path      string
	Compress  bool
	CacheSize int

	// EmbeddingFunc is handed to chromem for texts added without a vector.
	EmbeddingFunc chromem.EmbeddingFunc
}

// Store wraps a chromem DB with a small cache of open collection handles.
// Collection writes are expected to come from one writer at a time.
type Store struct {
	db    *chromem.DB
	path  string
	embed chromem.EmbeddingFunc
	cache *collectionCache
}

func Open(opts Options) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if opts.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create vector db dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}
	return NewWithDB(db, opts), nil
}

func NewWithDB(db *chromem.DB, opts Options) *Store {
	embed := opts.EmbeddingFunc
	if embed == nil {
		embed = func(context.Context, string) ([]float32, error) {
			return nil, ErrNoEmbeddingFunc
		}
	}
	return &Store{
		db:    db,
		path:  opts.Path,
		embed: embed,
		cache: newCollectionCache(opts.CacheSize),
	}
}

// GetOrCreateCollection returns the handle for name, serving it from the
// cache when possible and otherwise fetching or creating it.
func (s *Store) GetOrCreateCollection(name, metric string) (*chromem.Collection, error) {
	if metric == "" {
		metric = MetricCosine
	}
	if metric != MetricCosine {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMetric, metric)
	}

	return s.cache.getOrLoad(name, func() (*chromem.Collection, error) {
		if coll := s.db.GetCollection(name, s.embed); coll != nil {
			return coll, nil
		}
		coll, err := s.db.CreateCollection(name, map[string]string{
			"distance_metric": metric,
			"document_name":   name,
		}, s.embed)
		if err != nil {
			return nil, fmt.Errorf("create collection %s: %w", name, err)
		}
		logger.Info("✅ created collection %s", name)
		return coll, nil
	})
}

// collection returns an existing handle without creating one.
func (s *Store) collection(name string) (*chromem.Collection, error) {
	if coll, ok := s.cache.get(name); ok {
		return coll, nil
	}
	if s.db.GetCollection(name, s.embed) == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return s.GetOrCreateCollection(name, MetricCosine)
}

// AddChunks stores chunks with their vectors, skipping ids the collection
// already holds. A batch that is entirely known is a successful no-op. It
// returns how many chunks were inserted.
func (s *Store) AddChunks(ctx context.Context, chunks []chunker.Chunk, embeddings [][]float32, collectionName string) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: no chunks", ErrInvalidBatch)
	}
	if len(chunks) != len(embeddings) {
		return 0, fmt.Errorf("%w: %d chunks but %d embeddings", ErrInvalidBatch, len(chunks), len(embeddings))
	}

	coll, err := s.GetOrCreateCollection(collectionName, MetricCosine)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(chunks))
	docs := make([]chromem.Document, 0, len(chunks))
	for i, c := range chunks {
		if seen[c.ID] || exists(ctx, coll, c.ID) {
			continue
		}
		seen[c.ID] = true
		docs = append(docs, toDocument(c, embeddings[i]))
	}

	if len(docs) == 0 {
		logger.Info("📦 all %d chunks already stored in %s", len(chunks), collectionName)
		return 0, nil
	}

	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("add documents to %s: %w", collectionName, err)
	}

	logger.Info("📦 stored %d new chunks in %s (%d skipped)", len(docs), collectionName, len(chunks)-len(docs))
	return len(docs), nil
}

// UpdateChunk replaces the stored chunk with the same id.
func (s *Store) UpdateChunk(ctx context.Context, collectionName string, c chunker.Chunk, embedding []float32) error {
	coll, err := s.collection(collectionName)
	if err != nil {
		return err
	}
	if !exists(ctx, coll, c.ID) {
		return fmt.Errorf("chunk %s not in %s", c.ID, collectionName)
	}
	if err := coll.Delete(ctx, nil, nil, c.ID); err != nil {
		return fmt.Errorf("delete chunk %s: %w", c.ID, err)
	}
	if err := coll.AddDocument(ctx, toDocument(c, embedding)); err != nil {
		return fmt.Errorf("add chunk %s: %w", c.ID, err)
	}
	return nil
}

// Search returns the topK chunks closest to query, best first. It returns
// nil, nil when the collection exists but yields nothing, and
// ErrCollectionNotFound when there is no such collection.
func (s *Store) Search(ctx context.Context, collectionName string, query []float32, topK int, filter map[string]string) ([]SearchResult, error) {
	coll, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}

	count := coll.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	res, err := coll.QueryEmbedding(ctx, query, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collectionName, err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(res))
	for _, r := range res {
		results = append(results, fromResult(r))
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results, nil
}

// DeleteCollection removes the collection and its persisted data.
func (s *Store) DeleteCollection(name string) error {
	s.cache.remove(name)
	if s.db.GetCollection(name, s.embed) == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	logger.Info("🗑️ deleted collection %s", name)
	return nil
}

// ListCollections returns the collection names in sorted order.
func (s *Store) ListCollections() []string {
	colls := s.db.ListCollections()
	names := make([]string, 0, len(colls))
	for name := range colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type CollectionInfo struct {
	Name    string
	Count   int
	Metric  string
	DataDir string
}

func (s *Store) CollectionInfo(name string) (CollectionInfo, error) {
	coll, err := s.collection(name)
	if err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{
		Name:    name,
		Count:   coll.Count(),
		Metric:  MetricCosine,
		DataDir: s.path,
	}, nil
}

// CacheSize reports how many handles are cached and the capacity.
func (s *Store) CacheSize() (size, capacity int) {
	return len(s.cache.names()), s.cache.capacity
}

func exists(ctx context.Context, coll *chromem.Collection, id string) bool {
	_, err := coll.GetByID(ctx, id)
	return err == nil
}

func toDocument(c chunker.Chunk, embedding []float32) chromem.Document {
	return chromem.Document{
		ID:        c.ID,
		Content:   c.Content,
		Embedding: embedding,
		Metadata: map[string]string{
			"document_name": c.DocumentName,
			"page_num":      strconv.Itoa(c.PageNum),
			"chunk_index":   strconv.Itoa(c.ChunkIndex),
			"content_type":  string(c.ContentType),
		},
	}
}

func fromResult(r chromem.Result) SearchResult {
	page, _ := strconv.Atoi(r.Metadata["page_num"])
	index, _ := strconv.Atoi(r.Metadata["chunk_index"])
	return SearchResult{
		ChunkID:      r.ID,
		Content:      r.Content,
		DocumentName: r.Metadata["document_name"],
		PageNum:      page,
		ChunkIndex:   index,
		ContentType:  r.Metadata["content_type"],
		Score:        r.Similarity,
	}
}
