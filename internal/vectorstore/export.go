package vectorstore

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"

	"paper_rag/internal/chunker"
	"paper_rag/internal/content"
	"paper_rag/internal/logger"
)

// Export is the JSON form of one collection.
type Export struct {
	CollectionName string           `json:"collection_name"`
	DistanceMetric string           `json:"distance_metric"`
	ExportTime     time.Time        `json:"export_time"`
	TotalChunks    int              `json:"total_chunks"`
	Documents      []ExportDocument `json:"documents"`
}

type ExportDocument struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding"`
}

// ExportCollection writes one collection as JSON, gzipped when compress is
// set. ImportCollection reads either form back.
func (s *Store) ExportCollection(name, path string, compress bool) error {
	if _, err := s.collection(name); err != nil {
		return err
	}
	docs, err := s.documents(name)
	if err != nil {
		return err
	}

	export := Export{
		CollectionName: name,
		DistanceMetric: MetricCosine,
		ExportTime:     time.Now().UTC(),
		TotalChunks:    len(docs),
		Documents:      make([]ExportDocument, 0, len(docs)),
	}
	for _, d := range docs {
		export.Documents = append(export.Documents, ExportDocument{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("export collection %s: %w", name, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("export collection %s: %w", name, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export collection %s: %w", name, err)
	}

	logger.Info("📤 exported %d chunks of %s to %s", len(docs), name, path)
	return nil
}

// ImportCollection loads an export file into collection name, or into the
// exported collection name when name is empty. An existing collection of
// that name is deleted first, including its persisted files. It returns the
// number of chunks stored.
func (s *Store) ImportCollection(ctx context.Context, path, name string) (int, error) {
	export, err := readExport(path)
	if err != nil {
		return 0, err
	}
	if name == "" {
		name = export.CollectionName
	}
	if name == "" {
		return 0, fmt.Errorf("%s names no collection", path)
	}

	chunks := make([]chunker.Chunk, 0, len(export.Documents))
	vectors := make([][]float32, 0, len(export.Documents))
	for _, d := range export.Documents {
		c, err := toChunk(d)
		if err != nil {
			return 0, fmt.Errorf("import %s: %w", path, err)
		}
		chunks = append(chunks, c)
		vectors = append(vectors, d.Embedding)
	}

	s.cache.remove(name)
	if err := s.db.DeleteCollection(name); err != nil {
		return 0, fmt.Errorf("replace collection %s: %w", name, err)
	}
	if len(chunks) == 0 {
		_, err := s.GetOrCreateCollection(name, MetricCosine)
		return 0, err
	}
	return s.AddChunks(ctx, chunks, vectors, name)
}

// Backup writes every collection to one chromem gob file.
func (s *Store) Backup(path string, compress bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := s.db.ExportToFile(path, compress, ""); err != nil {
		return fmt.Errorf("backup vector db: %w", err)
	}
	return nil
}

// gobCollection mirrors the collection record of chromem's export stream.
type gobCollection struct {
	Name      string
	Metadata  map[string]string
	Documents map[string]*chromem.Document
}

type gobDB struct {
	Collections map[string]*gobCollection
}

// documents returns every document of name ordered by chunk index.
// chromem has no listing call, so they are read from its export stream.
func (s *Store) documents(name string) ([]chromem.Document, error) {
	var buf bytes.Buffer
	if err := s.db.ExportToWriter(&buf, false, "", name); err != nil {
		return nil, fmt.Errorf("read collection %s: %w", name, err)
	}
	var dump gobDB
	if err := gob.NewDecoder(&buf).Decode(&dump); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", name, err)
	}
	coll, ok := dump.Collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	docs := make([]chromem.Document, 0, len(coll.Documents))
	for _, d := range coll.Documents {
		docs = append(docs, *d)
	}
	sort.Slice(docs, func(i, j int) bool {
		a, _ := strconv.Atoi(docs[i].Metadata["chunk_index"])
		b, _ := strconv.Atoi(docs[j].Metadata["chunk_index"])
		if a != b {
			return a < b
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func readExport(path string) (Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return Export{}, fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	// gzip magic
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return Export{}, fmt.Errorf("read export file %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return Export{}, fmt.Errorf("decode export file %s: %w", path, err)
	}
	return export, nil
}

func toChunk(d ExportDocument) (chunker.Chunk, error) {
	if d.ID == "" || len(d.Embedding) == 0 {
		return chunker.Chunk{}, fmt.Errorf("%w: document without id or embedding", ErrInvalidBatch)
	}
	ct, err := content.ParseContentType(d.Metadata["content_type"])
	if err != nil {
		return chunker.Chunk{}, fmt.Errorf("chunk %s: %w", d.ID, err)
	}
	page, _ := strconv.Atoi(d.Metadata["page_num"])
	index, _ := strconv.Atoi(d.Metadata["chunk_index"])
	return chunker.Chunk{
		ID:           d.ID,
		Content:      d.Content,
		DocumentName: d.Metadata["document_name"],
		PageNum:      page,
		ChunkIndex:   index,
		ContentType:  ct,
	}, nil
}
