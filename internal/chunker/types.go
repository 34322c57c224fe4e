package chunker

import "paper_rag/internal/content"

// ErrUnknownContentType means the input carries a type no policy handles.
// It points at corrupted upstream data and is never recovered from.
var ErrUnknownContentType = content.ErrUnknownContentType

// Chunk is a retrieval-ready unit of document text.
type Chunk struct {
	ID           string
	Content      string
	DocumentName string
	PageNum      int
	ChunkIndex   int
	ContentType  content.ContentType
}

// Policy splits the text of one content item into chunk contents.
type Policy interface {
	Split(text string) []string

	// Name is used for logging.
	Name() string
}

// Config holds the size limits, measured in characters.
type Config struct {
	MaxChunkSize     int
	MinChunkSize     int
	MergeShortChunks bool
}

func DefaultConfig() Config {
	return Config{
		MaxChunkSize:     1200,
		MinChunkSize:     100,
		MergeShortChunks: true,
	}
}
