package chunker

import (
	"fmt"
	"strings"

	"paper_rag/internal/content"
	"paper_rag/internal/logger"
)

// Processor turns translated content items into chunks.
type Processor struct {
	config  Config
	factory *Factory
}

func NewProcessor(config Config) *Processor {
	return &Processor{
		config:  config,
		factory: NewFactory(config),
	}
}

func (p *Processor) Config() Config {
	return p.config
}

// Process applies the per-type policy to each item in order. Chunk indexes
// run across the whole output, so identifiers are unique for the batch and
// identical input always yields identical chunks.
func (p *Processor) Process(items []content.ContentItem) ([]Chunk, error) {
	var chunks []Chunk

	for _, item := range items {
		policy, err := p.factory.PolicyFor(item.ContentType)
		if err != nil {
			return nil, fmt.Errorf("item %d of %s: %w", item.SequenceIndex, item.DocumentName, err)
		}

		for _, text := range policy.Split(item.Text) {
			if strings.TrimSpace(text) == "" {
				continue
			}
			index := len(chunks)
			chunks = append(chunks, Chunk{
				ID:           ChunkID(item.DocumentName, index, text),
				Content:      text,
				DocumentName: item.DocumentName,
				PageNum:      item.PageIndex,
				ChunkIndex:   index,
				ContentType:  item.ContentType,
			})
		}
	}

	logger.Debug("📦 [chunker] %d items -> %d chunks", len(items), len(chunks))
	return chunks, nil
}
