package chunker

import (
	"fmt"
	"strings"

	"paper_rag/internal/content"
)

// Factory hands out the splitting policy for a content type.
type Factory struct {
	config Config
}

func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// PolicyFor returns the policy for ct. Images get a policy that produces
// nothing since they are not retrievable text.
func (f *Factory) PolicyFor(ct content.ContentType) (Policy, error) {
	switch ct {
	case content.TypeTitle:
		return titlePolicy{}, nil
	case content.TypeAbstract:
		return abstractPolicy{config: f.config}, nil
	case content.TypeBody:
		return bodyPolicy{config: f.config}, nil
	case content.TypeReference:
		return referencePolicy{}, nil
	case content.TypeImage:
		return skipPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, ct)
	}
}

type titlePolicy struct{}

func (titlePolicy) Name() string { return "title" }

// Split never cuts a title.
func (titlePolicy) Split(text string) []string {
	if text = strings.TrimSpace(text); text == "" {
		return nil
	}
	return []string{text}
}

type abstractPolicy struct {
	config Config
}

func (abstractPolicy) Name() string { return "abstract" }

func (p abstractPolicy) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= p.config.MaxChunkSize {
		return []string{text}
	}

	limit := p.config.MaxChunkSize
	segments := hardSplit(SplitSentences(text), limit)
	return coalesce(segments, func(_, _, combined int) bool {
		return combined <= limit
	})
}

type bodyPolicy struct {
	config Config
}

func (bodyPolicy) Name() string { return "body" }

// Split emits one segment per sentence, merging undersized sentences with
// their neighbours when enabled. A merge is accepted only when it stays
// within the maximum and rescues at least one segment shorter than the
// minimum.
func (p bodyPolicy) Split(text string) []string {
	limit, floor := p.config.MaxChunkSize, p.config.MinChunkSize
	segments := hardSplit(SplitSentences(text), limit)
	if !p.config.MergeShortChunks {
		return segments
	}
	return coalesce(segments, func(a, b, combined int) bool {
		return combined <= limit && (a < floor || b < floor)
	})
}

type referencePolicy struct{}

func (referencePolicy) Name() string { return "reference" }

// Split keeps one bibliography entry per line, with no size limit.
func (referencePolicy) Split(text string) []string {
	return SplitLines(text)
}

type skipPolicy struct{}

func (skipPolicy) Name() string { return "skip" }

func (skipPolicy) Split(string) []string { return nil }
