// Package content models the typed items extracted from a paper and the
// JSON files that carry them between pipeline stages.
package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownContentType = errors.New("unknown content type")

type ContentType string

const (
	TypeTitle     ContentType = "title"
	TypeAbstract  ContentType = "abstract"
	TypeBody      ContentType = "body"
	TypeReference ContentType = "reference"
	TypeImage     ContentType = "image"
)

// ParseContentType accepts the lowercase names used in the JSON files.
func ParseContentType(s string) (ContentType, error) {
	switch t := ContentType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeTitle, TypeAbstract, TypeBody, TypeReference, TypeImage:
		return t, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownContentType, s)
	}
}

// RawItem is one entry of an extraction content list. After translation it
// also carries the text in both languages and the translation metadata.
type RawItem struct {
	Type         string               `json:"type"`
	Text         string               `json:"text,omitempty"`
	TextLevel    int                  `json:"text_level,omitempty"`
	PageIdx      int                  `json:"page_idx"`
	ImgPath      string               `json:"img_path,omitempty"`
	ImageCaption []string             `json:"image_caption,omitempty"`
	TableBody    string               `json:"table_body,omitempty"`
	TextEN       string               `json:"text_en,omitempty"`
	TextZH       string               `json:"text_zh,omitempty"`
	Translation  *TranslationMetadata `json:"translation_metadata,omitempty"`
}

type TranslationMetadata struct {
	Model       string      `json:"model"`
	Timestamp   time.Time   `json:"timestamp"`
	ContentType ContentType `json:"content_type"`
}

// IsText reports whether the item holds translatable text.
func (r RawItem) IsText() bool {
	return r.Type == "text"
}

// IsTranslated reports whether the translation stage already handled the item.
func (r RawItem) IsTranslated() bool {
	return r.Translation != nil
}

// ContentItem is the immutable input of the chunker.
type ContentItem struct {
	Text          string
	DocumentName  string
	PageIndex     int
	ContentType   ContentType
	SequenceIndex int
	ImagePath     string
}
