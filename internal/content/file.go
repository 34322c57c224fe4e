package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const TranslatedSuffix = "_translated.json"

var ErrEmptyContent = errors.New("content list is empty")

// ReadList reads a JSON content list, either raw extraction output or a
// translated file.
func ReadList(path string) ([]RawItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content list: %w", err)
	}

	var items []RawItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode content list %s: %w", path, err)
	}
	return items, nil
}

// WriteList writes items as indented JSON, creating parent directories.
func WriteList(path string, items []RawItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode content list: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write content list: %w", err)
	}
	return nil
}

// DocumentName derives the document identity from a file path: the base
// name without the translated suffix or extension. It doubles as the
// vector store collection name.
func DocumentName(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, TranslatedSuffix) {
		return strings.TrimSuffix(base, TranslatedSuffix)
	}
	base = strings.TrimSuffix(base, "_content_list.json")
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadTranslated turns a translated content list into chunker input.
// Items without translation metadata are skipped, except images which are
// always kept.
func LoadTranslated(path string) ([]ContentItem, error) {
	raw, err := ReadList(path)
	if err != nil {
		return nil, err
	}

	items, err := FromTranslated(DocumentName(path), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyContent)
	}
	return items, nil
}

// FromTranslated converts translated raw items. A content type outside the
// known set fails the whole list.
func FromTranslated(document string, raw []RawItem) ([]ContentItem, error) {
	var items []ContentItem
	for i, r := range raw {
		switch {
		case r.Type == "image":
			items = append(items, ContentItem{
				DocumentName:  document,
				PageIndex:     r.PageIdx,
				ContentType:   TypeImage,
				SequenceIndex: i,
				ImagePath:     r.ImgPath,
			})
		case r.IsTranslated():
			ct, err := ParseContentType(string(r.Translation.ContentType))
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, ContentItem{
				Text:          r.TextZH,
				DocumentName:  document,
				PageIndex:     r.PageIdx,
				ContentType:   ct,
				SequenceIndex: i,
			})
		}
	}
	return items, nil
}
