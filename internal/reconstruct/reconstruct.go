// Package reconstruct rebuilds a readable Markdown document from a
// translated content list, with citation links and image references.
package reconstruct

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"paper_rag/internal/content"
	"paper_rag/internal/logger"
)

type Mode string

const (
	ModeOrigin     Mode = "origin"
	ModeTranslated Mode = "translated"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOrigin, ModeTranslated:
		return m, nil
	case "":
		return ModeTranslated, nil
	default:
		return "", fmt.Errorf("unknown reconstruction mode %q", s)
	}
}

const (
	topAnchor      = `<a id="content"></a>`
	referenceTitle = "### References"
	abstractTitle  = "## Abstract"
)

var citation = regexp.MustCompile(`\[(\d+)\]`)

// Build renders items as Markdown. Text items without translation fall
// back to the source text and are rendered as body text.
func Build(items []content.RawItem, mode Mode) string {
	blocks := []string{topAnchor}
	referencesOpen := false

	for _, item := range items {
		if item.Type == "image" {
			if item.ImgPath != "" {
				blocks = append(blocks, fmt.Sprintf("![Image](%s)", item.ImgPath))
			}
			continue
		}
		if !item.IsText() {
			continue
		}

		text := strings.TrimSpace(itemText(item, mode))
		if text == "" {
			continue
		}

		ct := content.TypeBody
		if item.Translation != nil {
			ct = item.Translation.ContentType
		}

		switch ct {
		case content.TypeTitle:
			blocks = append(blocks, "# "+text)
		case content.TypeAbstract:
			blocks = append(blocks, abstractTitle+"\n\n"+text)
		case content.TypeReference:
			if !referencesOpen {
				blocks = append(blocks, referenceTitle)
				referencesOpen = true
			}
			blocks = append(blocks, referenceAnchors(text))
		default:
			blocks = append(blocks, LinkCitations(text))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func itemText(item content.RawItem, mode Mode) string {
	source := item.TextEN
	if source == "" {
		source = item.Text
	}
	if mode == ModeOrigin || item.TextZH == "" {
		return source
	}
	return item.TextZH
}

// LinkCitations turns every [N] into a link to the matching reference.
func LinkCitations(text string) string {
	return citation.ReplaceAllString(text, "[[$1]](#ref-$1)")
}

// referenceAnchors makes each cited line of a reference block an anchor
// target with a link back to the top. Lines without a number stay as is.
func referenceAnchors(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if citation.MatchString(line) {
			line = citation.ReplaceAllString(line, `<a id="ref-$1">[$1]</a>`) + " [↩](#content)"
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Reconstructor writes reconstructed documents below OutputDir, copying
// the images extracted for each document next to the Markdown file.
type Reconstructor struct {
	OutputDir  string
	ExtractDir string
	Method     string
}

// Reconstruct writes <OutputDir>/<name>/<name>.md for the translated file
// at translatedPath and returns its path.
func (r *Reconstructor) Reconstruct(translatedPath string, mode Mode) (string, error) {
	items, err := content.ReadList(translatedPath)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%s: %w", translatedPath, content.ErrEmptyContent)
	}

	name := content.DocumentName(translatedPath)
	dir := filepath.Join(r.OutputDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	mdPath := filepath.Join(dir, name+".md")
	if err := os.WriteFile(mdPath, []byte(Build(items, mode)), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}

	images := filepath.Join(r.ExtractDir, name, r.Method, "images")
	copied, err := copyDir(images, filepath.Join(dir, "images"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("no extracted images for %s in %s", name, images)
	case err != nil:
		return "", fmt.Errorf("copy images: %w", err)
	default:
		logger.Debug("copied %d images for %s", copied, name)
	}

	logger.Info("📄 Reconstructed %s (%s) -> %s", name, mode, mdPath)
	return mdPath, nil
}

// copyDir copies the regular files of src into dst recursively, replacing
// existing files. It returns the number of files copied.
func copyDir(src, dst string) (int, error) {
	if _, err := os.Stat(src); err != nil {
		return 0, err
	}

	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		count++
		return os.WriteFile(target, data, 0o644)
	})
	return count, err
}
