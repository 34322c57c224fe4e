package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"paper_rag/internal/content"
	"paper_rag/internal/logger"
)

// NativeMethod names the output subdirectory of the native extractor.
const NativeMethod = "native"

// Native extracts plain text with a pure Go PDF reader. It knows nothing
// about layout, so it yields text items only: the first line of the
// document becomes the title and the rest is grouped into paragraphs.
type Native struct {
	outputRoot string
}

func NewNative(outputRoot string) *Native {
	return &Native{outputRoot: outputRoot}
}

func (n *Native) Name() string {
	return NativeMethod
}

func (n *Native) Extract(ctx context.Context, pdfPath string) (Output, error) {
	if err := checkPDF(pdfPath); err != nil {
		return Output{}, err
	}
	start := time.Now()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return Output{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var items []content.RawItem
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			logger.Warn("⚠️ page %d of %s: %v", i, pdfPath, err)
			continue
		}
		if len(items) == 0 {
			var title string
			title, text = firstLine(text)
			if title != "" {
				items = append(items, content.RawItem{Type: "text", Text: title, TextLevel: 1, PageIdx: i - 1})
			}
		}
		for _, para := range Paragraphs(text) {
			items = append(items, content.RawItem{Type: "text", Text: para, PageIdx: i - 1})
		}
	}
	if len(items) == 0 {
		return Output{}, fmt.Errorf("%s: %w", pdfPath, content.ErrEmptyContent)
	}

	name := DocumentName(pdfPath)
	dir := filepath.Join(n.outputRoot, name, NativeMethod)
	listPath := filepath.Join(dir, name+contentListSuffix)
	if err := content.WriteList(listPath, items); err != nil {
		return Output{}, err
	}

	var md strings.Builder
	for i, item := range items {
		if i > 0 {
			md.WriteString("\n\n")
		}
		if item.TextLevel == 1 {
			md.WriteString("# ")
		}
		md.WriteString(item.Text)
	}
	mdPath := filepath.Join(dir, name+".md")
	if err := os.WriteFile(mdPath, []byte(md.String()), 0o644); err != nil {
		return Output{}, fmt.Errorf("write markdown: %w", err)
	}

	logger.Info("📄 Extracted %d text items from %d pages of %s", len(items), r.NumPage(), name)
	return Output{
		Document:    name,
		Dir:         dir,
		ContentList: listPath,
		Markdown:    mdPath,
		Duration:    time.Since(start),
	}, nil
}

// Paragraphs groups the lines of page text. A paragraph ends at a blank
// line or after a line ending in sentence punctuation.
func Paragraphs(text string) []string {
	var (
		out     []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
		if strings.ContainsAny(line[len(line)-1:], ".?!:") || strings.HasSuffix(line, "。") {
			flush()
		}
	}
	flush()
	return out
}

// firstLine splits off the first non-blank line of text.
func firstLine(text string) (line, rest string) {
	for text != "" {
		line, text, _ = strings.Cut(text, "\n")
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			return line, text
		}
	}
	return "", ""
}
