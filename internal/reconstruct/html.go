package reconstruct

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// markdown keeps raw HTML so the reference anchors survive rendering.
var markdown = goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe()))

// RenderHTML converts reconstructed Markdown to an HTML fragment.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// WriteHTML renders the Markdown file at mdPath next to it as .html.
func WriteHTML(mdPath string) (string, error) {
	data, err := os.ReadFile(mdPath)
	if err != nil {
		return "", fmt.Errorf("read markdown: %w", err)
	}
	out, err := RenderHTML(string(data))
	if err != nil {
		return "", err
	}
	htmlPath := strings.TrimSuffix(mdPath, ".md") + ".html"
	if err := os.WriteFile(htmlPath, []byte(out), 0o644); err != nil {
		return "", fmt.Errorf("write html: %w", err)
	}
	return htmlPath, nil
}

// Structure summarises a Markdown document.
type Structure struct {
	Headings      []string
	HeadingCounts map[int]int
	Paragraphs    int
	Images        int
	Links         int
}

// Analyze parses md and counts its headings, paragraphs, images and links.
func Analyze(md string) Structure {
	source := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(source))

	s := Structure{HeadingCounts: make(map[int]int)}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			s.HeadingCounts[node.Level]++
			s.Headings = append(s.Headings, headingText(node, source))
		case *ast.Paragraph:
			s.Paragraphs++
		case *ast.Image:
			s.Images++
		case *ast.Link:
			s.Links++
		}
		return ast.WalkContinue, nil
	})
	return s
}

func headingText(node ast.Node, source []byte) string {
	var buf strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}
