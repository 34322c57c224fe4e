package reconstruct

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper_rag/internal/content"
)

func translated(ct content.ContentType, en, zh string) content.RawItem {
	return content.RawItem{
		Type:        "text",
		TextEN:      en,
		TextZH:      zh,
		Translation: &content.TranslationMetadata{Model: "m", ContentType: ct},
	}
}

func paper() []content.RawItem {
	return []content.RawItem{
		translated(content.TypeTitle, "Deep Graphs", "深度圖"),
		translated(content.TypeAbstract, "We study graphs.", "我們研究圖。"),
		translated(content.TypeBody, "As shown in [1] and [12].", "如 [1] 與 [12] 所示。"),
		{Type: "image", ImgPath: "images/fig1.jpg"},
		{Type: "text", TextEN: "Untranslated paragraph."},
		translated(content.TypeReference, "[1] Smith 2020", "[1] Smith 2020"),
		translated(content.TypeReference, "[12] Doe 2021\nno number here\n", "[12] Doe 2021\nno number here\n"),
		{Type: "text"},
	}
}

func TestBuildTranslated(t *testing.T) {
	got := Build(paper(), ModeTranslated)
	want := strings.Join([]string{
		`<a id="content"></a>`,
		"# 深度圖",
		"## Abstract\n\n我們研究圖。",
		"如 [[1]](#ref-1) 與 [[12]](#ref-12) 所示。",
		"![Image](images/fig1.jpg)",
		"Untranslated paragraph.",
		"### References",
		`<a id="ref-1">[1]</a> Smith 2020 [↩](#content)`,
		`<a id="ref-12">[12]</a> Doe 2021 [↩](#content)` + "\nno number here",
	}, "\n\n")
	assert.Equal(t, want, got)
}

func TestBuildOrigin(t *testing.T) {
	got := Build(paper(), ModeOrigin)
	assert.Contains(t, got, "# Deep Graphs")
	assert.Contains(t, got, "## Abstract\n\nWe study graphs.")
	assert.Contains(t, got, "As shown in [[1]](#ref-1)")
	assert.Equal(t, 1, strings.Count(got, "### References"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("ORIGIN")
	require.NoError(t, err)
	assert.Equal(t, ModeOrigin, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTranslated, m)

	_, err = ParseMode("bilingual")
	assert.Error(t, err)
}

func TestReconstructWritesMarkdownAndImages(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "translated_files", "paper"+content.TranslatedSuffix)
	require.NoError(t, content.WriteList(src, paper()))

	images := filepath.Join(root, "mineru_outputs", "paper", "auto", "images")
	require.NoError(t, os.MkdirAll(images, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(images, "fig1.jpg"), []byte("jpeg"), 0o644))

	r := &Reconstructor{
		OutputDir:  filepath.Join(root, "reconstructed_files"),
		ExtractDir: filepath.Join(root, "mineru_outputs"),
		Method:     "auto",
	}
	mdPath, err := r.Reconstruct(src, ModeTranslated)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "reconstructed_files", "paper", "paper.md"), mdPath)

	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `<a id="content"></a>`))

	copied, err := os.ReadFile(filepath.Join(root, "reconstructed_files", "paper", "images", "fig1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(copied))
}

func TestReconstructWithoutImages(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "paper"+content.TranslatedSuffix)
	require.NoError(t, content.WriteList(src, paper()))

	r := &Reconstructor{OutputDir: root, ExtractDir: filepath.Join(root, "none"), Method: "auto"}
	mdPath, err := r.Reconstruct(src, ModeOrigin)
	require.NoError(t, err)
	assert.FileExists(t, mdPath)
	assert.NoDirExists(t, filepath.Join(root, "paper", "images"))
}

func TestReconstructMissingFile(t *testing.T) {
	r := &Reconstructor{OutputDir: t.TempDir()}
	_, err := r.Reconstruct(filepath.Join(t.TempDir(), "nope_translated.json"), ModeTranslated)
	assert.Error(t, err)
}

func TestRenderHTMLKeepsAnchors(t *testing.T) {
	out, err := RenderHTML(Build(paper(), ModeTranslated))
	require.NoError(t, err)
	assert.Contains(t, out, `<a id="content"></a>`)
	assert.Contains(t, out, `<h1>深度圖</h1>`)
	assert.Contains(t, out, `<a href="#ref-12">[12]</a>`)
	assert.Contains(t, out, `<img src="images/fig1.jpg" alt="Image">`)
}

func TestWriteHTML(t *testing.T) {
	mdPath := filepath.Join(t.TempDir(), "paper.md")
	require.NoError(t, os.WriteFile(mdPath, []byte("# Title\n\ntext"), 0o644))

	htmlPath, err := WriteHTML(mdPath)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(mdPath, ".md")+".html", htmlPath)
	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h1>Title</h1>")
}

func TestAnalyze(t *testing.T) {
	s := Analyze(Build(paper(), ModeTranslated))
	assert.Equal(t, []string{"深度圖", "Abstract", "References"}, s.Headings)
	assert.Equal(t, 1, s.HeadingCounts[1])
	assert.Equal(t, 1, s.HeadingCounts[2])
	assert.Equal(t, 1, s.HeadingCounts[3])
	assert.Equal(t, 1, s.Images)
	// two citation links plus the two back links
	assert.Equal(t, 4, s.Links)
}
