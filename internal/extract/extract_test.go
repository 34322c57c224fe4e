package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper_rag/internal/config"
	"paper_rag/internal/content"
)

// buildPDF writes a minimal PDF with one page per entry of pages. Each
// page is a list of text lines, each shown in its own text object.
func buildPDF(t *testing.T, path string, pages ...[]string) {
	t.Helper()
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, lines := range pages {
		var stream strings.Builder
		for j, line := range lines {
			fmt.Fprintf(&stream, "BT /F1 12 Tf 72 %d Td (%s) Tj ET\n", 720-20*j, line)
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", stream.Len(), stream.String()))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

const fakeMinerU = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -p) pdf="$2" ;;
    -o) out="$2" ;;
    -m) method="$2" ;;
  esac
  shift 2
done
name=$(basename "$pdf" .pdf)
dir="$out/$name/$method"
mkdir -p "$dir/images"
echo '[{"type":"text","text":"Hello","text_level":1,"page_idx":0}]' > "$dir/${name}_content_list.json"
echo '# Hello' > "$dir/$name.md"
echo img > "$dir/images/b.jpg"
echo img > "$dir/images/a.jpg"
echo "processing $name"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mineru")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func touchPDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644))
	return path
}

func extractConfig(command string) config.ExtractConfig {
	return config.ExtractConfig{
		Command: command,
		Method:  "auto",
		Backend: "pipeline",
		Lang:    "en",
		Formula: true,
		Table:   false,
		Device:  "cpu",
	}
}

func TestArgs(t *testing.T) {
	m := NewMinerU(extractConfig("mineru"), "/out")
	assert.Equal(t, []string{
		"-p", "/in/paper.pdf",
		"-o", "/out",
		"-m", "auto",
		"-b", "pipeline",
		"-l", "en",
		"-f", "true",
		"-t", "false",
		"-d", "cpu",
	}, m.Args("/in/paper.pdf"))
	assert.Equal(t, filepath.Join("/out", "paper", "auto"), m.OutputDir("/in/paper.pdf"))
}

func TestMinerUExtract(t *testing.T) {
	out := t.TempDir()
	m := NewMinerU(extractConfig(writeScript(t, fakeMinerU)), out)
	require.True(t, m.Available())

	res, err := m.Extract(context.Background(), touchPDF(t, t.TempDir(), "paper"))
	require.NoError(t, err)

	dir := filepath.Join(out, "paper", "auto")
	assert.Equal(t, "paper", res.Document)
	assert.Equal(t, filepath.Join(dir, "paper_content_list.json"), res.ContentList)
	assert.Equal(t, filepath.Join(dir, "paper.md"), res.Markdown)
	assert.Equal(t, filepath.Join(dir, "images"), res.ImagesDir)
	assert.Equal(t, []string{filepath.Join(dir, "images", "a.jpg"), filepath.Join(dir, "images", "b.jpg")}, res.Images)

	items, err := content.ReadList(res.ContentList)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Hello", items[0].Text)
}

func TestMinerUFailureReportsOutput(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho 'model weights missing' >&2\nexit 3\n")
	m := NewMinerU(extractConfig(script), t.TempDir())

	_, err := m.Extract(context.Background(), touchPDF(t, t.TempDir(), "paper"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "model weights missing")
}

func TestMinerUMissingOutput(t *testing.T) {
	m := NewMinerU(extractConfig(writeScript(t, "#!/bin/sh\nexit 0\n")), t.TempDir())
	_, err := m.Extract(context.Background(), touchPDF(t, t.TempDir(), "paper"))
	assert.ErrorIs(t, err, ErrNoContentList)
}

func TestMinerUToolNotFound(t *testing.T) {
	m := NewMinerU(extractConfig("definitely-not-installed-mineru"), t.TempDir())
	assert.False(t, m.Available())

	_, err := m.Extract(context.Background(), touchPDF(t, t.TempDir(), "paper"))
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := NewMinerU(extractConfig("mineru"), t.TempDir()).Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotPDF)
	_, err = NewNative(t.TempDir()).Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestLocateSearchesBelowDocument(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "paper", "vlm")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paper_content_list.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.md"), []byte("#"), 0o644))

	out, err := Locate(root, "paper", "auto")
	require.NoError(t, err)
	assert.Equal(t, dir, out.Dir)
	assert.Equal(t, filepath.Join(dir, "other.md"), out.Markdown)
	assert.Empty(t, out.ImagesDir)

	_, err = Locate(root, "missing", "auto")
	assert.ErrorIs(t, err, ErrNoContentList)
}

func TestNativeExtract(t *testing.T) {
	in := filepath.Join(t.TempDir(), "paper.pdf")
	buildPDF(t, in,
		[]string{"Deep Graphs", "We study graphs.", "It works", "well."},
		[]string{"Second page text"},
	)
	out := t.TempDir()

	res, err := NewNative(out).Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "paper", NativeMethod, "paper_content_list.json"), res.ContentList)

	items, err := content.ReadList(res.ContentList)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, content.RawItem{Type: "text", Text: "Deep Graphs", TextLevel: 1, PageIdx: 0}, items[0])
	assert.Equal(t, "We study graphs.", items[1].Text)
	assert.Equal(t, "It works well.", items[2].Text)
	assert.Equal(t, content.RawItem{Type: "text", Text: "Second page text", PageIdx: 1}, items[3])

	md, err := os.ReadFile(res.Markdown)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# Deep Graphs\n\nWe study graphs."))
}

func TestFallbackUsesNative(t *testing.T) {
	in := filepath.Join(t.TempDir(), "paper.pdf")
	buildPDF(t, in, []string{"Title", "Body text."})

	cfg := extractConfig("definitely-not-installed-mineru")
	cfg.Fallback = true
	ex := New(cfg, t.TempDir())
	assert.Equal(t, "mineru+native", ex.Name())

	res, err := ex.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, NativeMethod, filepath.Base(res.Dir))

	cfg.Fallback = false
	_, err = New(cfg, t.TempDir()).Extract(context.Background(), in)
	assert.True(t, errors.Is(err, ErrToolNotFound))

	assert.Equal(t, NativeMethod, New(extractConfig(NativeMethod), t.TempDir()).Name())
}

func TestParagraphs(t *testing.T) {
	got := Paragraphs("\nFirst line\ncontinues here.\n\n  spaced   out  \nQuestion?\n")
	assert.Equal(t, []string{"First line continues here.", "spaced out Question?"}, got)
	assert.Empty(t, Paragraphs("\n \n"))
}
