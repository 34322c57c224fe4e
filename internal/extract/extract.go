// Package extract turns PDFs into content lists, either through the
// MinerU command line tool or, when it is not installed, through a plain
// text extraction fallback.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"paper_rag/internal/config"
	"paper_rag/internal/logger"
)

const contentListSuffix = "_content_list.json"

var (
	ErrToolNotFound  = errors.New("extraction tool not found")
	ErrNoContentList = errors.New("no content list in extraction output")
	ErrNotPDF        = errors.New("input is not a PDF file")
)

// Output lists the files an extraction produced.
type Output struct {
	Document    string
	Dir         string
	ContentList string
	Markdown    string
	ImagesDir   string
	Images      []string
	Duration    time.Duration
}

type Extractor interface {
	Name() string
	Extract(ctx context.Context, pdfPath string) (Output, error)
}

// New returns the MinerU extractor, wrapped with the native fallback when
// cfg.Fallback is set. The command name "native" selects the native
// extractor alone.
func New(cfg config.ExtractConfig, outputRoot string) Extractor {
	if cfg.Command == NativeMethod {
		return NewNative(outputRoot)
	}
	primary := NewMinerU(cfg, outputRoot)
	if !cfg.Fallback {
		return primary
	}
	return &fallback{primary: primary, secondary: NewNative(outputRoot)}
}

type fallback struct {
	primary   Extractor
	secondary Extractor
}

func (f *fallback) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *fallback) Extract(ctx context.Context, pdfPath string) (Output, error) {
	out, err := f.primary.Extract(ctx, pdfPath)
	if errors.Is(err, ErrToolNotFound) {
		logger.Warn("⚠️ %v, falling back to %s extraction", err, f.secondary.Name())
		return f.secondary.Extract(ctx, pdfPath)
	}
	return out, err
}

// DocumentName is the PDF base name without extension.
func DocumentName(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func checkPDF(pdfPath string) error {
	if !strings.EqualFold(filepath.Ext(pdfPath), ".pdf") {
		return fmt.Errorf("%w: %s", ErrNotPDF, pdfPath)
	}
	info, err := os.Stat(pdfPath)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotPDF, pdfPath)
	}
	return nil
}

// Locate finds the files produced for document name below root. It looks
// in <root>/<name>/<method> first and then anywhere below <root>/<name>.
func Locate(root, name, method string) (Output, error) {
	out := Output{Document: name, Dir: filepath.Join(root, name, method)}

	want := filepath.Join(out.Dir, name+contentListSuffix)
	if fileExists(want) {
		out.ContentList = want
	} else {
		found, err := findFile(filepath.Join(root, name), func(p string) bool {
			return strings.HasSuffix(p, contentListSuffix)
		})
		if err != nil || found == "" {
			return out, fmt.Errorf("%w for %s under %s", ErrNoContentList, name, root)
		}
		out.ContentList = found
		out.Dir = filepath.Dir(found)
	}

	if md := filepath.Join(out.Dir, name+".md"); fileExists(md) {
		out.Markdown = md
	} else if found, _ := findFile(out.Dir, func(p string) bool { return filepath.Ext(p) == ".md" }); found != "" {
		out.Markdown = found
	}

	images := filepath.Join(out.Dir, "images")
	if entries, err := os.ReadDir(images); err == nil {
		out.ImagesDir = images
		for _, e := range entries {
			if e.Type().IsRegular() {
				out.Images = append(out.Images, filepath.Join(images, e.Name()))
			}
		}
		sort.Strings(out.Images)
	}
	return out, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// findFile returns the lexically first file below dir accepted by match.
func findFile(dir string, match func(string) bool) (string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && match(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", nil
	}
	sort.Strings(found)
	return found[0], nil
}
