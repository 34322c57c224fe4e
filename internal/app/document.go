package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"paper_rag/internal/extract"
	"paper_rag/internal/logger"
	"paper_rag/internal/registry"
)

// BatchItem is the outcome for one PDF of a batch.
type BatchItem struct {
	Path     string
	Document string
	Result   Result
}

type BatchReport struct {
	Items      []BatchItem
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// ProcessBatch runs several PDFs through the pipeline. Extractions run in
// parallel up to the configured limit; translation and indexing share one
// translator session and run one document at a time.
func (a *App) ProcessBatch(ctx context.Context, pdfPaths []string) BatchReport {
	report := BatchReport{Items: make([]BatchItem, len(pdfPaths)), StartedAt: time.Now()}
	for i, p := range pdfPaths {
		report.Items[i] = BatchItem{Path: p, Document: extract.DocumentName(p)}
	}
	if err := a.ready(); err != nil {
		for i := range report.Items {
			report.Items[i].Result = failed("batch", err)
		}
		report.Failed = len(report.Items)
		report.FinishedAt = time.Now()
		return report
	}

	limit := a.cfg.Extract.Concurrency
	if limit < 1 {
		limit = 1
	}
	logger.Info("📦 Batch of %d documents, %d extractions at a time", len(pdfPaths), limit)

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range report.Items {
		item := &report.Items[i]
		g.Go(func() error {
			if ctx.Err() != nil || a.extracted(ctx, item.Document) {
				return nil
			}
			if res := a.Extract(ctx, item.Path); !res.Success {
				item.Result = res
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range report.Items {
		item := &report.Items[i]
		if item.Result.Message == "" {
			if err := ctx.Err(); err != nil {
				item.Result = failed(fmt.Sprintf("processing %s", item.Document), err)
			} else {
				item.Result = a.FromPDFToRAG(ctx, item.Path)
			}
		}
		if item.Result.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.FinishedAt = time.Now()

	logger.Info("📊 Batch finished: ✅ %d added, ❌ %d failed", report.Succeeded, report.Failed)
	return report
}

func (a *App) extracted(ctx context.Context, name string) bool {
	doc, err := a.registry.Get(ctx, name)
	return err == nil && doc.Stage.Reached(registry.StageExtracted) && fileExists(doc.ContentList)
}

// WriteReport saves the batch summary as Markdown.
func (r BatchReport) WriteReport(path string) error {
	var buf strings.Builder

	buf.WriteString("# Batch report\n\n")
	fmt.Fprintf(&buf, "**Started:** %s\n\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&buf, "**Duration:** %s\n\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&buf, "- ✅ Added: %d\n", r.Succeeded)
	fmt.Fprintf(&buf, "- ❌ Failed: %d\n\n", r.Failed)

	buf.WriteString("## Documents\n\n")
	for _, item := range r.Items {
		mark := "✅"
		if !item.Result.Success {
			mark = "❌"
		}
		fmt.Fprintf(&buf, "### %s %s\n\n", mark, item.Document)
		fmt.Fprintf(&buf, "- file: `%s`\n", item.Path)
		fmt.Fprintf(&buf, "- result: %s\n", item.Result.Message)
		if p, ok := item.Result.Data.(Processed); ok {
			fmt.Fprintf(&buf, "- collection: %s\n", p.Collection)
			if p.Ingest != nil {
				fmt.Fprintf(&buf, "- chunks: %d, new: %d, skipped: %d\n", p.Ingest.Chunks, p.Ingest.Inserted, p.Ingest.Skipped())
			}
		}
		buf.WriteString("\n")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}
