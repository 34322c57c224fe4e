package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"paper_rag/internal/content"
	"paper_rag/internal/extract"
	"paper_rag/internal/job"
	"paper_rag/internal/logger"
	"paper_rag/internal/rag"
	"paper_rag/internal/reconstruct"
	"paper_rag/internal/registry"
	"paper_rag/internal/vectorstore"
)

// Result is the uniform outcome of the pipeline operations.
type Result struct {
	Success bool
	Message string
	Data    any
}

func succeed(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

func failed(message string, err error) Result {
	logger.Error("❌ %s: %v", message, err)
	return Result{Message: fmt.Sprintf("%s: %v", message, err)}
}

// Processed is the Data of a successful FromPDFToRAG or AddToRAG.
type Processed struct {
	Document       string
	Collection     string
	JobID          string
	ContentList    string
	TranslatedPath string
	Ingest         *rag.IngestReport
	Duration       time.Duration
}

// FromPDFToRAG runs a PDF through extraction, translation and indexing.
// Stages the registry records as done, and whose output still exists,
// are skipped, so a failed run resumes where it stopped.
func (a *App) FromPDFToRAG(ctx context.Context, pdfPath string) Result {
	if err := a.ready(); err != nil {
		return failed("pipeline", err)
	}
	start := time.Now()
	name := extract.DocumentName(pdfPath)
	jc := job.New(name, a.observer)

	doc, err := a.track(ctx, name, pdfPath, jc.ID())
	if err != nil {
		return failed("registry", err)
	}
	logger.Info("🚀 Processing %s from stage %s (job %s)", name, doc.Stage, jc.ID())

	out, err := a.advance(ctx, doc, jc)
	if err != nil {
		jc.Fail(err)
		if markErr := a.registry.MarkFailed(context.WithoutCancel(ctx), name, err); markErr != nil {
			logger.Warn("⚠️ could not record failure of %s: %v", name, markErr)
		}
		return failed(fmt.Sprintf("processing %s", name), err)
	}

	out.Duration = time.Since(start)
	jc.Report(job.StageDone, 100, "ready for questions")
	logger.Info("✅ %s is ready for questions in collection %s (%s)", name, out.Collection, out.Duration.Round(time.Millisecond))
	return succeed("document added to the knowledge base", out)
}

// track returns the registry entry of name, creating it when missing,
// and records jobID as its current run.
func (a *App) track(ctx context.Context, name, pdfPath, jobID string) (*registry.Document, error) {
	doc, err := a.registry.Get(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		doc = &registry.Document{Name: name, Stage: registry.StageUploaded}
	} else if err != nil {
		return nil, err
	}
	if pdfPath != "" {
		doc.PDFPath = pdfPath
	}
	doc.JobID = jobID
	doc.LastError = ""
	if err := a.registry.Save(ctx, *doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *App) advance(ctx context.Context, doc *registry.Document, jc *job.Context) (Processed, error) {
	out := Processed{Document: doc.Name, JobID: jc.ID()}

	if doc.Stage.Reached(registry.StageExtracted) && fileExists(doc.ContentList) {
		jc.Report(job.StageExtract, 100, "already extracted")
	} else {
		res, err := a.runExtract(ctx, doc.PDFPath, jc)
		if err != nil {
			return out, err
		}
		doc.ContentList = res.ContentList
		doc.Stage = registry.StageExtracted
		if err := a.registry.Save(ctx, *doc); err != nil {
			return out, err
		}
	}
	out.ContentList = doc.ContentList

	if doc.Stage.Reached(registry.StageTranslated) && fileExists(doc.TranslatedPath) {
		jc.Report(job.StageTranslate, 100, "already translated")
	} else {
		path, err := a.translator.TranslateFile(ctx, doc.ContentList, jc)
		if err != nil {
			return out, err
		}
		doc.TranslatedPath = path
		doc.Stage = registry.StageTranslated
		if err := a.registry.Save(ctx, *doc); err != nil {
			return out, err
		}
	}
	out.TranslatedPath = doc.TranslatedPath

	if doc.Stage.Reached(registry.StageIndexed) && a.hasCollection(doc.Collection) {
		jc.Report(job.StageIndex, 100, "already indexed")
	} else {
		report, err := a.engine.StoreDocument(ctx, doc.TranslatedPath, jc)
		if err != nil {
			return out, err
		}
		out.Ingest = &report
		doc.Collection = report.Collection
		doc.Stage = registry.StageIndexed
		if err := a.registry.Save(ctx, *doc); err != nil {
			return out, err
		}
	}
	out.Collection = doc.Collection
	return out, nil
}

func (a *App) runExtract(ctx context.Context, pdfPath string, jc *job.Context) (extract.Output, error) {
	if pdfPath == "" {
		return extract.Output{}, errors.New("no PDF recorded for document")
	}
	jc.Report(job.StageExtract, 0, "extracting with "+a.extractor.Name())
	out, err := a.extractor.Extract(ctx, pdfPath)
	if err != nil {
		return out, err
	}
	jc.Report(job.StageExtract, 100, fmt.Sprintf("extracted %s in %s", filepath.Base(out.ContentList), out.Duration.Round(time.Millisecond)))
	return out, nil
}

// Extract runs only the extraction step for pdfPath.
func (a *App) Extract(ctx context.Context, pdfPath string) Result {
	if err := a.ready(); err != nil {
		return failed("extract", err)
	}
	name := extract.DocumentName(pdfPath)
	jc := job.New(name, a.observer)
	doc, err := a.track(ctx, name, pdfPath, jc.ID())
	if err != nil {
		return failed("registry", err)
	}

	out, err := a.runExtract(ctx, pdfPath, jc)
	if err != nil {
		jc.Fail(err)
		return failed(fmt.Sprintf("extracting %s", name), err)
	}
	doc.ContentList = out.ContentList
	doc.Stage = registry.StageExtracted
	if err := a.registry.Save(ctx, *doc); err != nil {
		return failed("registry", err)
	}
	return succeed("extraction finished", out)
}

// Translate translates an extracted content list.
func (a *App) Translate(ctx context.Context, contentListPath string) Result {
	if err := a.ready(); err != nil {
		return failed("translate", err)
	}
	name := content.DocumentName(contentListPath)
	jc := job.New(name, a.observer)

	path, err := a.translator.TranslateFile(ctx, contentListPath, jc)
	if err != nil {
		jc.Fail(err)
		return failed(fmt.Sprintf("translating %s", name), err)
	}

	doc, err := a.track(ctx, name, "", jc.ID())
	if err != nil {
		return failed("registry", err)
	}
	doc.ContentList = contentListPath
	doc.TranslatedPath = path
	doc.Stage = registry.StageTranslated
	if err := a.registry.Save(ctx, *doc); err != nil {
		return failed("registry", err)
	}
	return succeed("translation finished", path)
}

// AddToRAG indexes a translated content list into the collection named
// after the document.
func (a *App) AddToRAG(ctx context.Context, translatedPath string) Result {
	if err := a.ready(); err != nil {
		return failed("add to knowledge base", err)
	}
	name := content.DocumentName(translatedPath)
	jc := job.New(name, a.observer)

	report, err := a.engine.StoreDocument(ctx, translatedPath, jc)
	if err != nil {
		jc.Fail(err)
		return failed(fmt.Sprintf("indexing %s", name), err)
	}

	doc, err := a.track(ctx, name, "", jc.ID())
	if err != nil {
		return failed("registry", err)
	}
	doc.TranslatedPath = translatedPath
	doc.Collection = report.Collection
	doc.Stage = registry.StageIndexed
	if err := a.registry.Save(ctx, *doc); err != nil {
		return failed("registry", err)
	}
	jc.Report(job.StageDone, 100, "ready for questions")
	return succeed("document added to the knowledge base", Processed{
		Document:       name,
		Collection:     report.Collection,
		JobID:          jc.ID(),
		TranslatedPath: translatedPath,
		Ingest:         &report,
	})
}

// Reconstruction lists the written files, Markdown first, and what the
// Markdown contains.
type Reconstruction struct {
	Files     []string
	Structure reconstruct.Structure
}

// Reconstruct writes the Markdown of a translated document, and its HTML
// rendering when withHTML is set. Data is a Reconstruction.
func (a *App) Reconstruct(ctx context.Context, name string, mode reconstruct.Mode, withHTML bool) Result {
	if err := a.ready(); err != nil {
		return failed("reconstruct", err)
	}
	translated := a.translator.OutputPath(name)
	doc, err := a.registry.Get(ctx, name)
	if err == nil && doc.TranslatedPath != "" {
		translated = doc.TranslatedPath
	}

	mdPath, err := a.reconstructor.Reconstruct(translated, mode)
	if err != nil {
		return failed(fmt.Sprintf("reconstructing %s", name), err)
	}
	md, err := os.ReadFile(mdPath)
	if err != nil {
		return failed(fmt.Sprintf("reading %s", mdPath), err)
	}
	out := Reconstruction{
		Files:     []string{mdPath},
		Structure: reconstruct.Analyze(string(md)),
	}
	if withHTML {
		htmlPath, err := reconstruct.WriteHTML(mdPath)
		if err != nil {
			return failed(fmt.Sprintf("rendering %s", name), err)
		}
		out.Files = append(out.Files, htmlPath)
	}

	if doc != nil {
		doc.MarkdownPath = mdPath
		if err := a.registry.Save(ctx, *doc); err != nil {
			logger.Warn("⚠️ could not record markdown of %s: %v", name, err)
		}
	}
	return succeed("markdown reconstructed", out)
}

// Remove deletes everything the pipeline produced for name: extraction
// output, translation progress and output, reconstructed files, the
// collection and the registry entry. The source PDF is left alone.
func (a *App) Remove(ctx context.Context, name string) Result {
	if err := a.ready(); err != nil {
		return failed("remove", err)
	}

	var errs []error
	for _, path := range []string{
		filepath.Join(a.cfg.ExtractDir(), name),
		a.translator.ProgressPath(name),
		a.translator.OutputPath(name),
		filepath.Join(a.cfg.MarkdownDir(), name),
	} {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logger.Debug("nothing to remove at %s", path)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("🗑️ removed %s", path)
	}

	if err := a.store.DeleteCollection(name); err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		errs = append(errs, err)
	}
	if err := a.registry.Delete(ctx, name); err != nil && !errors.Is(err, registry.ErrNotFound) {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return failed(fmt.Sprintf("removing %s", name), err)
	}
	return succeed(fmt.Sprintf("%s removed", name), nil)
}

// Documents lists the registry entries.
func (a *App) Documents(ctx context.Context) ([]registry.Document, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.registry.List(ctx)
}

func (a *App) hasCollection(name string) bool {
	return name != "" && slices.Contains(a.store.ListCollections(), name)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
