// Package translator translates extracted content lists item by item
// through a multi-turn LLM session, checkpointing progress so that an
// interrupted job resumes where it stopped.
package translator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"paper_rag/internal/config"
	"paper_rag/internal/content"
	"paper_rag/internal/job"
	"paper_rag/internal/llm"
	"paper_rag/internal/logger"
)

const (
	progressSuffix = "_progress.json"
	sessionTurns   = 5
)

type Config struct {
	TargetLanguage  string
	CheckpointEvery int
	MaxRetries      int
	RetryDelay      time.Duration
	RequestsPerSec  float64

	// OutputDir receives <name>_translated.json, ProgressDir holds the
	// checkpoints of unfinished jobs.
	OutputDir   string
	ProgressDir string
}

// ConfigFrom maps the application configuration onto translator settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		TargetLanguage:  cfg.Translator.TargetLanguage,
		CheckpointEvery: cfg.Translator.CheckpointEvery,
		MaxRetries:      cfg.Translator.MaxRetries,
		RetryDelay:      cfg.Translator.RetryDelay,
		RequestsPerSec:  cfg.Translator.RequestsPerSec,
		OutputDir:       cfg.TranslatedDir(),
		ProgressDir:     cfg.ProgressDir(),
	}
}

// Translator owns one LLM session and one term dictionary. Jobs on the
// same Translator must not run concurrently.
type Translator struct {
	provider llm.Provider
	prompts  config.Prompts
	cfg      Config
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error

	classifier content.Classifier
}

func New(provider llm.Provider, prompts config.Prompts, cfg Config) *Translator {
	if cfg.CheckpointEvery < 1 {
		cfg.CheckpointEvery = 10
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "Traditional Chinese"
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &Translator{
		provider: provider,
		prompts:  prompts,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		sleep:    llm.Sleep,
	}
}

// IsAvailable reports whether the translation model answers.
func (t *Translator) IsAvailable(ctx context.Context) bool {
	return llm.IsAvailable(ctx, t.provider)
}

func (t *Translator) ProgressPath(name string) string {
	return filepath.Join(t.cfg.ProgressDir, name+progressSuffix)
}

func (t *Translator) OutputPath(name string) string {
	return filepath.Join(t.cfg.OutputDir, name+content.TranslatedSuffix)
}

// State reports where the job for document name stands.
func (t *Translator) State(name string) (State, error) {
	cp, err := loadCheckpoint(t.ProgressPath(name))
	if err != nil {
		return "", err
	}
	if cp != nil {
		return StateInProgress, nil
	}
	if _, err := os.Stat(t.OutputPath(name)); err == nil {
		return StateDone, nil
	}
	return StateNotStarted, nil
}

// TranslateFile translates the content list at contentListPath and returns
// the path of the translated file. Items that still fail after retries
// are left untranslated. Cancelling ctx saves a checkpoint first.
func (t *Translator) TranslateFile(ctx context.Context, contentListPath string, jc *job.Context) (string, error) {
	name := content.DocumentName(contentListPath)
	progressPath := t.ProgressPath(name)

	if !t.IsAvailable(ctx) {
		return "", fmt.Errorf("%w: translation model %s", llm.ErrUnavailable, t.provider.Model())
	}

	cp, err := loadCheckpoint(progressPath)
	if err != nil {
		return "", err
	}
	if cp != nil {
		logger.Info("📂 Resuming translation of %s: %d items left", name, cp.Remaining())
	} else {
		items, err := content.ReadList(contentListPath)
		if err != nil {
			return "", err
		}
		if len(items) == 0 {
			return "", fmt.Errorf("%s: %w", contentListPath, content.ErrEmptyContent)
		}
		cp = &Checkpoint{ContentList: items, TermDictionary: map[string]string{}}
		logger.Info("📝 Translating %s: %d items", name, cp.Remaining())
	}
	cp.TranslatorModel = t.provider.Model()
	if err := cp.save(progressPath); err != nil {
		return "", err
	}

	session := llm.NewSession(t.provider, config.Render(t.prompts.TranslateSystem, map[string]string{
		"target_language": t.cfg.TargetLanguage,
	}))
	session.SetMaxTurns(sessionTurns)
	defer session.End()

	terms := Terms(cp.TermDictionary)
	classifier := &t.classifier
	classifier.Reset()
	total := len(cp.ContentList)
	translated, failed := 0, 0

	for i := range cp.ContentList {
		item := &cp.ContentList[i]
		if !item.IsText() {
			continue
		}
		// classify every text item so the reference-section state is
		// rebuilt on resume
		ct := classifier.Classify(*item)
		if !pending(*item) {
			continue
		}

		out, err := t.translateItem(ctx, session, terms, item.Text, ct)
		if err != nil {
			if ctx.Err() != nil {
				if saveErr := cp.save(progressPath); saveErr != nil {
					logger.Error("save checkpoint of %s: %v", name, saveErr)
				}
				return "", fmt.Errorf("translation of %s interrupted: %w", name, ctx.Err())
			}
			failed++
			logger.Error("❌ skipping item %d of %s (page %d): %v", i, name, item.PageIdx+1, err)
			continue
		}

		item.TextEN = item.Text
		item.TextZH = out
		item.Translation = &content.TranslationMetadata{
			Model:       t.provider.Model(),
			Timestamp:   time.Now().UTC(),
			ContentType: ct,
		}
		terms.Learn(item.Text, out)
		translated++
		logger.Debug("translated %d/%d (page %d)", i+1, total, item.PageIdx+1)

		if translated%t.cfg.CheckpointEvery == 0 {
			if err := cp.save(progressPath); err != nil {
				return "", err
			}
			logger.Info("💾 Checkpoint %d saved for %s", cp.Sequence, name)
		}
		jc.Report(job.StageTranslate, job.Scale(i+1, total, 0, 100),
			fmt.Sprintf("translated item %d/%d", i+1, total))
	}

	for i := range cp.ContentList {
		cp.ContentList[i].Text = ""
	}
	outPath := t.OutputPath(name)
	if err := content.WriteList(outPath, cp.ContentList); err != nil {
		return "", err
	}
	if err := os.Remove(progressPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove progress file %s: %v", progressPath, err)
	}

	jc.Report(job.StageTranslate, 100, fmt.Sprintf("translated %d items, %d skipped", translated, failed))
	logger.Info("✅ Translation of %s done: %d translated, %d skipped -> %s", name, translated, failed, outPath)
	return outPath, nil
}

// translateItem retries with a doubling delay between attempts.
func (t *Translator) translateItem(ctx context.Context, session *llm.Session, terms Terms, text string, ct content.ContentType) (string, error) {
	prompt := config.Render(t.prompts.TranslateItem, map[string]string{
		"content_type": string(ct),
		"text":         text,
		"terms":        terms.Relevant(text),
	})

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxRetries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}

		out, err := session.Send(ctx, prompt, false)
		out = strings.TrimSpace(out)
		if err == nil && out != "" {
			return out, nil
		}
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err

		logger.Warn("⚠️ translation attempt %d/%d failed: %v", attempt, t.cfg.MaxRetries, err)
		if attempt == t.cfg.MaxRetries {
			break
		}
		if err := t.sleep(ctx, llm.Backoff(err, t.cfg.RetryDelay<<(attempt-1))); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", t.cfg.MaxRetries, lastErr)
}
