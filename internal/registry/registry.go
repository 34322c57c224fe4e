// Package registry records how far each document has progressed through
// the pipeline so an interrupted run can resume at the right stage.
package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

var ErrNotFound = errors.New("document not found in registry")

type Stage string

const (
	StageUploaded   Stage = "uploaded"
	StageExtracted  Stage = "extracted"
	StageTranslated Stage = "translated"
	StageIndexed    Stage = "indexed"
)

var stageRank = map[Stage]int{
	StageUploaded:   1,
	StageExtracted:  2,
	StageTranslated: 3,
	StageIndexed:    4,
}

// Reached reports whether s is at or past other.
func (s Stage) Reached(other Stage) bool {
	return stageRank[s] >= stageRank[other]
}

func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

type Document struct {
	Name           string
	PDFPath        string
	Stage          Stage
	ContentList    string
	TranslatedPath string
	MarkdownPath   string
	Collection     string
	JobID          string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Registry struct {
	db   *sql.DB
	path string
}

// Open opens or creates the registry database at path. An empty path
// opens a private in-memory database.
func Open(path string) (*Registry, error) {
	dsn := "file::memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating registry directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	if path == "" {
		// every pooled connection would get its own memory database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}
	return &Registry{db: db, path: path}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) Path() string {
	return r.path
}

// Save inserts or updates doc. CreatedAt is kept from the first save.
func (r *Registry) Save(ctx context.Context, doc Document) error {
	if doc.Name == "" {
		return errors.New("registry: document name is empty")
	}
	if !doc.Stage.Valid() {
		return fmt.Errorf("registry: invalid stage %q", doc.Stage)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (name, pdf_path, stage, content_list, translated_path,
			markdown_path, collection, job_id, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			pdf_path = excluded.pdf_path,
			stage = excluded.stage,
			content_list = excluded.content_list,
			translated_path = excluded.translated_path,
			markdown_path = excluded.markdown_path,
			collection = excluded.collection,
			job_id = excluded.job_id,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, doc.Name, doc.PDFPath, string(doc.Stage), doc.ContentList, doc.TranslatedPath,
		doc.MarkdownPath, doc.Collection, doc.JobID, doc.LastError, now, now)
	if err != nil {
		return fmt.Errorf("saving document %s: %w", doc.Name, err)
	}
	return nil
}

// Advance moves an existing document to stage and clears its last error.
func (r *Registry) Advance(ctx context.Context, name string, stage Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("registry: invalid stage %q", stage)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET stage = ?, last_error = '', updated_at = ? WHERE name = ?
	`, string(stage), time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("advancing document %s: %w", name, err)
	}
	return checkAffected(res, name)
}

// MarkFailed stores the error of the last run without changing the stage.
func (r *Registry) MarkFailed(ctx context.Context, name string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET last_error = ?, updated_at = ? WHERE name = ?
	`, msg, time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("marking document %s failed: %w", name, err)
	}
	return checkAffected(res, name)
}

func (r *Registry) Get(ctx context.Context, name string) (*Document, error) {
	row := r.db.QueryRowContext(ctx, selectDocument+` WHERE name = ?`, name)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns all documents ordered by name.
func (r *Registry) List(ctx context.Context) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx, selectDocument+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *Registry) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", name, err)
	}
	return checkAffected(res, name)
}

const selectDocument = `
	SELECT name, pdf_path, stage, content_list, translated_path,
		markdown_path, collection, job_id, last_error, created_at, updated_at
	FROM documents`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*Document, error) {
	var (
		doc                  Document
		stage                string
		createdAt, updatedAt string
	)
	err := s.Scan(&doc.Name, &doc.PDFPath, &stage, &doc.ContentList, &doc.TranslatedPath,
		&doc.MarkdownPath, &doc.Collection, &doc.JobID, &doc.LastError, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Stage = Stage(stage)
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &doc, nil
}

func checkAffected(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking result for %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}
