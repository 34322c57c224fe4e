package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paper_rag/internal/content"
)

// CheckpointVersion is the schema version written into progress files.
const CheckpointVersion = 1

var ErrBadCheckpoint = errors.New("unreadable translation checkpoint")

type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateDone       State = "done"
)

// Checkpoint is the serialized form of an unfinished translation job.
// Sequence counts the saves of the current job.
type Checkpoint struct {
	Version         int               `json:"version"`
	State           State             `json:"state"`
	Sequence        int               `json:"sequence"`
	ContentList     []content.RawItem `json:"content_list"`
	SaveTime        time.Time         `json:"save_time"`
	TermDictionary  map[string]string `json:"term_dictionary"`
	TranslatorModel string            `json:"translator_model"`
}

// Remaining counts the text items still waiting for a translation.
func (c *Checkpoint) Remaining() int {
	n := 0
	for _, item := range c.ContentList {
		if pending(item) {
			n++
		}
	}
	return n
}

func pending(item content.RawItem) bool {
	return item.IsText() && !item.IsTranslated() && item.Text != ""
}

// loadCheckpoint returns (nil, nil) when no progress file exists.
func loadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrBadCheckpoint, path, err)
	}
	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w %s: schema version %d, want %d", ErrBadCheckpoint, path, cp.Version, CheckpointVersion)
	}
	if cp.TermDictionary == nil {
		cp.TermDictionary = map[string]string{}
	}
	return &cp, nil
}

// save replaces the progress file atomically via a sibling temp file.
func (c *Checkpoint) save(path string) error {
	c.Version = CheckpointVersion
	c.State = StateInProgress
	c.Sequence++
	c.SaveTime = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".progress-*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
