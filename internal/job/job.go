// Package job carries the progress of one document run through the
// pipeline. A Context is created by the caller and passed down explicitly.
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StagePending   Stage = "pending"
	StageExtract   Stage = "extract"
	StageTranslate Stage = "translate"
	StageIndex     Stage = "index"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

type Update struct {
	JobID    string
	Document string
	Stage    Stage
	Percent  int
	Message  string
	At       time.Time
}

// Observer receives every update. It runs on the reporting goroutine and
// must not block.
type Observer func(Update)

type Context struct {
	id       string
	document string
	observer Observer

	mu   sync.Mutex
	last Update
}

func New(document string, observer Observer) *Context {
	c := &Context{
		id:       uuid.NewString(),
		document: document,
		observer: observer,
	}
	c.last = Update{JobID: c.id, Document: document, Stage: StagePending, At: time.Now()}
	return c
}

func (c *Context) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Report records progress. Percent is clamped to [0, 100]. A nil Context
// ignores reports so callers without progress needs can pass nil.
func (c *Context) Report(stage Stage, percent int, message string) {
	if c == nil {
		return
	}
	percent = max(0, min(percent, 100))

	c.mu.Lock()
	c.last = Update{
		JobID:    c.id,
		Document: c.document,
		Stage:    stage,
		Percent:  percent,
		Message:  message,
		At:       time.Now(),
	}
	u := c.last
	c.mu.Unlock()

	if c.observer != nil {
		c.observer(u)
	}
}

// Fail marks the job failed with err as the message.
func (c *Context) Fail(err error) {
	if c == nil || err == nil {
		return
	}
	c.Report(StageFailed, c.Snapshot().Percent, err.Error())
}

func (c *Context) Snapshot() Update {
	if c == nil {
		return Update{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Scale maps step i of n onto the percent range [from, to].
func Scale(i, n, from, to int) int {
	if n <= 0 {
		return to
	}
	return from + (to-from)*i/n
}
