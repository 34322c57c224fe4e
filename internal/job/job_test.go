package job

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportNotifiesObserver(t *testing.T) {
	var got []Update
	c := New("paper", func(u Update) { got = append(got, u) })

	_, err := uuid.Parse(c.ID())
	require.NoError(t, err)
	assert.Equal(t, StagePending, c.Snapshot().Stage)

	c.Report(StageTranslate, 140, "almost")
	c.Report(StageIndex, -5, "start")

	require.Len(t, got, 2)
	assert.Equal(t, 100, got[0].Percent)
	assert.Equal(t, "paper", got[0].Document)
	assert.Equal(t, 0, got[1].Percent)
	assert.Equal(t, StageIndex, c.Snapshot().Stage)

	c.Fail(errors.New("disk full"))
	assert.Equal(t, StageFailed, c.Snapshot().Stage)
	assert.Equal(t, "disk full", c.Snapshot().Message)
}

func TestNilContextIsSafe(t *testing.T) {
	var c *Context
	c.Report(StageDone, 100, "")
	c.Fail(errors.New("x"))
	assert.Empty(t, c.ID())
	assert.Equal(t, Update{}, c.Snapshot())
}

func TestDistinctIDs(t *testing.T) {
	assert.NotEqual(t, New("a", nil).ID(), New("a", nil).ID())
}

func TestScale(t *testing.T) {
	assert.Equal(t, 10, Scale(0, 4, 10, 50))
	assert.Equal(t, 30, Scale(2, 4, 10, 50))
	assert.Equal(t, 50, Scale(4, 4, 10, 50))
	assert.Equal(t, 50, Scale(1, 0, 10, 50))
}
