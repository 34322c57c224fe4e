package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper_rag/internal/llm"
	"paper_rag/internal/llm/llmtest"
)

func newTestService(fake *llmtest.Fake, cfg Config) (*Service, *[]time.Duration) {
	s := New(fake, cfg)
	var mu sync.Mutex
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return nil
	}
	return s, &waits
}

func TestEmbedRetriesWithLinearBackoff(t *testing.T) {
	attempts := 0
	fake := &llmtest.Fake{EmbedFunc: func(text string, _ llm.Purpose) ([]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("timeout")
		}
		return []float32{1, 2}, nil
	}}
	s, waits := newTestService(fake, Config{MaxRetries: 3, RetryDelay: time.Second})

	vec, err := s.Embed(context.Background(), "x", llm.PurposeStore)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestEmbedGivesUp(t *testing.T) {
	fake := &llmtest.Fake{EmbedFunc: func(string, llm.Purpose) ([]float32, error) {
		return nil, errors.New("down")
	}}
	s, waits := newTestService(fake, Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	_, err := s.Embed(context.Background(), "x", llm.PurposeQuery)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, 3, fake.Calls("Embed"))
	assert.Len(t, *waits, 2)
}

func TestEmbedTreatsEmptyVectorAsFailure(t *testing.T) {
	fake := &llmtest.Fake{EmbedFunc: func(string, llm.Purpose) ([]float32, error) {
		return nil, nil
	}}
	s, _ := newTestService(fake, Config{MaxRetries: 2})

	_, err := s.Embed(context.Background(), "x", llm.PurposeQuery)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedPassesPurpose(t *testing.T) {
	var got []llm.Purpose
	fake := &llmtest.Fake{EmbedFunc: func(_ string, p llm.Purpose) ([]float32, error) {
		got = append(got, p)
		return []float32{1}, nil
	}}
	s, _ := newTestService(fake, Config{MaxRetries: 1})

	_, _ = s.Embed(context.Background(), "a", llm.PurposeStore)
	_, _ = s.Func(llm.PurposeQuery)(context.Background(), "b")
	assert.Equal(t, []llm.Purpose{llm.PurposeStore, llm.PurposeQuery}, got)
}

func TestEmbedBatchDropsFailures(t *testing.T) {
	for _, workers := range []int{1, 4} {
		fake := &llmtest.Fake{EmbedFunc: func(text string, _ llm.Purpose) ([]float32, error) {
			if text == "bad" {
				return nil, errors.New("rejected")
			}
			return llmtest.Vector(text), nil
		}}
		s, _ := newTestService(fake, Config{MaxRetries: 2, Concurrency: workers})

		results := s.EmbedBatch(context.Background(), []string{"one", "bad", "three", "four"}, llm.PurposeStore)
		require.Len(t, results, 3)
		assert.Equal(t, []int{0, 2, 3}, []int{results[0].Index, results[1].Index, results[2].Index})
		assert.Equal(t, llmtest.Vector("three"), results[1].Vector)
	}
}

func TestPing(t *testing.T) {
	s := New(&llmtest.Fake{}, Config{})
	assert.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "fake/fake-model", s.Provider())

	s = New(&llmtest.Fake{PingErr: llm.ErrUnavailable}, Config{})
	assert.ErrorIs(t, s.Ping(context.Background()), ErrEmbeddingFailed)
}

func TestEmbedWaitsLongerWhenRateLimited(t *testing.T) {
	attempts := 0
	fake := &llmtest.Fake{EmbedFunc: func(string, llm.Purpose) ([]float32, error) {
		attempts++
		switch attempts {
		case 1:
			return nil, &llm.HTTPError{Provider: "openai", StatusCode: 429}
		case 2:
			return nil, &llm.HTTPError{Provider: "openai", StatusCode: 429, RetryAfter: 10 * time.Second}
		}
		return []float32{1}, nil
	}}
	s, waits := newTestService(fake, Config{MaxRetries: 3, RetryDelay: time.Second})

	_, err := s.Embed(context.Background(), "x", llm.PurposeStore)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 10 * time.Second}, *waits)
}
