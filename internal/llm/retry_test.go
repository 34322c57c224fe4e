package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base := time.Second
	limited := &HTTPError{StatusCode: http.StatusTooManyRequests}

	assert.Equal(t, base, Backoff(errors.New("timeout"), base))
	assert.Equal(t, base, Backoff(&HTTPError{StatusCode: http.StatusInternalServerError}, base))
	assert.Equal(t, 2*base, Backoff(limited, base))
	assert.Equal(t, 2*base, Backoff(fmt.Errorf("embed: %w", limited), base))

	limited.RetryAfter = 30 * time.Second
	assert.Equal(t, 30*time.Second, Backoff(fmt.Errorf("embed: %w", limited), base))

	limited.RetryAfter = time.Second
	assert.Equal(t, 2*base, Backoff(limited, base))
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	header := func(v string) http.Header {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		return h
	}

	assert.Equal(t, time.Duration(0), retryAfter(header(""), now))
	assert.Equal(t, 7*time.Second, retryAfter(header("7"), now))
	assert.Equal(t, maxRetryAfter, retryAfter(header("3600"), now))
	assert.Equal(t, 20*time.Second, retryAfter(header(now.Add(20*time.Second).Format(http.TimeFormat)), now))
	assert.Equal(t, time.Duration(0), retryAfter(header(now.Add(-time.Minute).Format(http.TimeFormat)), now))
	assert.Equal(t, time.Duration(0), retryAfter(header("soon"), now))
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
