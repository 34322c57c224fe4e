package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPError is returned for non-2xx provider responses.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
	// RetryAfter is the wait the provider asked for on a 429, if any.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap lets callers match rate limiting with errors.Is.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// send issues a JSON request and returns the response when the status is
// 2xx. The caller owns the body.
func send(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		httpErr := &HTTPError{Provider: provider, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
		if resp.StatusCode == http.StatusTooManyRequests {
			httpErr.RetryAfter = retryAfter(resp.Header, time.Now())
		}
		return nil, httpErr
	}
	return resp, nil
}

// doJSON sends payload and decodes the JSON response into out.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, payload, out any) error {
	resp, err := send(ctx, client, provider, method, url, headers, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
