package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sender performs best-effort JSON POST delivery to subscriber callbacks:
// a bounded per-attempt timeout, a fixed number of attempts, and
// exponential backoff between them. Exhausting the attempts drops the
// payload; nothing is requeued.
type Sender struct {
	client     *http.Client
	maxRetries int

	// wait sleeps for the backoff delay, returning false if ctx was
	// cancelled first. Injectable so tests don't sleep.
	wait func(ctx context.Context, d time.Duration) bool
}

// NewSender builds a Sender with the given per-attempt timeout and total
// attempt count.
func NewSender(timeout time.Duration, maxRetries int) *Sender {
	return &Sender{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		wait:       waitFor,
	}
}

// waitFor blocks for d or until ctx is cancelled.
func waitFor(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// backoffDelay returns the sleep before the retry following attempt
// (zero-based): 2^attempt seconds.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// delivered reports whether status counts as a successful delivery.
func delivered(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	return false
}

// Send POSTs payload to callbackURI, retrying on timeout, connection
// error, or a non-2xx status. It returns a non-nil error only after all
// attempts are exhausted. Client errors (4xx) are retried like transient
// ones: this pipeline makes no distinction.
func (s *Sender) Send(ctx context.Context, callbackURI string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := s.post(ctx, callbackURI, body); err == nil {
			slog.Debug("notify: delivered", "callback", callbackURI, "attempt", attempt+1)
			return nil
		} else {
			slog.Warn("notify: delivery attempt failed",
				"callback", callbackURI, "attempt", attempt+1, "err", err)
		}

		// No sleep after the final attempt.
		if attempt < s.maxRetries-1 {
			if !s.wait(ctx, backoffDelay(attempt)) {
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("notify: delivery to %s failed after %d attempts", callbackURI, s.maxRetries)
}

// post performs one delivery attempt.
func (s *Sender) post(ctx context.Context, uri string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if !delivered(resp.StatusCode) {
		return fmt.Errorf("callback returned HTTP %d", resp.StatusCode)
	}
	return nil
}
