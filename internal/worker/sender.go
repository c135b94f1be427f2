package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// ContentTypeActivity is the media type remote inboxes expect.
	ContentTypeActivity = "application/activity+json"

	DefaultSendTimeout = 10 * time.Second
)

// Sender POSTs a serialized activity to an inbox.
type Sender interface {
	Send(ctx context.Context, inboxURL string, body []byte) error
}

// PermanentError is a rejection that retrying will not fix (4xx other than 408 and 429).
// A malformed inbox URL is permanent too.
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return "undeliverable: " + e.Err.Error()
	}
	return fmt.Sprintf("inbox rejected delivery: status %d", e.StatusCode)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// HTTPSender delivers activities over plain HTTP.
type HTTPSender struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSender creates a sender whose requests time out after timeout.
func NewHTTPSender(timeout time.Duration, userAgent string) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &HTTPSender{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (s *HTTPSender) Send(ctx context.Context, inboxURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inboxURL, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Err: err}
	}
	req.Header.Set("Content-Type", ContentTypeActivity)
	req.Header.Set("Accept", ContentTypeActivity)
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", inboxURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("post %s: status %d", inboxURL, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PermanentError{StatusCode: resp.StatusCode}
	default:
		return fmt.Errorf("post %s: status %d", inboxURL, resp.StatusCode)
	}
}
