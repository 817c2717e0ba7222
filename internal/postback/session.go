package postback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/ternarybob/messis/internal/common"
)

// HTTPError is a non-success status from the catalog. Server-side statuses
// are retryable; client-side ones are not.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Session is one authenticated-by-cookie conversation with the catalog
// server. Form-state servers key their per-visitor state to the session
// cookie, so each traversal gets its own Session and its own jar; sharing
// one across traversals would cross-contaminate server state.
//
// An optional shared rate limiter paces requests across all sessions.
type Session struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewLimiter builds the shared pacing limiter from config, or nil when
// pacing is disabled.
func NewLimiter(config common.HTTPConfig) *rate.Limiter {
	if config.RequestsPerSecond <= 0 {
		return nil
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
}

// NewSession creates a session with a fresh cookie jar. The limiter may be
// shared across many sessions or nil.
func NewSession(config common.HTTPConfig, limiter *rate.Limiter) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := resty.New().
		SetCookieJar(jar).
		SetTimeout(config.RequestTimeout).
		SetHeader("User-Agent", config.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &Session{
		client:  client,
		limiter: limiter,
	}, nil
}

// GetPage fetches a landing page, establishing the session cookie and
// yielding the first token set of the conversation.
func (s *Session) GetPage(ctx context.Context, pageURL string) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", pageURL, err)
	}

	return s.checkResponse(resp, pageURL)
}

// PostForm submits a postback payload and returns the response body.
func (s *Session) PostForm(ctx context.Context, pageURL string, form url.Values) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		Post(pageURL)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", pageURL, err)
	}

	return s.checkResponse(resp, pageURL)
}

func (s *Session) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (s *Session) checkResponse(resp *resty.Response, pageURL string) ([]byte, error) {
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), URL: pageURL}
	}
	return resp.Body(), nil
}
