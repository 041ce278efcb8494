// Package translate obtains machine translations for catalog entries and
// orchestrates the synchronization of catalog pairs: classification, service
// calls with retry and rate-limit handling, and atomic catalog writes.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Service translates a single text between two languages.
type Service interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// DefaultEndpoint is the translation API endpoint used when none is
// configured.
const DefaultEndpoint = "https://translate.yandex.net/api/v1.5/tr.json/translate"

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
)

// Client is a Service backed by the Yandex Translate HTTP API.
type Client struct {
	// APIKey authenticates requests. Required.
	APIKey string
	// Endpoint overrides DefaultEndpoint.
	Endpoint string
	// Proxy is an optional proxy URL; when empty, the standard proxy
	// environment variables apply.
	Proxy string
	// Timeout is the per-request timeout. Zero means 60s.
	Timeout time.Duration
	// MaxRetries is the retry budget for rate limiting and transient
	// failures. Zero means 3.
	MaxRetries int
	// Verbose enables request-level debug logging.
	Verbose bool

	rl       rateLimitState
	httpOnce sync.Once
	http     *http.Client
}

// apiResponse is the service's JSON envelope. A failure is reported through
// Code and Message even when the HTTP status is 200.
type apiResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Text    []string `json:"text"`
}

// Translate requests one translation, retrying transient failures with
// exponential backoff. A 429 pauses all concurrent requests through a shared
// rate-limit state so parallel workers back off together.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	c.httpOnce.Do(func() {
		c.http = makeHTTPClient(c.Proxy, c.effectiveTimeout())
	})

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	form := url.Values{
		"key":  {c.APIKey},
		"text": {text},
		"lang": {sourceLang + "-" + targetLang},
	}
	body := form.Encode()

	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rl.waitIfPaused(ctx); err != nil {
			return "", err
		}

		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if serr, ok := lastErr.(*ServiceError); ok && serr.Kind == KindRateLimited {
				wait = parseRetryDelay(serr.Message)
				c.rl.pause(wait)
			}
			if c.Verbose {
				log.Printf("[DEBUG] retrying in %v (attempt %d/%d): %v", wait, attempt, maxRetries, lastErr)
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
			c.rl.unpause()
		}

		result, err := c.doRequest(ctx, endpoint, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if serr, ok := err.(*ServiceError); ok && !serr.Retryable() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", lastErr
}

func (c *Client) doRequest(ctx context.Context, endpoint, body string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if c.Verbose {
		log.Printf("[DEBUG] POST %s (%d bytes)", endpoint, len(body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ServiceError{Kind: KindUnavailable, Message: err.Error()}
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &ServiceError{
			Kind:    KindRateLimited,
			Code:    resp.StatusCode,
			Message: resp.Header.Get("Retry-After"),
		}
	}
	if resp.StatusCode >= 500 {
		return "", &ServiceError{
			Kind:    KindUnavailable,
			Code:    resp.StatusCode,
			Message: truncate(string(respBody), 200),
		}
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ServiceError{
			Kind:    KindUnavailable,
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("invalid response: %v", err),
		}
	}

	if parsed.Code != 0 && parsed.Code != http.StatusOK {
		return "", &ServiceError{
			Kind:    kindForCode(parsed.Code),
			Code:    parsed.Code,
			Message: parsed.Message,
		}
	}
	if len(parsed.Text) == 0 {
		return "", &ServiceError{
			Kind:    KindUnprocessableText,
			Code:    resp.StatusCode,
			Message: "empty translation result",
		}
	}

	return parsed.Text[0], nil
}

func (c *Client) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// parseRetryDelay interprets a Retry-After value; it falls back to 30s when
// the header is absent or unparseable.
func parseRetryDelay(retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 30 * time.Second
}

// rateLimitState coordinates a shared pause across workers after a 429, so
// a rate limit hit by one request stops the others from piling on.
type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseEnd = time.Now().Add(duration)
	atomic.StoreInt32(&r.paused, 1)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the rate limit pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()
		if remaining <= 0 {
			r.unpause()
			return nil
		}
		if remaining > 100*time.Millisecond {
			remaining = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
		}
	}
	return nil
}

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
