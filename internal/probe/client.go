// Package probe implements the per-upstream-type protocol adapters that
// turn a probe descriptor into a discovered release and a stream of events.
//
// Probes are pure with respect to their chore status: the previous status
// goes in, the new status comes out, and the scheduler owns all writes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gregjones/httpcache"
)

const (
	// UserAgentFormat is instantiated with the release version and the
	// project homepage.
	UserAgentFormat = "Mozilla/5.0 (compatible; PUIS/%s; +%s)"

	Version  = "0.2"
	Homepage = "https://github.com/aosc-dev/puis"

	requestTimeout = 30 * time.Second

	// HardSizeLimit aborts a response body outright.
	HardSizeLimit = 50 << 20
	// SoftSizeLimit is the threshold above which probes skip HTML
	// parsing and fall back to regex extraction.
	SoftSizeLimit = 1 << 20

	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// Sentinel errors of the probe taxonomy.
var (
	ErrNotFound     = errors.New("not found")
	ErrTooLarge     = errors.New("response body too large")
	ErrCannotDetect = errors.New("can't detect upstream")
)

// StatusError is a non-2xx HTTP response. 304 Not Modified never surfaces
// as a StatusError.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPError: %s", e.Status)
}

// Client is the pooled HTTP client shared by all probes. The transport is
// wrapped in an in-memory httpcache so repeated polling of well-behaved
// upstreams turns into conditional requests.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates the shared probe client.
func NewClient() *Client {
	transport := httpcache.NewMemoryCacheTransport()
	transport.Transport = http.DefaultTransport
	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		userAgent: fmt.Sprintf(UserAgentFormat, Version, Homepage),
	}
}

// NewClientWithHTTP wraps an existing http.Client; tests inject a fake
// transport through this.
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{
		httpClient: hc,
		userAgent:  fmt.Sprintf(UserAgentFormat, Version, Homepage),
	}
}

// HTTP exposes the underlying http.Client for libraries that take one.
func (c *Client) HTTP() *http.Client { return c.httpClient }

// Response is a fetched document.
type Response struct {
	Body        []byte
	ETag        string
	NotModified bool
	FinalURL    string
}

// Get fetches url with the fixed User-Agent. A non-empty etag is sent as
// If-None-Match; a 304 answer returns NotModified=true with an empty body.
// The body is read through a streaming cap and aborts with ErrTooLarge past
// the hard limit.
func (c *Client) Get(ctx context.Context, rawURL, etag string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Response{NotModified: true, ETag: etag, FinalURL: resp.Request.URL.String()}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, HardSizeLimit+1))
	if err != nil {
		return nil, err
	}
	if len(body) > HardSizeLimit {
		return nil, ErrTooLarge
	}
	return &Response{
		Body:     body,
		ETag:     resp.Header.Get("ETag"),
		FinalURL: resp.Request.URL.String(),
	}, nil
}

// doWithRetry executes a request with exponential backoff on transient
// network errors. HTTP error responses are not retried.
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// ErrString converts a probe error into the status table representation:
// a "<Kind>: <message>" string, with the well-known short forms preserved.
func ErrString(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrCannotDetect):
		return "can't detect upstream"
	case errors.As(err, &statusErr):
		return statusErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout: " + err.Error()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "Timeout: " + err.Error()
		}
		return "NetworkError: " + err.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "NetworkError: " + urlErr.Error()
	}
	return "Error: " + err.Error()
}
