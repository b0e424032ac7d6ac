package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dashdl/internal/logger"
)

// Sentinel errors for the delivery protocol.
var (
	// ErrDelivery indicates the delivery endpoint was unreachable or
	// returned a response without a signed manifest URL. Not retried
	// here; the caller decides whether to restart manifest acquisition.
	ErrDelivery = errors.New("delivery endpoint error")
	// ErrForbidden indicates a segment request returned HTTP 403, which
	// means the signed delivery URL has expired.
	ErrForbidden = errors.New("segment request forbidden")
	// ErrNotFound indicates a segment request returned HTTP 404.
	ErrNotFound = errors.New("segment not found")
)

// Endpoint locates the manifest delivery service.
type Endpoint struct {
	// ContentType is the path (and subdomain) component of the endpoint.
	ContentType string
	// Host is the delivery host suffix.
	Host string
}

// URL returns the deliver endpoint URL. A host that already carries an
// explicit scheme is used verbatim instead of being treated as a
// subdomain suffix.
func (e Endpoint) URL() string {
	if strings.HasPrefix(e.Host, "http://") || strings.HasPrefix(e.Host, "https://") {
		return fmt.Sprintf("%s/%s/deliver", e.Host, e.ContentType)
	}
	return fmt.Sprintf("https://%s.%s/%s/deliver", e.ContentType, e.Host, e.ContentType)
}

// Client performs all HTTP communication with the delivery service and
// the segment CDN. Transport-level failures are retried a small, fixed
// number of times with exponential backoff; HTTP status failures are
// never retried here.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string

	// MaxRetries bounds the transient-transport retry loop.
	MaxRetries int
	// RetryDelay is the initial backoff delay; it doubles per attempt.
	RetryDelay time.Duration
}

// NewClient creates a delivery client with sane transport timeouts.
func NewClient(log logger.Logger, userAgent string) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		logger:     log,
		userAgent:  userAgent,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// NewClientWith wraps an existing http.Client; used by tests.
func NewClientWith(httpClient *http.Client, log logger.Logger, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log,
		userAgent:  userAgent,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// do executes the request, retrying transport errors with backoff and
// jitter. A response with any status code counts as success here.
//
// The first attempt consumes the request body, so retries rewind it
// through GetBody. Requests built by newRequest from an in-memory
// reader always carry one.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	var lastErr error
	delay := c.RetryDelay
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("%s %s: rewinding request body: %w", req.Method, req.URL, err)
			}
			req.Body = body
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.logger.Debugf("%s %s attempt %d/%d failed: %v", req.Method, req.URL, attempt, c.MaxRetries, err)
		if attempt == c.MaxRetries {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", req.Method, req.URL, c.MaxRetries, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// Acquire exchanges an asset identifier for a time-limited signed
// manifest URL at the delivery endpoint.
func (c *Client) Acquire(ctx context.Context, endpoint Endpoint, assetID string) (string, error) {
	form := url.Values{}
	form.Set("assetId", assetID)
	form.Set("isPreview", "true")
	form.Set("format", "DASH")

	req, err := c.newRequest(ctx, http.MethodPost, endpoint.URL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: deliver returned status %d", ErrDelivery, resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decoding deliver response: %v", ErrDelivery, err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("%w: deliver response has no url field", ErrDelivery)
	}
	return payload.URL, nil
}

// FetchDocument downloads a document expecting HTTP 200.
func (c *Client) FetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchSegment downloads one media segment. HTTP 403 maps to
// ErrForbidden and 404 to ErrNotFound so the fetcher can tell the
// recoverable and tolerated cases apart from hard failures.
func (c *Client) FetchSegment(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", rawURL, ErrForbidden)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	default:
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}
}
