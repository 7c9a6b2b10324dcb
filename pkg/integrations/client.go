// Package integrations provides shared HTTP functionality for the external
// service clients: response caching, retry with backoff, status-code to
// error-code mapping, and common request headers.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/parkerhq/fleetaudit/pkg/cache"
	"github.com/parkerhq/fleetaudit/pkg/errors"
	"github.com/parkerhq/fleetaudit/pkg/httputil"
	"github.com/parkerhq/fleetaudit/pkg/observability"
)

// DefaultCacheTTL is how long external service responses stay cached.
const DefaultCacheTTL = 24 * time.Hour

// Client provides shared HTTP functionality for service API clients.
// It handles caching, retry logic, and common request headers.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	headers map[string]string
}

// NewClient creates a Client backed by the given cache.
// Headers are applied to every request; pass nil if none are needed.
func NewClient(c cache.Cache, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:    httputil.NewClient(),
		cache:   c,
		ttl:     DefaultCacheTTL,
		headers: headers,
	}
}

// SetCacheTTL overrides how long responses stay cached. Non-positive
// values keep the default.
func (c *Client) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl = ttl
	}
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// The fetch function should populate v; on success, v is stored in the cache.
func (c *Client) Cached(ctx context.Context, key string, v any, fetch func() error) error {
	keyType := cache.Namespace(key)
	if hit, _ := cache.GetJSON(ctx, c.cache, key, v); hit {
		observability.Cache().OnCacheHit(ctx, keyType)
		return nil
	}
	observability.Cache().OnCacheMiss(ctx, keyType)
	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
		observability.Cache().OnCacheSet(ctx, keyType, len(data))
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	body, err := c.doRequest(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// GetWithHeaders performs an HTTP GET with extra headers merged over the
// client defaults.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.doRequest(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// PostJSON sends payload as a JSON body and decodes the response into v.
func (c *Client) PostJSON(ctx context.Context, url string, payload, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "marshal request body")
	}
	body, err := c.doRequest(ctx, http.MethodPost, url, map[string]string{"Content-Type": "application/json"}, data)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

func (c *Client) doRequest(ctx context.Context, method, url string, headers map[string]string, payload []byte) (io.ReadCloser, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	observability.HTTP().OnRequest(ctx, method, req.URL.Host, req.URL.Path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, method, req.URL.Host, req.URL.Path, err)
		return nil, httputil.Retryable(errors.Wrap(errors.ErrCodeTransient, err, "request failed"))
	}
	observability.HTTP().OnResponse(ctx, method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// checkStatus maps HTTP status codes to the error taxonomy. Rate limits and
// server errors are retryable; auth failures are not, so the caller can
// degrade its section instead of hammering the service.
func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "resource not found")
	case code == http.StatusUnauthorized:
		return errors.New(errors.ErrCodeUnauthorized, "authentication failed")
	case code == http.StatusForbidden:
		return errors.New(errors.ErrCodeForbidden, "access denied")
	case code == http.StatusTooManyRequests:
		return httputil.Retryable(errors.New(errors.ErrCodeRateLimited, "rate limited"))
	case code >= 500:
		return httputil.Retryable(errors.New(errors.ErrCodeTransient, "server error: status %d", code))
	default:
		return errors.New(errors.ErrCodeInternal, "unexpected status %d", code)
	}
}
