package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/httputil"
	"github.com/matzehuels/gemlock/pkg/observability"
)

// Policy controls how [Client.Cached] uses the cache.
type Policy int

const (
	// PolicyDefault serves fresh cache entries and fetches on a miss.
	PolicyDefault Policy = iota

	// PolicyRefresh always fetches and rewrites the cache.
	PolicyRefresh

	// PolicyOffline never touches the network; a miss is [ErrNotCached].
	PolicyOffline
)

func (p Policy) String() string {
	switch p {
	case PolicyRefresh:
		return "refresh"
	case PolicyOffline:
		return "offline"
	default:
		return "default"
	}
}

// Client provides shared HTTP functionality for registry clients.
// It handles caching, retry logic, and common request headers.
type Client struct {
	http      *http.Client
	cache     cache.Cache
	keyer     cache.Keyer
	namespace string
	ttl       time.Duration
	headers   map[string]string
	backoff   httputil.Backoff
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithBackoff sets the retry schedule for transient failures.
func WithBackoff(b httputil.Backoff) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// WithKeyer sets the cache key layout.
func WithKeyer(k cache.Keyer) ClientOption {
	return func(c *Client) { c.keyer = k }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a Client. Cache keys are placed under namespace; entries
// live for ttl. A nil cache disables caching. Headers are applied to all
// requests made through this client; pass nil if none are needed.
func NewClient(backend cache.Cache, namespace string, ttl time.Duration, headers map[string]string, opts ...ClientOption) *Client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	c := &Client{
		http:      NewHTTPClient(),
		cache:     backend,
		keyer:     cache.NewDefaultKeyer(),
		namespace: namespace,
		ttl:       ttl,
		headers:   headers,
		backoff:   httputil.DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cached returns the payload stored under key, calling fetch according to
// policy. Successful fetches are written back to the cache.
func (c *Client) Cached(ctx context.Context, key string, policy Policy, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	ck := c.keyer.HTTPKey(c.namespace, key)
	hooks := observability.Cache()

	if policy != PolicyRefresh {
		data, hit, err := c.cache.Get(ctx, ck)
		if err == nil && hit {
			hooks.OnCacheHit(ctx, c.namespace)
			return data, nil
		}
		hooks.OnCacheMiss(ctx, c.namespace)
		if policy == PolicyOffline {
			return nil, fmt.Errorf("%w: %s", ErrNotCached, key)
		}
	}

	var data []byte
	err := c.backoff.Do(ctx, func(int) error {
		var ferr error
		data, ferr = fetch(ctx)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, ck, data, c.ttl); err == nil {
		hooks.OnCacheSet(ctx, c.namespace, len(data))
	}
	return data, nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, rawURL string, v any) error {
	body, err := c.GetBytes(ctx, rawURL, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// GetBytes performs an HTTP GET with additional headers merged with the
// defaults and returns the body. Request-specific headers override client
// defaults for the same key.
func (c *Client) GetBytes(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	body, err := c.doRequest(ctx, rawURL, headers)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// GetText performs an HTTP GET request and returns the response body as a string.
func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	data, err := c.GetBytes(ctx, rawURL, nil)
	return string(data), err
}

func (c *Client) doRequest(ctx context.Context, rawURL string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host, path := hostPath(req.URL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func hostPath(u *url.URL) (string, string) {
	if u == nil {
		return "", ""
	}
	return u.Host, u.Path
}

func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		re := &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			re.After = time.Duration(secs) * time.Second
		}
		return re
	case code >= 500:
		return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

// IsNotFound reports whether err means the registry has no such resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
