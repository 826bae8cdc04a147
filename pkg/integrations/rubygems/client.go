package rubygems

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/httputil"
	"github.com/matzehuels/gemlock/pkg/integrations"
)

// DefaultRemote is the public gem server.
const DefaultRemote = "https://rubygems.org/"

// Client fetches compact index info files from one gem server.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	remote  string // normalized, with credentials
	display string // normalized, without credentials
}

// NewClient creates a client for remote. Responses are cached in backend for
// ttl under a namespace derived from the credential-free remote.
func NewClient(backend cache.Cache, remote string, ttl time.Duration, opts ...integrations.ClientOption) *Client {
	normalized := integrations.NormalizeRemote(remote)
	display := redact(normalized)
	return &Client{
		Client:  integrations.NewClient(backend, "rubygems:"+display, ttl, nil, opts...),
		remote:  normalized,
		display: display,
	}
}

// Remote returns the server URL without credentials.
func (c *Client) Remote() string { return c.display }

// Info returns every version of gem published on the server.
//
// Returns:
//   - [integrations.ErrNotFound] if the server does not know the gem
//   - [integrations.ErrNotCached] for an offline lookup that misses the cache
//   - [integrations.ErrNetwork] for HTTP failures after retries
func (c *Client) Info(ctx context.Context, gem string, policy integrations.Policy) ([]integrations.GemVersion, error) {
	gem = strings.TrimSpace(gem)
	if gem == "" {
		return nil, errors.New("rubygems: empty gem name")
	}

	body, err := c.Cached(ctx, "info/"+gem, policy, func(ctx context.Context) ([]byte, error) {
		return c.GetBytes(ctx, c.remote+"info/"+url.PathEscape(gem), map[string]string{"Accept": "text/plain"})
	})
	if err != nil {
		if integrations.IsNotFound(err) {
			return nil, fmt.Errorf("%w: gem %s on %s", err, gem, c.display)
		}
		return nil, err
	}

	versions, err := integrations.ParseInfo(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rubygems: %s on %s: %w", gem, c.display, err)
	}
	return versions, nil
}

// redact strips userinfo from a URL string.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}

// Artifact downloads a packaged gem, e.g. "rack-3.0.8.gem". Artifacts are
// immutable and large, so they bypass the response cache.
func (c *Client) Artifact(ctx context.Context, file string) ([]byte, error) {
	var data []byte
	err := httputil.DefaultBackoff.Do(ctx, func(int) error {
		var err error
		data, err = c.GetBytes(ctx, c.remote+"gems/"+url.PathEscape(file), nil)
		return err
	})
	return data, err
}
