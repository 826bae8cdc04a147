package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/httputil"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	opts := []ClientOption{WithBackoff(httputil.Backoff{Attempts: 3, Delay: time.Millisecond})}
	if server != nil {
		opts = append(opts, WithHTTPClient(server.Client()))
	}
	return NewClient(c, "test", time.Hour, nil, opts...)
}

func TestNewClient(t *testing.T) {
	headers := map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}
	client := NewClient(nil, "test", time.Hour, headers)

	if client.http == nil {
		t.Error("NewClient() http client is nil")
	}
	if _, ok := client.cache.(cache.NullCache); !ok {
		t.Errorf("nil cache should become NullCache, got %T", client.cache)
	}
	if client.headers["Authorization"] != "Basic dXNlcjpwYXNz" {
		t.Error("NewClient() headers not set correctly")
	}
	if client.backoff != httputil.DefaultBackoff {
		t.Error("NewClient() should default to DefaultBackoff")
	}
}

func TestClientGet(t *testing.T) {
	type response struct {
		Name string `json:"name"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(response{Name: "rack"})
	}))
	defer server.Close()

	var resp response
	if err := newTestClient(t, server).Get(context.Background(), server.URL, &resp); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Name != "rack" {
		t.Errorf("Get() name = %q, want rack", resp.Name)
	}
}

func TestClientGetBytesHeaders(t *testing.T) {
	var custom, def string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		custom = r.Header.Get("X-Override")
		def = r.Header.Get("X-Default")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour,
		map[string]string{"X-Override": "default", "X-Default": "kept"},
		WithHTTPClient(server.Client()))

	body, err := client.GetBytes(context.Background(), server.URL, map[string]string{"X-Override": "overridden"})
	if err != nil {
		t.Fatalf("GetBytes() error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("GetBytes() = %q", body)
	}
	if custom != "overridden" || def != "kept" {
		t.Errorf("headers = %q, %q", custom, def)
	}
}

func TestClientGetText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("---\n1.0.0 |\n"))
	}))
	defer server.Close()

	text, err := newTestClient(t, server).GetText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetText() error: %v", err)
	}
	if text != "---\n1.0.0 |\n" {
		t.Errorf("GetText() = %q", text)
	}
}

func TestClientGetStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		retryable bool
	}{
		{"not found", http.StatusNotFound, ErrNotFound, false},
		{"gone", http.StatusGone, ErrNotFound, false},
		{"server error", http.StatusInternalServerError, ErrNetwork, true},
		{"rate limited", http.StatusTooManyRequests, ErrNetwork, true},
		{"forbidden", http.StatusForbidden, ErrNetwork, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(t, server).GetBytes(context.Background(), server.URL, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if httputil.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", httputil.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestCheckStatusRetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": {"7"}}}
	var re *httputil.RetryableError
	if !errors.As(checkStatus(resp), &re) {
		t.Fatal("429 should be retryable")
	}
	if re.After != 7*time.Second {
		t.Errorf("After = %v, want 7s", re.After)
	}
}

func TestClientCached(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	var fetches int32
	fetch := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&fetches, 1)
		return []byte("payload"), nil
	}

	for range 2 {
		data, err := client.Cached(ctx, "info/rack", PolicyDefault, fetch)
		if err != nil {
			t.Fatalf("Cached() error: %v", err)
		}
		if string(data) != "payload" {
			t.Errorf("Cached() = %q", data)
		}
	}
	if fetches != 1 {
		t.Errorf("fetch count = %d, want 1", fetches)
	}

	if _, err := client.Cached(ctx, "info/rack", PolicyRefresh, fetch); err != nil {
		t.Fatal(err)
	}
	if fetches != 2 {
		t.Errorf("refresh should fetch, count = %d", fetches)
	}

	if _, err := client.Cached(ctx, "info/rack", PolicyOffline, fetch); err != nil {
		t.Errorf("offline hit error: %v", err)
	}
	if fetches != 2 {
		t.Errorf("offline should not fetch, count = %d", fetches)
	}
}

func TestClientCachedOfflineMiss(t *testing.T) {
	client := newTestClient(t, nil)
	_, err := client.Cached(context.Background(), "info/nope", PolicyOffline, func(context.Context) ([]byte, error) {
		t.Error("offline lookup must not fetch")
		return nil, nil
	})
	if !errors.Is(err, ErrNotCached) {
		t.Errorf("error = %v, want ErrNotCached", err)
	}
}

func TestClientCachedRetries(t *testing.T) {
	client := newTestClient(t, nil)

	calls := 0
	data, err := client.Cached(context.Background(), "flaky", PolicyRefresh, func(context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, httputil.Retryable(ErrNetwork)
		}
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if string(data) != "ok" || calls != 3 {
		t.Errorf("data = %q, calls = %d", data, calls)
	}

	calls = 0
	_, err = client.Cached(context.Background(), "missing", PolicyRefresh, func(context.Context) ([]byte, error) {
		calls++
		return nil, ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) || calls != 1 {
		t.Errorf("permanent error: err = %v, calls = %d", err, calls)
	}
}

func TestNormalizeRemote(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"https://rubygems.org", "https://rubygems.org/"},
		{"https://rubygems.org/", "https://rubygems.org/"},
		{"HTTPS://RubyGems.org//", "https://rubygems.org/"},
		{"https://gems.example.com/private", "https://gems.example.com/private/"},
		{"s3://Bucket/prefix", "s3://bucket/prefix/"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRemote(tt.input); got != tt.want {
			t.Errorf("NormalizeRemote(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"git@github.com:rails/rails.git", "https://github.com/rails/rails"},
		{"git://github.com/rails/rails.git", "https://github.com/rails/rails"},
		{"git+https://github.com/rails/rails", "https://github.com/rails/rails"},
		{"https://gitlab.com/org/gem.git", "https://gitlab.com/org/gem"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRepoURL(tt.input); got != tt.want {
			t.Errorf("NormalizeRepoURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGitHubRepoURL(t *testing.T) {
	if got := GitHubRepoURL("rails/rails"); got != "https://github.com/rails/rails.git" {
		t.Errorf("GitHubRepoURL = %q", got)
	}
	if got := GitHubRepoURL("rack"); got != "https://github.com/rack/rack.git" {
		t.Errorf("GitHubRepoURL = %q", got)
	}
}
