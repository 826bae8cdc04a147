package integrations

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when a gem or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")

	// ErrNotCached is returned by offline lookups that miss the cache.
	ErrNotCached = errors.New("not available offline")
)

// NewHTTPClient creates an HTTP client with a standard timeout for registry requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// NormalizeRemote returns the canonical form of a gem server URL: scheme and
// host lower-cased, exactly one trailing slash. Two remotes are the same
// source only when their normalized forms match.
func NormalizeRemote(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i > 0 {
		rest := s[i+3:]
		host, path, _ := strings.Cut(rest, "/")
		userinfo := ""
		if at := strings.LastIndex(host, "@"); at >= 0 {
			userinfo, host = host[:at+1], host[at+1:]
		}
		s = strings.ToLower(s[:i]) + "://" + userinfo + strings.ToLower(host)
		if path != "" {
			s += "/" + path
		}
	}
	return strings.TrimRight(s, "/") + "/"
}

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"git://github.com/", "https://github.com/",
)

// NormalizeRepoURL converts git remote spellings to canonical HTTPS form so
// that "git@github.com:rails/rails.git" and "https://github.com/rails/rails"
// identify the same git source.
func NormalizeRepoURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "git+")
	s = repoURLReplacer.Replace(s)
	return strings.TrimSuffix(s, ".git")
}

// GitHubRepoURL expands the "owner/repo" shorthand of the github: option.
func GitHubRepoURL(shorthand string) string {
	if !strings.Contains(shorthand, "/") {
		shorthand = shorthand + "/" + shorthand
	}
	return "https://github.com/" + shorthand + ".git"
}
