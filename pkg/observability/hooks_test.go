package observability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	r := NoopResolveHooks{}
	r.OnResolveStart(ctx, "ruby", 3)
	r.OnResolveComplete(ctx, "ruby", 12, 2, time.Second, nil)
	r.OnBacktrack(ctx, "rack", 4)
	r.OnSourceFetch(ctx, "https://rubygems.org/", "rack", 40, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "info")
	c.OnCacheMiss(ctx, "info")
	c.OnCacheSet(ctx, "http", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "rubygems.org", "/info/rack")
	h.OnResponse(ctx, "GET", "rubygems.org", "/info/rack", 200, time.Second)
	h.OnError(ctx, "GET", "rubygems.org", "/info/rack", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Resolve() should return NoopResolveHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customResolve := &testResolveHooks{}
	SetResolveHooks(customResolve)
	if Resolve() != customResolve {
		t.Error("SetResolveHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Reset() should restore NoopResolveHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testResolveHooks{}
	SetResolveHooks(custom)
	SetResolveHooks(nil)

	if Resolve() != custom {
		t.Error("SetResolveHooks(nil) should be ignored")
	}
}

func TestInstall(t *testing.T) {
	defer Reset()

	prom := NewPrometheusHooks()
	Install(prom)
	if Resolve() != ResolveHooks(prom) || Cache() != CacheHooks(prom) || HTTP() != HTTPHooks(prom) {
		t.Error("Install should register every category")
	}

	Reset()
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("Reset() should restore NoopHTTPHooks")
	}
}

func TestPrometheusHooks(t *testing.T) {
	ctx := context.Background()
	p := NewPrometheusHooks()

	p.OnResolveComplete(ctx, "x86_64-linux", 10, 1, 20*time.Millisecond, nil)
	p.OnResolveComplete(ctx, "ruby", 0, 5, time.Millisecond, errors.New("conflict"))
	p.OnBacktrack(ctx, "rack", 2)
	p.OnSourceFetch(ctx, "rubygems.org", "rack", 10, time.Millisecond, nil)
	p.OnCacheHit(ctx, "info")
	p.OnCacheMiss(ctx, "info")
	p.OnCacheSet(ctx, "info", 512)
	p.OnResponse(ctx, "GET", "rubygems.org", "/info/rack", 200, time.Millisecond)
	p.OnResponse(ctx, "GET", "rubygems.org", "/info/nope", 404, time.Millisecond)
	p.OnError(ctx, "GET", "rubygems.org", "/info/rack", errors.New("reset"))

	families, err := p.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"gemlock_resolve_total",
		"gemlock_resolve_backtracks_total",
		"gemlock_source_fetch_total",
		"gemlock_cache_operations_total",
		"gemlock_cache_written_bytes_total",
		"gemlock_http_responses_total",
		"gemlock_http_errors_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}

	path := filepath.Join(t.TempDir(), "gemlock.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `gemlock_resolve_total{outcome="error",platform="ruby"} 1`) {
		t.Errorf("textfile missing resolve counter:\n%s", data)
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "resolve")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil")
	}
	EndSpan(span, errors.New("boom"))
}

type testResolveHooks struct{ NoopResolveHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
