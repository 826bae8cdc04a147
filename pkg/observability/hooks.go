// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without threading a metrics
// backend through every constructor. The command line registers hooks at
// startup; the resolver, index, cache and registry client emit events.
//
// # Architecture
//
// Each event category has an interface with a no-op default. A process
// registers its implementations once at startup, before resolution starts,
// and [Reset] restores the defaults.
//
// [PrometheusHooks] implements every interface and can dump its registry to a
// node-exporter textfile. [Tracer] returns the OpenTelemetry tracer used for
// resolution spans; it is a no-op until a TracerProvider is installed.
//
// # Usage
//
// Register hooks at application startup:
//
//	prom := observability.NewPrometheusHooks()
//	observability.Install(prom)
//	defer observability.Reset()
//
// Libraries call hooks to emit events:
//
//	observability.Resolve().OnResolveStart(ctx, "x86_64-linux", len(roots))
//	// ... search ...
//	observability.Resolve().OnResolveComplete(ctx, "x86_64-linux", n, backtracks, elapsed, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// Hooks is implemented by backends that observe every event category.
type Hooks interface {
	ResolveHooks
	CacheHooks
	HTTPHooks
}

// =============================================================================
// Resolve Hooks
// =============================================================================

// ResolveHooks receives events from the resolver and the candidate index.
type ResolveHooks interface {
	// OnResolveStart is called once per target platform.
	OnResolveStart(ctx context.Context, platform string, roots int)

	// OnResolveComplete reports the outcome of one platform's search.
	OnResolveComplete(ctx context.Context, platform string, specs, backtracks int, duration time.Duration, err error)

	// OnBacktrack is called whenever the search jumps back to an earlier decision.
	OnBacktrack(ctx context.Context, gem string, depth int)

	// OnSourceFetch reports a version list fetched from one source.
	OnSourceFetch(ctx context.Context, source, gem string, versions int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnResolveStart(context.Context, string, int) {}
func (NoopResolveHooks) OnResolveComplete(context.Context, string, int, int, time.Duration, error) {
}
func (NoopResolveHooks) OnBacktrack(context.Context, string, int) {}
func (NoopResolveHooks) OnSourceFetch(context.Context, string, string, int, time.Duration, error) {
}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Registry
// =============================================================================

// slot holds the registered implementation of one hook category.
type slot[T any] struct {
	mu   sync.RWMutex
	cur  T
	noop T
}

func (s *slot[T]) get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *slot[T]) set(h T, ok bool) {
	if !ok {
		return
	}
	s.mu.Lock()
	s.cur = h
	s.mu.Unlock()
}

func (s *slot[T]) reset() { s.set(s.noop, true) }

var (
	resolveSlot = &slot[ResolveHooks]{cur: NoopResolveHooks{}, noop: NoopResolveHooks{}}
	cacheSlot   = &slot[CacheHooks]{cur: NoopCacheHooks{}, noop: NoopCacheHooks{}}
	httpSlot    = &slot[HTTPHooks]{cur: NoopHTTPHooks{}, noop: NoopHTTPHooks{}}
)

// SetResolveHooks registers resolve hooks. A nil h is ignored.
func SetResolveHooks(h ResolveHooks) { resolveSlot.set(h, h != nil) }

// SetCacheHooks registers cache hooks. A nil h is ignored.
func SetCacheHooks(h CacheHooks) { cacheSlot.set(h, h != nil) }

// SetHTTPHooks registers registry client hooks. A nil h is ignored.
func SetHTTPHooks(h HTTPHooks) { httpSlot.set(h, h != nil) }

// Install registers h for every category.
func Install(h Hooks) {
	SetResolveHooks(h)
	SetCacheHooks(h)
	SetHTTPHooks(h)
}

// Resolve returns the registered resolve hooks.
func Resolve() ResolveHooks { return resolveSlot.get() }

// Cache returns the registered cache hooks.
func Cache() CacheHooks { return cacheSlot.get() }

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks { return httpSlot.get() }

// Reset restores the no-op defaults.
func Reset() {
	resolveSlot.reset()
	cacheSlot.reset()
	httpSlot.reset()
}
