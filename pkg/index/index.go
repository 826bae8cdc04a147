// Package index collects candidate versions for the resolver.
//
// An [Index] queries every source that may serve a gem, in declaration
// order, and keeps the merged result for the rest of the run. It is the only
// concurrent part of resolution: [Index.Prefetch] fills the per-name cache
// with a bounded worker pool, and the solver reads the cache afterwards from
// a single goroutine.
package index

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/observability"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/source"
)

// DefaultJobs is the prefetch concurrency when none is configured.
const DefaultJobs = 8

// Ambiguity records a gem version offered by more than one source. The
// first source in declaration order is the one used.
type Ambiguity struct {
	Name    string
	Version gemver.Version
	Sources []string // identities; Sources[0] wins
}

// Index is the candidate cache for one resolution run.
//
// All methods are safe for concurrent use by multiple goroutines.
type Index struct {
	sources   []source.Source
	pinned    map[string]source.Source
	platforms platform.Set
	locked    map[string][]source.Candidate
	mode      source.Mode
	jobs      int
	logger    *log.Logger

	mu          sync.Mutex
	entries     map[string]entry
	deps        map[string][]source.Dependency
	ambiguities map[string]*Ambiguity
}

type entry struct {
	cands []source.Candidate
	err   error
}

// Option configures an Index.
type Option func(*Index)

// WithPinned restricts each named gem to one source.
func WithPinned(pinned map[string]source.Source) Option {
	return func(ix *Index) { ix.pinned = pinned }
}

// WithPlatforms drops candidates that install on none of platforms.
func WithPlatforms(platforms platform.Set) Option {
	return func(ix *Index) { ix.platforms = platforms }
}

// WithLocked supplies the specs of the previous lock. In [source.ModeLocal]
// they are offered alongside whatever the sources still have on disk.
func WithLocked(specs []source.Candidate) Option {
	return func(ix *Index) {
		for _, c := range specs {
			ix.locked[c.Name] = append(ix.locked[c.Name], c)
		}
	}
}

// WithMode records the mode the sources were opened with.
func WithMode(m source.Mode) Option {
	return func(ix *Index) { ix.mode = m }
}

// WithJobs bounds the number of concurrent prefetches.
func WithJobs(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.jobs = n
		}
	}
}

// WithLogger sets the logger for per-source failures.
func WithLogger(l *log.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New creates an index over sources, which must be in declaration order.
func New(sources []source.Source, opts ...Option) *Index {
	ix := &Index{
		sources:     sources,
		locked:      make(map[string][]source.Candidate),
		jobs:        DefaultJobs,
		logger:      log.Default(),
		entries:     make(map[string]entry),
		deps:        make(map[string][]source.Dependency),
		ambiguities: make(map[string]*Ambiguity),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Platforms returns the target platforms candidates are filtered by.
func (ix *Index) Platforms() platform.Set { return ix.platforms }

// SourcesFor returns the sources queried for name.
func (ix *Index) SourcesFor(name string) []source.Source {
	if src, ok := ix.pinned[name]; ok {
		return []source.Source{src}
	}
	return ix.sources
}

// Candidates returns every known candidate for name, newest first. The
// result is computed once per name and shared by later calls.
func (ix *Index) Candidates(ctx context.Context, name string) ([]source.Candidate, error) {
	ix.mu.Lock()
	e, ok := ix.entries[name]
	ix.mu.Unlock()
	if ok {
		return e.cands, e.err
	}

	cands, ambiguous, err := ix.fetch(ctx, name)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e, ok := ix.entries[name]; ok {
		// A concurrent prefetch finished first; keep its result.
		return e.cands, e.err
	}
	ix.entries[name] = entry{cands: cands, err: err}
	for _, a := range ambiguous {
		ix.ambiguities[a.Name+"@"+a.Version.String()] = a
	}
	return cands, err
}

func (ix *Index) fetch(ctx context.Context, name string) ([]source.Candidate, []*Ambiguity, error) {
	ctx, span := observability.StartSpan(ctx, "index.candidates", attribute.String("gem", name))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	srcs := ix.SourcesFor(name)
	var (
		out      []source.Candidate
		tried    []string
		failures []*SourceFetchError
		origin   = make(map[string]string) // candidate key -> identity
		amb      = make(map[string]*Ambiguity)
	)
	for _, src := range srcs {
		start := time.Now()
		list, lerr := src.ListVersions(ctx, name, ix.platforms)
		observability.Resolve().OnSourceFetch(ctx, src.Identity(), name, len(list), time.Since(start), lerr)
		tried = append(tried, src.Identity())
		if lerr != nil {
			ix.logger.Warn("source failed", "gem", name, "source", src.Identity(), "err", lerr)
			failures = append(failures, &SourceFetchError{Source: src.Identity(), Name: name, Err: lerr})
			continue
		}
		for _, c := range list {
			k := c.Key()
			first, dup := origin[k]
			if !dup {
				origin[k] = src.Identity()
				out = append(out, c)
				continue
			}
			if first == src.Identity() {
				continue
			}
			vk := c.Version.String()
			a, ok := amb[vk]
			if !ok {
				a = &Ambiguity{Name: name, Version: c.Version, Sources: []string{first}}
				amb[vk] = a
			}
			if !slices.Contains(a.Sources, src.Identity()) {
				a.Sources = append(a.Sources, src.Identity())
			}
		}
	}

	if ix.mode == source.ModeLocal {
		for _, c := range ix.locked[name] {
			if _, dup := origin[c.Key()]; !dup && ix.installable(c.Platform) {
				origin[c.Key()] = c.Source.Identity()
				out = append(out, c)
			}
		}
	}

	if len(out) == 0 {
		err = &GemNotFoundError{Name: name, Sources: tried, Failures: failures}
		return nil, nil, err
	}
	sortCandidates(out)

	ambiguous := make([]*Ambiguity, 0, len(amb))
	for _, a := range amb {
		ambiguous = append(ambiguous, a)
	}
	return out, ambiguous, nil
}

func (ix *Index) installable(p platform.Platform) bool {
	if len(ix.platforms) == 0 {
		return true
	}
	for _, t := range ix.platforms {
		if p.Match(t) {
			return true
		}
	}
	return false
}

// sortCandidates orders by version descending, then platform in canonical
// order. The sort is stable so equal keys keep source priority.
func sortCandidates(cs []source.Candidate) {
	slices.SortStableFunc(cs, func(a, b source.Candidate) int {
		if c := b.Version.Compare(a.Version); c != 0 {
			return c
		}
		return platform.Compare(a.Platform, b.Platform)
	})
}

// Prefetch loads candidates for names concurrently. Fetch errors are kept
// in the cache and surface from [Index.Candidates]; Prefetch itself only
// fails when ctx is cancelled.
func (ix *Index) Prefetch(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.jobs)
	for _, name := range names {
		ix.mu.Lock()
		_, done := ix.entries[name]
		ix.mu.Unlock()
		if done {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, _ = ix.Candidates(ctx, name)
			return nil
		})
	}
	return g.Wait()
}

// Dependencies returns the runtime dependencies of c, fetching them at most
// once per candidate.
func (ix *Index) Dependencies(ctx context.Context, c source.Candidate) ([]source.Dependency, error) {
	key := c.Source.Identity() + "|" + c.Key()
	ix.mu.Lock()
	deps, ok := ix.deps[key]
	ix.mu.Unlock()
	if ok {
		return deps, nil
	}

	deps, err := c.Source.FetchDependencies(ctx, c)
	if err != nil {
		return nil, &SourceFetchError{Source: c.Source.Identity(), Name: c.Name, Err: err}
	}
	ix.mu.Lock()
	ix.deps[key] = deps
	ix.mu.Unlock()
	return deps, nil
}

// Ambiguities returns the gem versions offered by several sources, sorted
// by name and version.
func (ix *Index) Ambiguities() []Ambiguity {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]Ambiguity, 0, len(ix.ambiguities))
	for _, a := range ix.ambiguities {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b Ambiguity) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		return a.Version.Compare(b.Version)
	})
	return out
}
