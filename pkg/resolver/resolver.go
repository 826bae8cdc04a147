// Package resolver chooses one version of every required gem.
//
// The search is a backtracking solver over an explicit stack of decisions.
// Each decision level fixes one gem; its dependencies become requirements
// on other gems. When a gem runs out of candidates the solver jumps back to
// the most recent decision that contributed to the failure (conflict
// directed backjumping) instead of undoing one level at a time, and carries
// the conflicts along so an unsatisfiable manifest can be explained.
//
// Candidate order decides which of several valid solutions wins: the
// version from the previous lock first, unless the gem is being updated,
// then the highest version. This keeps lockfiles stable across runs.
package resolver

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/index"
	"github.com/matzehuels/gemlock/pkg/observability"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/source"
)

// Candidates is the view of the candidate index the solver needs.
// [*index.Index] implements it.
type Candidates interface {
	Candidates(ctx context.Context, name string) ([]source.Candidate, error)
	Dependencies(ctx context.Context, c source.Candidate) ([]source.Dependency, error)
	SourcesFor(name string) []source.Source
	Prefetch(ctx context.Context, names []string) error
}

// Root is a requirement from the manifest.
type Root struct {
	Name        string
	Requirement gemver.Requirement
	// Platforms lists manifest platform tags ("jruby", "mingw", ...) the
	// requirement is limited to. Empty means every platform.
	Platforms []string
}

// Request is the input of one resolution.
type Request struct {
	Roots []Root

	// Locked holds the versions of the previous lock. They are tried first
	// for every gem not in Unlock and anchor Level for the others.
	Locked    map[string]gemver.Version
	Unlock    map[string]bool
	UnlockAll bool

	// Ruby, when set, drops candidates whose required ruby version
	// excludes it.
	Ruby *gemver.Version

	// Level and Strict steer unlocked gems that have a locked version
	// toward nearby releases. See [Level].
	Level  Level
	Strict bool
}

func (r Request) prefersLocked(name string) (gemver.Version, bool) {
	if r.UnlockAll || r.Unlock[name] {
		return gemver.Version{}, false
	}
	v, ok := r.Locked[name]
	return v, ok
}

// ResolvedSpec is the candidate chosen for a gem on one platform.
type ResolvedSpec struct {
	source.Candidate
	Deps       []source.Dependency
	RequiredBy []string // requiring gems, sorted; the manifest is not listed
	Direct     bool     // required by the manifest
}

// Resolver runs resolutions against one candidate index.
type Resolver struct {
	index  Candidates
	logger *log.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for decision tracing at debug level.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a resolver over ix.
func New(ix Candidates, opts ...Option) *Resolver {
	r := &Resolver{index: ix, logger: log.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAll resolves req once per platform and merges the results. Every
// gem resolves to the same version on all platforms where it is needed, so
// a pure gem appears once. Later platforms prefer the versions chosen for
// earlier ones; when they still disagree on a gem, the resolution is rerun
// with that gem pinned to each of the disputed versions in turn.
func (r *Resolver) ResolveAll(ctx context.Context, req Request, platforms platform.Set) ([]ResolvedSpec, error) {
	if len(platforms) == 0 {
		platforms = platform.Set{platform.Ruby}
	}
	return r.agree(ctx, req, platforms, nil)
}

func (r *Resolver) agree(ctx context.Context, req Request, platforms platform.Set, pins map[string]gemver.Version) ([]ResolvedSpec, error) {
	results := make([][]ResolvedSpec, len(platforms))
	preferred := make(map[string]gemver.Version)
	for i, p := range platforms {
		specs, err := r.resolve(ctx, req, p, preferred, pins)
		if err != nil {
			return nil, err
		}
		for _, s := range specs {
			if _, ok := preferred[s.Name]; !ok {
				preferred[s.Name] = s.Version
			}
		}
		results[i] = specs
	}

	split := findSplit(platforms, results)
	if split == nil {
		return merge(results), nil
	}

	var failure *SolveFailure
	for _, v := range split.order(req) {
		next := maps.Clone(pins)
		if next == nil {
			next = make(map[string]gemver.Version)
		}
		next[split.Name] = v
		r.logger.Debug("platforms disagree", "gem", split.Name, "pin", v)
		specs, err := r.agree(ctx, req, platforms, next)
		if err == nil {
			return specs, nil
		}
		if !errors.As(err, &failure) {
			return nil, err
		}
	}
	return nil, &SolveFailure{Platform: split.First, Split: split, Conflicts: failure.Conflicts}
}

// merge flattens per-platform results, keeping one entry per name, version
// and platform.
func merge(results [][]ResolvedSpec) []ResolvedSpec {
	var out []ResolvedSpec
	seen := make(map[string]bool)
	for _, specs := range results {
		for _, s := range specs {
			if key := s.Key(); !seen[key] {
				seen[key] = true
				out = append(out, s)
			}
		}
	}
	SortSpecs(out)
	return out
}

// findSplit returns the first gem, by name, chosen at different versions on
// two platforms, or nil when all platforms agree.
func findSplit(platforms platform.Set, results [][]ResolvedSpec) *Split {
	type choice struct {
		platform platform.Platform
		version  gemver.Version
	}
	byName := make(map[string][]choice)
	for i, specs := range results {
		for _, s := range specs {
			byName[s.Name] = append(byName[s.Name], choice{platforms[i], s.Version})
		}
	}
	names := slices.Sorted(maps.Keys(byName))
	for _, name := range names {
		cs := byName[name]
		for _, c := range cs[1:] {
			if !c.version.Equal(cs[0].version) {
				sp := &Split{Name: name, First: cs[0].platform, FirstVersion: cs[0].version, Second: c.platform, SecondVersion: c.version}
				for _, o := range cs {
					if !slices.ContainsFunc(sp.versions, o.version.Equal) {
						sp.versions = append(sp.versions, o.version)
					}
				}
				return sp
			}
		}
	}
	return nil
}

// Resolve resolves req for a single target platform.
func (r *Resolver) Resolve(ctx context.Context, req Request, target platform.Platform) ([]ResolvedSpec, error) {
	return r.resolve(ctx, req, target, nil, nil)
}

func (r *Resolver) resolve(ctx context.Context, req Request, target platform.Platform, preferred, pins map[string]gemver.Version) (specs []ResolvedSpec, err error) {
	hooks := observability.Resolve()
	ctx, span := observability.StartSpan(ctx, "resolver.resolve", attribute.String("platform", target.String()))
	start := time.Now()
	s := &solver{
		ctx:       ctx,
		index:     r.index,
		logger:    r.logger,
		req:       req,
		target:    target,
		preferred: preferred,
		pins:      pins,
		assigned:  make(map[string]*level),
		incoming:  make(map[string][]edge),
	}
	hooks.OnResolveStart(ctx, target.String(), len(req.Roots))
	defer func() {
		hooks.OnResolveComplete(ctx, target.String(), len(specs), s.backtracks, time.Since(start), err)
		span.SetAttributes(attribute.Int("gems", len(specs)), attribute.Int("backtracks", s.backtracks))
		observability.EndSpan(span, err)
	}()

	if err := s.seed(); err != nil {
		return nil, err
	}
	if err := s.run(); err != nil {
		return nil, err
	}
	r.logger.Debug("resolved", "platform", target, "gems", len(s.levels), "backtracks", s.backtracks)
	return s.result(), nil
}

// SortSpecs orders specs by name, version and platform.
func SortSpecs(specs []ResolvedSpec) {
	slices.SortFunc(specs, func(a, b ResolvedSpec) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		if c := a.Version.Compare(b.Version); c != 0 {
			return c
		}
		return platform.Compare(a.Platform, b.Platform)
	})
}

// edge is a requirement together with the decision level that added it.
// Level 0 holds the manifest requirements.
type edge struct {
	Edge
	level int
}

// level is one decision: the gem it fixes, the alternatives not yet tried
// and what is known about why earlier alternatives failed.
type level struct {
	n         int
	name      string
	alts      []source.Candidate // alts[0] is the current choice
	deps      []source.Dependency
	conflicts map[int]bool // levels that contributed to failures here
	reasons   []Conflict
}

func (l *level) current() source.Candidate { return l.alts[0] }

type solver struct {
	ctx       context.Context
	index     Candidates
	logger    *log.Logger
	req       Request
	target    platform.Platform
	preferred map[string]gemver.Version
	pins      map[string]gemver.Version // versions forced by other platforms

	levels     []*level // levels[i].n == i+1
	assigned   map[string]*level
	incoming   map[string][]edge
	backtracks int
}

// seed adds the manifest requirements for the target and checks that each
// of them can be met on its own.
func (s *solver) seed() error {
	var names []string
	for _, root := range s.req.Roots {
		if !s.applies(root) {
			continue
		}
		if _, ok := s.incoming[root.Name]; !ok {
			names = append(names, root.Name)
		}
		s.incoming[root.Name] = append(s.incoming[root.Name], edge{Edge: Edge{Requirement: root.Requirement}})
	}
	if err := s.index.Prefetch(s.ctx, names); err != nil {
		return err
	}

	slices.Sort(names)
	for _, name := range names {
		all, err := s.index.Candidates(s.ctx, name)
		if err != nil {
			return err
		}
		for _, e := range s.incoming[name] {
			if err := s.checkRoot(name, e.Requirement, all); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *solver) applies(root Root) bool {
	if len(root.Platforms) == 0 {
		return true
	}
	for _, tag := range root.Platforms {
		if platform.Selects(tag, s.target) {
			return true
		}
	}
	return false
}

func (s *solver) checkRoot(name string, req gemver.Requirement, all []source.Candidate) error {
	matching, installable := false, false
	for _, c := range all {
		if !req.Satisfied(c.Version) {
			continue
		}
		matching = true
		if c.Platform.Match(s.target) || c.Platform.IsRuby() {
			installable = true
			break
		}
	}
	if installable {
		return nil
	}
	nf := &index.GemNotFoundError{Name: name, Requirement: req}
	for _, src := range s.index.SourcesFor(name) {
		nf.Sources = append(nf.Sources, src.Identity())
	}
	if matching {
		t := s.target
		nf.Platform = &t
	}
	return nf
}

// run is the main loop: pick the most constrained pending gem, open a
// decision level for it and backjump whenever a level has no viable
// alternative left.
func (s *solver) run() error {
	for {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		name, ok, err := s.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		lv, err := s.open(name)
		if err != nil {
			return err
		}
		if s.advance(lv) {
			continue
		}
		if err := s.backjump(lv); err != nil {
			return err
		}
	}
}

// next returns the pending gem with the fewest candidates, breaking ties by
// the number of requirers (more first) and then by name.
func (s *solver) next() (string, bool, error) {
	var pending []string
	for name, edges := range s.incoming {
		if len(edges) > 0 && s.assigned[name] == nil {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		return "", false, nil
	}
	if err := s.index.Prefetch(s.ctx, pending); err != nil {
		return "", false, err
	}

	type choice struct {
		name      string
		options   int
		requirers int
	}
	choices := make([]choice, 0, len(pending))
	for _, name := range pending {
		opts, _, _, err := s.options(name)
		if err != nil {
			return "", false, err
		}
		choices = append(choices, choice{name, len(opts), len(s.incoming[name])})
	}
	best := slices.MinFunc(choices, func(a, b choice) int {
		if a.options != b.options {
			return a.options - b.options
		}
		if a.requirers != b.requirers {
			return b.requirers - a.requirers
		}
		return strings.Compare(a.name, b.name)
	})
	return best.name, true, nil
}

// open pushes a decision level for name.
func (s *solver) open(name string) (*level, error) {
	alts, blame, reason, err := s.options(name)
	if err != nil {
		return nil, err
	}
	lv := &level{
		n:         len(s.levels) + 1,
		name:      name,
		alts:      alts,
		conflicts: blame,
	}
	if len(alts) == 0 {
		lv.reasons = append(lv.reasons, reason)
	}
	s.levels = append(s.levels, lv)
	s.assigned[name] = lv
	s.logger.Debug("deciding", "gem", name, "level", lv.n, "candidates", len(alts))
	return lv, nil
}

// options returns the viable candidates for name in preference order, the
// levels responsible for name being required, and a conflict describing an
// empty result. Fetch failures other than a missing gem are returned as
// errors.
//
// Every requiring level is blamed, not only those that removed candidates:
// a different choice there may not need name at all.
func (s *solver) options(name string) ([]source.Candidate, map[int]bool, Conflict, error) {
	edges := s.incoming[name]
	blame := make(map[int]bool, len(edges))
	for _, e := range edges {
		blame[e.level] = true
	}
	reason := Conflict{Name: name, Edges: publicEdges(edges)}

	all, err := s.index.Candidates(s.ctx, name)
	if err != nil {
		var nf *index.GemNotFoundError
		if !errors.As(err, &nf) || len(nf.Failures) > 0 {
			return nil, nil, Conflict{}, err
		}
		reason.Missing = true
		return nil, blame, reason, nil
	}

	locked, hasLocked := s.req.prefersLocked(name)
	allowPre := false
	for _, e := range edges {
		if e.Requirement.Prerelease() {
			allowPre = true
		}
	}

	pin, pinned := s.pins[name]
	var out []source.Candidate
	for _, c := range variants(all, s.target) {
		if pinned && !c.Version.Equal(pin) {
			continue
		}
		if c.Version.Prerelease() && !allowPre && !(hasLocked && c.Version.Equal(locked)) {
			continue
		}
		if s.req.Ruby != nil && !c.RequiredRuby.Satisfied(*s.req.Ruby) {
			continue
		}
		if satisfiesAll(edges, c.Version) {
			out = append(out, c)
		}
	}

	if hasLocked {
		promote(out, locked)
	} else if prev, ok := s.req.Locked[name]; ok {
		out = s.req.Level.rank(out, prev, s.req.Strict)
	}
	if v, ok := s.preferred[name]; ok {
		promote(out, v)
	}
	return out, blame, reason, nil
}

func satisfiesAll(edges []edge, v gemver.Version) bool {
	for _, e := range edges {
		if !e.Requirement.Satisfied(v) {
			return false
		}
	}
	return true
}

// promote moves the candidate with version v to the front, keeping the
// order of the rest.
func promote(cs []source.Candidate, v gemver.Version) {
	for i, c := range cs {
		if c.Version.Equal(v) {
			copy(cs[1:i+1], cs[:i])
			cs[0] = c
			return
		}
	}
}

// advance commits the first alternative of lv whose dependencies agree
// with the gems already chosen. It returns false when none is left.
func (s *solver) advance(lv *level) bool {
	for len(lv.alts) > 0 {
		c := lv.current()
		deps, err := s.index.Dependencies(s.ctx, c)
		if err != nil {
			// Unreadable metadata rules the candidate out.
			s.logger.Warn("skipping candidate", "gem", c.String(), "err", err)
			lv.alts = lv.alts[1:]
			continue
		}
		if s.compatible(lv, c, deps) {
			lv.deps = deps
			for _, d := range deps {
				if d.Name == c.Name {
					continue
				}
				s.incoming[d.Name] = append(s.incoming[d.Name], edge{
					Edge:  Edge{From: c.Name, FromVersion: c.Version.String(), Requirement: d.Requirement},
					level: lv.n,
				})
			}
			return true
		}
		lv.alts = lv.alts[1:]
	}
	return false
}

// compatible checks deps of c against gems already decided, recording the
// blame on lv when one of them is violated.
func (s *solver) compatible(lv *level, c source.Candidate, deps []source.Dependency) bool {
	for _, d := range deps {
		other := s.assigned[d.Name]
		if other == nil || other == lv {
			continue
		}
		chosen := other.current()
		if d.Requirement.Satisfied(chosen.Version) {
			continue
		}
		lv.conflicts[other.n] = true
		newEdge := Edge{From: c.Name, FromVersion: c.Version.String(), Requirement: d.Requirement}
		lv.reasons = append(lv.reasons, Conflict{
			Name:     d.Name,
			Edges:    append([]Edge{newEdge}, publicEdges(s.incoming[d.Name])...),
			Selected: chosen.Version.String(),
		})
		return false
	}
	return true
}

// backjump unwinds from the exhausted level lv to the deepest level that
// contributed to its failure and resumes there with the next alternative.
// It fails with a SolveFailure when the manifest itself is to blame.
func (s *solver) backjump(lv *level) error {
	for {
		to := 0
		for n := range lv.conflicts {
			if n < lv.n && n > to {
				to = n
			}
		}
		if to == 0 {
			return &SolveFailure{Platform: s.target, Conflicts: lv.reasons}
		}

		target := s.levels[to-1]
		s.backtracks++
		observability.Resolve().OnBacktrack(s.ctx, target.name, lv.n-to)
		s.logger.Debug("backjumping", "from", lv.name, "to", target.name, "levels", lv.n-to)

		for n := range lv.conflicts {
			if n < to {
				target.conflicts[n] = true
			}
		}
		target.reasons = append(target.reasons, lv.reasons...)

		s.undo(to)
		target.alts = target.alts[1:]
		if s.advance(target) {
			return nil
		}
		lv = target
	}
}

// undo discards every level deeper than n together with the requirements
// they added, and retracts the requirements of level n's current choice.
func (s *solver) undo(n int) {
	for _, lv := range s.levels[n:] {
		delete(s.assigned, lv.name)
	}
	s.levels = s.levels[:n]
	for name, edges := range s.incoming {
		kept := edges[:0]
		for _, e := range edges {
			if e.level < n {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(s.incoming, name)
		} else {
			s.incoming[name] = kept
		}
	}
	s.levels[n-1].deps = nil
}

func (s *solver) result() []ResolvedSpec {
	out := make([]ResolvedSpec, 0, len(s.levels))
	for _, lv := range s.levels {
		spec := ResolvedSpec{Candidate: lv.current(), Deps: lv.deps}
		for _, e := range s.incoming[lv.name] {
			if e.From == "" {
				spec.Direct = true
			} else if !slices.Contains(spec.RequiredBy, e.From) {
				spec.RequiredBy = append(spec.RequiredBy, e.From)
			}
		}
		slices.Sort(spec.RequiredBy)
		out = append(out, spec)
	}
	SortSpecs(out)
	return out
}

func publicEdges(edges []edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Edge
	}
	return out
}

// variants keeps one candidate per version: the most specific platform
// variant installable on target. Input order (newest first) is preserved.
func variants(all []source.Candidate, target platform.Platform) []source.Candidate {
	var out []source.Candidate
	best := make(map[string]int) // version -> index in out
	for _, c := range all {
		score := specificity(c.Platform, target)
		if score < 0 {
			continue
		}
		v := c.Version.String()
		i, ok := best[v]
		if !ok {
			best[v] = len(out)
			out = append(out, c)
			continue
		}
		if score > specificity(out[i].Platform, target) {
			out[i] = c
		}
	}
	return out
}

// specificity ranks how closely a gem platform fits target; -1 means it
// does not install there.
func specificity(p, target platform.Platform) int {
	if p.IsRuby() {
		return 0
	}
	if !p.Match(target) {
		return -1
	}
	score := 1
	if p.CPU == target.CPU {
		score += 2
	}
	if p.Version != "" && p.Version == target.Version {
		score++
	}
	return score
}
