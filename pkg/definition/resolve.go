package definition

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/index"
	"github.com/matzehuels/gemlock/pkg/lockfile"
	"github.com/matzehuels/gemlock/pkg/manifest"
	"github.com/matzehuels/gemlock/pkg/observability"
	"github.com/matzehuels/gemlock/pkg/resolver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// ResolveRemotely resolves with network access to every source.
func (d *Definition) ResolveRemotely(ctx context.Context) error {
	return d.resolve(ctx, source.ModeRemote)
}

// ResolveWithCache resolves preferring cached index data and falling back
// to the network.
func (d *Definition) ResolveWithCache(ctx context.Context) error {
	return d.resolve(ctx, source.ModeCached)
}

// ResolveOnlyLocally resolves from data already on this machine: path
// sources, existing git checkouts, cached index responses and the locked
// specs.
func (d *Definition) ResolveOnlyLocally(ctx context.Context) error {
	return d.resolve(ctx, source.ModeLocal)
}

func (d *Definition) resolve(ctx context.Context, mode source.Mode) (err error) {
	ctx, span := observability.StartSpan(ctx, "definition.resolve",
		attribute.String("run_id", d.runID),
		attribute.String("mode", mode.String()),
	)
	defer func() { observability.EndSpan(span, err) }()
	start := time.Now()

	d.resolved, d.lock, d.ambiguities, d.reused, d.validated = nil, nil, nil, false, false

	if err := d.openSources(mode); err != nil {
		return err
	}

	if d.lockSatisfied() {
		d.logger.Debug("lockfile satisfies the manifest, reusing locked specs")
		d.resolved = d.lockedSpecs()
		d.reused = true
	} else {
		if err := d.runResolver(ctx, mode); err != nil {
			return err
		}
	}

	d.lock, d.diff = lockfile.Reconcile(d.locked, d.resolved, lockfile.ReconcileOptions{
		Sources:      d.model.Sources(),
		Dependencies: d.dependencies(),
		Platforms:    d.platforms,
		RubyVersion:  d.rubyVersionLine(),
		BundledWith:  d.bundledWithLine(),
	})
	d.logger.Debug("resolution finished", "mode", mode, "gems", len(d.lock.Names()), "reused", d.reused, "took", time.Since(start))
	span.SetAttributes(attribute.Bool("reused", d.reused), attribute.Int("gems", len(d.lock.Names())))
	return nil
}

func (d *Definition) runResolver(ctx context.Context, mode source.Mode) error {
	remotes, pinned, err := d.indexSources()
	if err != nil {
		return err
	}
	ix := index.New(remotes,
		index.WithPinned(pinned),
		index.WithPlatforms(d.platforms),
		index.WithLocked(d.lockedCandidates()),
		index.WithMode(mode),
		index.WithJobs(d.settings.Jobs),
		index.WithLogger(d.logger),
	)

	req := resolver.Request{
		Roots:     d.roots(),
		Unlock:    d.unlock,
		UnlockAll: d.opts.UpdateAll,
		Level:     d.opts.Level,
		Strict:    d.opts.Strict,
	}
	if d.locked != nil {
		req.Locked = d.locked.Versions()
	}
	if d.settings.RubyVersion != "" {
		v, err := gemver.Parse(d.settings.RubyVersion)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidOption, err, "invalid ruby_version %q", d.settings.RubyVersion)
		}
		req.Ruby = &v
	}

	specs, err := resolver.New(ix, resolver.WithLogger(d.logger)).ResolveAll(ctx, req, d.platforms)
	if err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}
	d.resolved = specs
	d.ambiguities = ix.Ambiguities()
	for _, a := range d.ambiguities {
		d.logger.Warn("gem found in more than one source", "gem", a.Name, "version", a.Version, "using", a.Sources[0], "ignored", a.Sources[1:])
	}
	return nil
}

// openSources opens every manifest source. A source whose gems may not
// move keeps the revision recorded in the lock.
func (d *Definition) openSources(mode source.Mode) error {
	env := source.Env{
		Root:     d.root,
		CacheDir: d.settings.CacheDir,
		Cache:    d.cache,
		Keyer:    d.settings.Keyer(),
		TTL:      d.settings.CacheTTL,
		Mode:     mode,
		Timeout:  d.settings.Timeout,
		Backoff:  d.settings.Backoff(),
		Logger:   d.logger,
	}
	lockedRefs := make(map[string]source.Ref)
	if d.locked != nil {
		for _, ref := range d.locked.Sources {
			lockedRefs[ref.Identity()] = ref
		}
	}

	d.sources = make(map[string]source.Source)
	for _, ref := range d.model.Sources() {
		id := ref.Identity()
		if l, ok := lockedRefs[id]; ok && !d.sourceUnlocked(id) {
			ref = l
		}
		src, err := d.opener(ref, env)
		if err != nil {
			return fmt.Errorf("open source %s: %w", ref, err)
		}
		d.sources[id] = src
	}
	return nil
}

func (d *Definition) sourceUnlocked(id string) bool {
	if d.opts.UpdateAll {
		return true
	}
	for _, r := range d.model.Dependencies() {
		if r.SourceIdentity() == id && d.unlock[r.Name] {
			return true
		}
	}
	return false
}

// indexSources returns the sources in declaration order and the gems
// pinned to one of them.
func (d *Definition) indexSources() ([]source.Source, map[string]source.Source, error) {
	var all []source.Source
	for _, ref := range d.model.Sources() {
		all = append(all, d.sources[ref.Identity()])
	}
	pinned := make(map[string]source.Source)
	for _, r := range d.model.Dependencies() {
		if r.Source != nil {
			pinned[r.Name] = d.sources[r.SourceIdentity()]
		}
	}
	return all, pinned, nil
}

func (d *Definition) roots() []resolver.Root {
	var out []resolver.Root
	for r := range d.model.DependenciesFor() {
		out = append(out, resolver.Root{Name: r.Name, Requirement: r.Requirement, Platforms: r.Platforms})
	}
	return out
}

// dependencies returns the DEPENDENCIES section: one entry per name, with
// the requirements of all declarations intersected.
func (d *Definition) dependencies() []lockfile.Dependency {
	var out []lockfile.Dependency
	for r := range d.model.DependenciesFor() {
		i := slices.IndexFunc(out, func(dep lockfile.Dependency) bool { return dep.Name == r.Name })
		if i < 0 {
			out = append(out, lockfile.Dependency{Name: r.Name, Requirement: r.Requirement, Pinned: pinnedDep(r)})
			continue
		}
		out[i].Requirement = out[i].Requirement.Intersect(r.Requirement)
	}
	return out
}

// pinnedDep reports whether the lock marks r with "!". Gems from the
// global remotes are not marked.
func pinnedDep(r manifest.Requirement) bool {
	return r.Source != nil
}

// rubyVersionLine is the RUBY VERSION to record. A locked one is kept
// unless the update asks for the ruby version to move.
func (d *Definition) rubyVersionLine() string {
	if _, ok := d.model.RubyRequirement(); !ok || d.settings.RubyVersion == "" {
		return ""
	}
	if d.locked != nil && d.locked.RubyVersion != "" && !d.opts.Ruby {
		return ""
	}
	fields := strings.Fields(d.settings.RubyVersion)
	if len(fields) >= 3 && fields[1] != "ruby" {
		return fmt.Sprintf("ruby %s (%s %s)", fields[0], fields[1], fields[2])
	}
	return "ruby " + fields[0]
}

func (d *Definition) bundledWithLine() string {
	if d.locked != nil && d.locked.BundledWith != "" {
		return ""
	}
	return d.bundledWith
}

// lockedCandidates turns the locked specs into candidates of the opened
// sources. Specs from sources no longer declared are dropped.
func (d *Definition) lockedCandidates() []source.Candidate {
	if d.locked == nil {
		return nil
	}
	var out []source.Candidate
	for _, s := range d.locked.Specs {
		src, ok := d.sources[s.Source.Identity()]
		if !ok {
			continue
		}
		out = append(out, source.Candidate{
			Name:     s.Name,
			Version:  s.Version,
			Platform: s.Platform,
			Source:   src,
			Deps:     s.Deps,
			Checksum: s.Checksum,
		})
	}
	return out
}

// lockSatisfied reports whether the previous lock can be reused as is: no
// update or platform change was requested, every manifest requirement is
// met by a locked spec of the same source, and every locked dependency is
// met inside the lock.
func (d *Definition) lockSatisfied() bool {
	lg := d.locked
	if lg == nil || d.opts.updating() || len(d.opts.AddPlatforms) > 0 || len(d.opts.RemovePlatforms) > 0 {
		return false
	}
	if !slices.Equal(lg.Platforms.Strings(), d.platforms.Strings()) {
		return false
	}

	deps := d.dependencies()
	if len(deps) != len(lg.Dependencies) {
		return false
	}
	for _, dep := range deps {
		old, ok := lg.Dependency(dep.Name)
		if !ok || old.Pinned != dep.Pinned || !old.Requirement.Equal(dep.Requirement) {
			return false
		}
	}

	for _, s := range lg.Specs {
		if _, ok := d.sources[s.Source.Identity()]; !ok {
			return false
		}
	}
	for r := range d.model.DependenciesFor() {
		if !lockProvides(lg, r.Name, r.Requirement, r.SourceIdentity()) {
			return false
		}
	}
	for _, s := range lg.Specs {
		for _, dep := range s.Deps {
			if !lockProvides(lg, dep.Name, dep.Requirement, "") {
				return false
			}
		}
	}
	return true
}

func lockProvides(lg *lockfile.LockedGems, name string, req gemver.Requirement, sourceID string) bool {
	for _, s := range lg.SpecsNamed(name) {
		if req.Satisfied(s.Version) && (sourceID == "" || s.Source.Identity() == sourceID) {
			return true
		}
	}
	return false
}

// lockedSpecs converts the previous lock into resolved specs.
func (d *Definition) lockedSpecs() []resolver.ResolvedSpec {
	requiredBy := make(map[string][]string)
	for _, s := range d.locked.Specs {
		for _, dep := range s.Deps {
			if !slices.Contains(requiredBy[dep.Name], s.Name) {
				requiredBy[dep.Name] = append(requiredBy[dep.Name], s.Name)
			}
		}
	}
	direct := d.model.Names()

	var out []resolver.ResolvedSpec
	for _, c := range d.lockedCandidates() {
		by := requiredBy[c.Name]
		slices.Sort(by)
		out = append(out, resolver.ResolvedSpec{
			Candidate:  c,
			Deps:       c.Deps,
			RequiredBy: by,
			Direct:     slices.Contains(direct, c.Name),
		})
	}
	resolver.SortSpecs(out)
	return out
}
