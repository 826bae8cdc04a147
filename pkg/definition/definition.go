// Package definition orchestrates one resolution: it combines a manifest,
// the previous lock and the settings, decides which gems may move, runs the
// resolver against the configured sources and produces the lock to write.
//
// A Definition is built per invocation and never mutated by its inputs
// changing; use [Definition.WithOptions] to derive one with different
// update options. Resolution results are stored on the Definition and
// exposed through [Definition.Specs], [Definition.ToLock] and
// [Definition.Diff].
//
// Installers must call [Definition.ValidateRuntime] before reading
// [Definition.Specs].
package definition

import (
	"slices"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/config"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/index"
	"github.com/matzehuels/gemlock/pkg/lockfile"
	"github.com/matzehuels/gemlock/pkg/manifest"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/resolver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// Options selects what a resolution may change.
type Options struct {
	// UpdateAll ignores every locked version.
	UpdateAll bool
	// Update names gems to unlock. Their dependencies are unlocked too
	// unless Conservative is set.
	Update []string
	// Groups unlocks every gem declared in the groups.
	Groups []string
	// Sources unlocks every gem declared from the named git or path
	// sources. See [source.Ref.Name].
	Sources      []string
	Conservative bool
	// Ruby replaces the locked RUBY VERSION with the current one.
	Ruby bool

	// Level and Strict bound how far unlocked gems may move from their
	// locked versions.
	Level  resolver.Level
	Strict bool

	AddPlatforms    []string
	RemovePlatforms []string
}

func (o Options) updating() bool {
	return o.UpdateAll || len(o.Update) > 0 || len(o.Groups) > 0 || len(o.Sources) > 0 || o.Ruby
}

// Definition is one manifest with its optional lock.
type Definition struct {
	full     *manifest.Model
	model    *manifest.Model // without excluded groups
	locked   *lockfile.LockedGems
	settings config.Settings
	opts     Options

	root        string
	logger      *log.Logger
	cache       cache.Cache
	opener      source.Opener
	local       platform.Platform
	bundledWith string
	runID       string
	options     []Option

	platforms platform.Set
	unlock    map[string]bool

	resolved    []resolver.ResolvedSpec
	sources     map[string]source.Source
	ambiguities []index.Ambiguity
	lock        *lockfile.LockedGems
	diff        lockfile.Diff
	reused      bool
	validated   bool
}

// Option configures a Definition.
type Option func(*Definition)

// WithLogger sets the logger. The run id is attached as the "run" field.
func WithLogger(l *log.Logger) Option {
	return func(d *Definition) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithCache sets the cache for compact index responses.
func WithCache(c cache.Cache) Option {
	return func(d *Definition) {
		if c != nil {
			d.cache = c
		}
	}
}

// WithSourceOpener replaces [source.Open].
func WithSourceOpener(o source.Opener) Option {
	return func(d *Definition) {
		if o != nil {
			d.opener = o
		}
	}
}

// WithRoot sets the project directory path sources are relative to.
func WithRoot(dir string) Option {
	return func(d *Definition) { d.root = dir }
}

// WithLocalPlatform sets the platform a new lock is created for. The
// default is [platform.Local].
func WithLocalPlatform(p platform.Platform) Option {
	return func(d *Definition) { d.local = p }
}

// WithBundledWith sets the tool version recorded in a new lock.
func WithBundledWith(v string) Option {
	return func(d *Definition) { d.bundledWith = v }
}

// WithUpdate sets the update options.
func WithUpdate(o Options) Option {
	return func(d *Definition) { d.opts = o }
}

// New validates the options against the manifest and lock. locked may be
// nil. Invalid options fail here, before any source is contacted.
func New(model *manifest.Model, locked *lockfile.LockedGems, settings config.Settings, opts ...Option) (*Definition, error) {
	if model == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "definition needs a manifest")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	d := &Definition{
		full:     model,
		model:    model.Without(settings.ExcludedGroups()...),
		locked:   locked,
		settings: settings,
		logger:   log.Default(),
		cache:    cache.NewNullCache(),
		opener:   source.Open,
		local:    platform.Local(),
		runID:    uuid.NewString(),
		options:  opts,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("run", d.runID[:8])

	if err := d.validateOptions(); err != nil {
		return nil, err
	}
	return d, nil
}

// WithOptions returns a new Definition over the same inputs with o as
// update options.
func (d *Definition) WithOptions(o Options) (*Definition, error) {
	opts := append(slices.Clone(d.options), WithUpdate(o))
	return New(d.full, d.locked, d.settings, opts...)
}

// RunID identifies this resolution in logs and traces.
func (d *Definition) RunID() string { return d.runID }

// Options returns the update options.
func (d *Definition) Options() Options { return d.opts }

// Locked returns the previous lock, or nil.
func (d *Definition) Locked() *lockfile.LockedGems { return d.locked }

// Manifest returns the requirement model with excluded groups removed.
func (d *Definition) Manifest() *manifest.Model { return d.model }

// Platforms returns the platforms the lock will cover.
func (d *Definition) Platforms() platform.Set { return slices.Clone(d.platforms) }

func (d *Definition) validateOptions() error {
	o := d.opts
	if o.UpdateAll && (len(o.Update) > 0 || len(o.Groups) > 0 || len(o.Sources) > 0) {
		return errors.New(errors.ErrCodeInvalidOption, "cannot update all gems and specific gems at the same time")
	}

	known := d.full.Names()
	if d.locked != nil {
		known = append(known, d.locked.Names()...)
	}
	for _, name := range o.Update {
		if !slices.Contains(known, name) {
			return errors.New(errors.ErrCodeInvalidOption, "could not find gem '%s' in the manifest or the lockfile", name)
		}
	}
	groups := d.full.Groups()
	for _, g := range o.Groups {
		if !slices.Contains(groups, g) {
			return errors.New(errors.ErrCodeInvalidOption, "unknown group %q", g)
		}
	}
	for _, name := range o.Sources {
		if !slices.ContainsFunc(d.full.Sources(), func(r source.Ref) bool { return r.Name() == name }) {
			return errors.New(errors.ErrCodeInvalidOption, "unknown source %q", name)
		}
	}

	base := platform.Set{d.local}
	if d.locked != nil && len(d.locked.Platforms) > 0 {
		base = d.locked.Platforms
	}
	add, err := parsePlatforms(o.AddPlatforms)
	if err != nil {
		return err
	}
	remove, err := parsePlatforms(o.RemovePlatforms)
	if err != nil {
		return err
	}
	if d.platforms, err = lockfile.ApplyPlatforms(base, add, remove); err != nil {
		return err
	}

	d.unlock = d.unlocked()
	return nil
}

func parsePlatforms(names []string) (platform.Set, error) {
	s, err := platform.ParseSet(names...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidOption, err, "invalid platform")
	}
	return s, nil
}

// unlocked returns the gems whose locked version is not preferred. Named
// gems unlock their locked dependencies transitively unless the update is
// conservative.
func (d *Definition) unlocked() map[string]bool {
	out := make(map[string]bool)
	names := slices.Clone(d.opts.Update)
	if len(d.opts.Groups) > 0 {
		for r := range d.full.DependenciesFor(d.opts.Groups...) {
			names = append(names, r.Name)
		}
	}
	for _, r := range d.full.Dependencies() {
		if r.Source != nil && slices.Contains(d.opts.Sources, r.Source.Name()) {
			names = append(names, r.Name)
		}
	}
	for _, n := range names {
		out[n] = true
	}
	if d.opts.Conservative || d.locked == nil {
		return out
	}

	deps := make(map[string][]string)
	for _, s := range d.locked.Specs {
		for _, dep := range s.Deps {
			deps[s.Name] = append(deps[s.Name], dep.Name)
		}
	}
	queue := names
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dep := range deps[name] {
			if !out[dep] {
				out[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return out
}

// Updated returns the gems named for update, sorted.
func (d *Definition) Updated() []string {
	var out []string
	for name := range d.unlock {
		if slices.Contains(d.opts.Update, name) || d.inGroups(name) || d.inSources(name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func (d *Definition) inSources(name string) bool {
	for _, r := range d.full.Lookup(name) {
		if r.Source != nil && slices.Contains(d.opts.Sources, r.Source.Name()) {
			return true
		}
	}
	return false
}

func (d *Definition) inGroups(name string) bool {
	if len(d.opts.Groups) == 0 {
		return false
	}
	for r := range d.full.DependenciesFor(d.opts.Groups...) {
		if r.Name == name {
			return true
		}
	}
	return false
}
