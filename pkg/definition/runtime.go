package definition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/resolver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// Runtime describes the interpreter gems will be installed for.
type Runtime struct {
	RubyVersion   gemver.Version
	Engine        string // "ruby", "jruby", "truffleruby"; empty means ruby
	EngineVersion gemver.Version
	Platform      platform.Platform
}

// engine returns the engine name and version. MRI's engine version is its
// ruby version.
func (rt Runtime) engine() (string, gemver.Version) {
	if rt.Engine == "" || rt.Engine == "ruby" {
		return "ruby", rt.RubyVersion
	}
	return rt.Engine, rt.EngineVersion
}

func (rt Runtime) String() string {
	engine, version := rt.engine()
	if engine == "ruby" {
		return fmt.Sprintf("ruby %s (%s)", rt.RubyVersion, rt.Platform)
	}
	return fmt.Sprintf("%s %s, ruby %s (%s)", engine, version, rt.RubyVersion, rt.Platform)
}

// ValidateRuntime checks that rt can run the bundle: the manifest's ruby
// and engine requirements, the required ruby version of every resolved gem
// and the locked platforms. Mismatches are RUBY_VERSION_MISMATCH errors. It must
// succeed before [Definition.Specs] returns anything.
func (d *Definition) ValidateRuntime(rt Runtime) error {
	if req, ok := d.model.RubyRequirement(); ok && !req.Satisfied(rt.RubyVersion) {
		return errors.New(errors.ErrCodeRubyVersion,
			"your Ruby version is %s, but your Gemfile specified %s", rt.RubyVersion, req)
	}
	if want, ok := d.model.RubyEngine(); ok {
		engine, version := rt.engine()
		if engine != want.Name {
			return errors.New(errors.ErrCodeRubyVersion,
				"your Ruby engine is %s, but your Gemfile specified %s", engine, want.Name)
		}
		if !want.Version.Satisfied(version) {
			return errors.New(errors.ErrCodeRubyVersion,
				"your %s version is %s, but your Gemfile specified %s %s", engine, version, engine, want.Version)
		}
	}
	for _, s := range d.resolved {
		if !s.Platform.Match(rt.Platform) && !s.Platform.IsRuby() {
			continue
		}
		if !s.RequiredRuby.Satisfied(rt.RubyVersion) {
			return errors.New(errors.ErrCodeRubyVersion,
				"%s requires ruby version %s, which is incompatible with the current version, %s", s, s.RequiredRuby, rt)
		}
	}
	supported := false
	for _, p := range d.platforms {
		if p.IsRuby() || p.Match(rt.Platform) {
			supported = true
			break
		}
	}
	if !supported {
		return errors.New(errors.ErrCodeRubyVersion,
			"your bundle only supports platforms %v but your local platform is %s; add it with --add-platform %s",
			d.platforms.Strings(), rt.Platform, rt.Platform)
	}
	d.validated = true
	return nil
}

// Specs returns the resolved specs. It fails until the runtime has been
// validated.
func (d *Definition) Specs() ([]resolver.ResolvedSpec, error) {
	if d.lock == nil {
		return nil, ErrNotResolved
	}
	if !d.validated {
		return nil, errors.New(errors.ErrCodeRubyVersion, "runtime has not been validated")
	}
	return d.resolved, nil
}

// Inventory reports which gems are installed.
type Inventory interface {
	Installed(s resolver.ResolvedSpec) bool
}

// DirInventory is an install directory laid out like GEM_HOME: package
// files under cache/ and unpacked gems under gems/. Path and git gems are
// installed when their directory exists.
type DirInventory struct {
	Root string
}

// CacheDir is where package files are downloaded to.
func (inv DirInventory) CacheDir() string { return filepath.Join(inv.Root, "cache") }

// Installed implements [Inventory].
func (inv DirInventory) Installed(s resolver.ResolvedSpec) bool {
	switch src := s.Source.(type) {
	case *source.Path:
		return exists(src.Dir())
	case *source.Git:
		return exists(src.Dir())
	}
	return exists(filepath.Join(inv.Root, "gems", s.FullName())) ||
		exists(filepath.Join(inv.CacheDir(), s.FullName()+".gem"))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MissingSpecs returns the resolved specs for platforms matching local that
// inv does not have.
func (d *Definition) MissingSpecs(inv Inventory, local platform.Platform) ([]resolver.ResolvedSpec, error) {
	if d.lock == nil {
		return nil, ErrNotResolved
	}
	var out []resolver.ResolvedSpec
	for _, s := range d.installable(local) {
		if !inv.Installed(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// SpecsFor returns, per gem, the most specific resolved variant that
// installs on local, in resolution order. Like [Definition.Specs] it fails
// until the runtime has been validated.
func (d *Definition) SpecsFor(local platform.Platform) ([]resolver.ResolvedSpec, error) {
	if _, err := d.Specs(); err != nil {
		return nil, err
	}
	return d.installable(local), nil
}

// installable picks, per gem, the most specific resolved variant that
// installs on local.
func (d *Definition) installable(local platform.Platform) []resolver.ResolvedSpec {
	best := make(map[string]resolver.ResolvedSpec)
	var order []string
	for _, s := range d.resolved {
		if !s.Platform.IsRuby() && !s.Platform.Match(local) {
			continue
		}
		prev, ok := best[s.Name]
		if !ok {
			order = append(order, s.Name)
		}
		if !ok || (prev.Platform.IsRuby() && !s.Platform.IsRuby()) {
			best[s.Name] = s
		}
	}
	out := make([]resolver.ResolvedSpec, 0, len(order))
	for _, name := range order {
		out = append(out, best[name])
	}
	return out
}

// Fetch downloads the package files of the specs missing from inv. The
// runtime must have been validated. It returns the fetched paths.
func (d *Definition) Fetch(ctx context.Context, inv DirInventory, local platform.Platform) ([]string, error) {
	if _, err := d.Specs(); err != nil {
		return nil, err
	}
	missing, err := d.MissingSpecs(inv, local)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, s := range missing {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		path, err := s.Source.FetchArtifact(ctx, s.Candidate, inv.CacheDir())
		if err != nil {
			return paths, fmt.Errorf("fetch %s: %w", s.FullName(), err)
		}
		d.logger.Debug("fetched", "gem", s.FullName(), "path", path)
		paths = append(paths, path)
	}
	return paths, nil
}
