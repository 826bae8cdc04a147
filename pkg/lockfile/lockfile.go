// Package lockfile reads, writes and reconciles Gemfile.lock files.
//
// The format is line oriented. Source sections (GIT, PATH, GEM) list the
// specs each source provides with their dependencies; PLATFORMS,
// DEPENDENCIES, CHECKSUMS, RUBY VERSION and BUNDLED WITH follow:
//
//	GEM
//	  remote: https://rubygems.org/
//	  specs:
//	    rack (3.0.8)
//	    rails (7.1.2)
//	      rack (>= 2.2.4)
//
//	PLATFORMS
//	  ruby
//	  x86_64-linux
//
//	DEPENDENCIES
//	  rails (~> 7.1)
//
//	BUNDLED WITH
//	   2.5.3
//
// Output is deterministic so that lockfile diffs under version control only
// reflect real changes. Sections this package does not understand are kept
// verbatim and can be written back unchanged.
package lockfile

import (
	"slices"
	"strings"

	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/source"
)

// DefaultName is the lockfile written next to a manifest.
const DefaultName = "Gemfile.lock"

// Spec is one locked gem.
type Spec struct {
	Name     string
	Version  gemver.Version
	Platform platform.Platform
	Source   source.Ref
	Deps     []source.Dependency
	Checksum string // sha256 hex
}

// FullName returns name-version[-platform].
func (s Spec) FullName() string {
	v := s.Name + "-" + s.Version.String()
	if !s.Platform.IsRuby() {
		v += "-" + s.Platform.String()
	}
	return v
}

func (s Spec) versionString() string {
	if s.Platform.IsRuby() {
		return s.Version.String()
	}
	return s.Version.String() + "-" + s.Platform.String()
}

// Dependency is an entry of the DEPENDENCIES section.
type Dependency struct {
	Name        string
	Requirement gemver.Requirement
	Pinned      bool // declared with an explicit non-default source ("!")
}

// Section is a section kept verbatim.
type Section struct {
	Name  string
	Lines []string
}

// LockedGems is the content of a lockfile.
type LockedGems struct {
	Sources      []source.Ref
	Specs        []Spec
	Platforms    platform.Set
	Dependencies []Dependency
	RubyVersion  string // e.g. "ruby 3.2.2p53"
	BundledWith  string
	Unknown      []Section

	// HasChecksums records a CHECKSUMS section, which is written back even
	// when it has no entries.
	HasChecksums bool
}

// SpecsNamed returns the locked specs of name, one per platform.
func (lg *LockedGems) SpecsNamed(name string) []Spec {
	var out []Spec
	for _, s := range lg.Specs {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Versions returns the highest locked version of every gem.
func (lg *LockedGems) Versions() map[string]gemver.Version {
	out := make(map[string]gemver.Version, len(lg.Specs))
	for _, s := range lg.Specs {
		if v, ok := out[s.Name]; !ok || s.Version.Compare(v) > 0 {
			out[s.Name] = s.Version
		}
	}
	return out
}

// Names returns the sorted names of all locked gems.
func (lg *LockedGems) Names() []string {
	var out []string
	for _, s := range lg.Specs {
		if !slices.Contains(out, s.Name) {
			out = append(out, s.Name)
		}
	}
	slices.Sort(out)
	return out
}

// Dependency returns the DEPENDENCIES entry for name.
func (lg *LockedGems) Dependency(name string) (Dependency, bool) {
	for _, d := range lg.Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// RubyRequirement returns the locked ruby version as an exact
// requirement, without the patchlevel.
func (lg *LockedGems) RubyRequirement() (gemver.Requirement, bool) {
	if lg.RubyVersion == "" {
		return gemver.Any, false
	}
	fields := strings.Fields(lg.RubyVersion)
	if len(fields) < 2 {
		return gemver.Any, false
	}
	raw := fields[1]
	if i := strings.IndexByte(raw, 'p'); i > 0 {
		raw = raw[:i]
	}
	v, err := gemver.Parse(raw)
	if err != nil {
		return gemver.Any, false
	}
	return gemver.Exact(v), true
}

func compareSpecs(a, b Spec) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := a.Version.Compare(b.Version); c != 0 {
		return c
	}
	return platform.Compare(a.Platform, b.Platform)
}

// SortSpecs orders specs by name, version and platform.
func SortSpecs(specs []Spec) {
	slices.SortFunc(specs, compareSpecs)
}
