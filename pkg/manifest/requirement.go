// Package manifest holds the requirement model: the direct dependencies a
// project declares, with their sources, groups and platforms.
//
// A [Model] is built by [ParseGemfile], [ParseTOML] or [Load] and is
// read-only once resolution starts. Modeling errors such as a gem declared
// twice are reported when the requirement is added, before any source is
// contacted.
package manifest

import (
	"slices"
	"strings"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// DefaultGroup is the group of requirements declared outside any group.
const DefaultGroup = "default"

// platformTags are the platform names accepted in "platforms:" besides
// explicit cpu-os platforms.
var platformTags = []string{
	"ruby", "mri", "jruby", "java", "truffleruby",
	"windows", "mswin", "mswin64", "mingw", "x64_mingw",
}

// Requirement is one declared dependency.
type Requirement struct {
	Name        string
	Requirement gemver.Requirement

	// Source is set when the gem is pinned to a source other than the
	// global remotes: a git repository, a path or a scoped remote.
	Source    *source.Ref
	Groups    []string
	Platforms []string
}

// Options are the optional parts of a requirement.
type Options struct {
	Source    *source.Ref
	Groups    []string
	Platforms []string
}

// NewRequirement validates and builds a requirement. Groups default to
// [DefaultGroup].
func NewRequirement(name string, constraints []string, opts Options) (Requirement, error) {
	name = strings.TrimSpace(name)
	if err := errors.ValidateGemName(name); err != nil {
		return Requirement{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "invalid gem name %q", name)
	}
	if opts.Source != nil && opts.Source.Glob != "" {
		if err := errors.ValidatePath(opts.Source.Glob); err != nil {
			return Requirement{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "gem %s: invalid glob %q", name, opts.Source.Glob)
		}
	}
	req, err := gemver.ParseRequirement(constraints...)
	if err != nil {
		return Requirement{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "gem %s has an invalid requirement", name)
	}
	for _, p := range opts.Platforms {
		if !slices.Contains(platformTags, p) && !strings.Contains(p, "-") {
			return Requirement{}, errors.New(errors.ErrCodeInvalidManifest, "gem %s: unknown platform %q", name, p)
		}
	}

	groups := dedupe(opts.Groups)
	if len(groups) == 0 {
		groups = []string{DefaultGroup}
	}
	r := Requirement{
		Name:        name,
		Requirement: req,
		Groups:      groups,
		Platforms:   dedupe(opts.Platforms),
	}
	if opts.Source != nil {
		ref := *opts.Source
		r.Source = &ref
	}
	return r, nil
}

func dedupe(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Pinned reports whether the requirement names its own source.
func (r Requirement) Pinned() bool { return r.Source != nil }

// SourceIdentity returns the identity of the pinned source, or "" for the
// global remotes.
func (r Requirement) SourceIdentity() string {
	if r.Source == nil {
		return ""
	}
	return r.Source.Identity()
}

// InGroups reports whether r belongs to any of groups.
func (r Requirement) InGroups(groups ...string) bool {
	for _, g := range r.Groups {
		if slices.Contains(groups, g) {
			return true
		}
	}
	return false
}

// disjoint reports whether r and o can never apply on the same platform.
func (r Requirement) disjoint(o Requirement) bool {
	if len(r.Platforms) == 0 || len(o.Platforms) == 0 {
		return false
	}
	for _, p := range r.Platforms {
		if slices.Contains(o.Platforms, p) {
			return false
		}
	}
	return true
}

func (r Requirement) String() string {
	s := r.Name
	if !r.Requirement.IsAny() {
		s += " (" + r.Requirement.String() + ")"
	}
	if r.Source != nil {
		s += " from " + r.Source.String()
	}
	return s
}
