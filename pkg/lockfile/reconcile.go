package lockfile

import (
	"slices"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/resolver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// ReconcileOptions carries what the new lock takes from outside the
// resolution.
type ReconcileOptions struct {
	// Sources are the manifest sources in declaration order. Sources that
	// provided a resolved spec are replaced by the spec's locked ref.
	Sources      []source.Ref
	Dependencies []Dependency
	Platforms    platform.Set

	// RubyVersion and BundledWith override the previous values when set.
	RubyVersion string
	BundledWith string
}

// ApplyPlatforms adds and removes platforms from current. Removing a
// platform that is not locked, or removing every platform, is an
// INVALID_OPTION error.
func ApplyPlatforms(current platform.Set, add, remove []platform.Platform) (platform.Set, error) {
	out := slices.Clone(current)
	for _, p := range remove {
		if !out.Contains(p) && !slices.Contains(add, p) {
			return nil, errors.New(errors.ErrCodeInvalidOption, "platform %s is not present in the lockfile", p)
		}
		out = out.Remove(p)
	}
	for _, p := range add {
		if slices.Contains(remove, p) {
			continue
		}
		out = out.Add(p)
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidOption, "removing all platforms is not allowed")
	}
	return out, nil
}

// Reconcile builds the lock to persist from a successful resolution and the
// previous lock, which may be nil. Checksums of specs that did not change
// are kept when the source reports none. Unknown sections of prev are
// carried over.
func Reconcile(prev *LockedGems, resolved []resolver.ResolvedSpec, opts ReconcileOptions) (*LockedGems, Diff) {
	if prev == nil {
		prev = &LockedGems{}
	}
	next := &LockedGems{
		Platforms:    slices.Clone(opts.Platforms),
		Dependencies: slices.Clone(opts.Dependencies),
		RubyVersion:  prev.RubyVersion,
		BundledWith:  prev.BundledWith,
		Unknown:      slices.Clone(prev.Unknown),
		HasChecksums: prev.HasChecksums,
	}
	if len(next.Platforms) == 0 {
		next.Platforms = slices.Clone(prev.Platforms)
	}
	if opts.RubyVersion != "" {
		next.RubyVersion = opts.RubyVersion
	}
	if opts.BundledWith != "" {
		next.BundledWith = opts.BundledWith
	}

	oldSums := make(map[string]string, len(prev.Specs))
	for _, s := range prev.Specs {
		if s.Checksum != "" {
			oldSums[s.Source.Identity()+" "+s.FullName()] = s.Checksum
		}
	}

	locked := make(map[string]source.Ref)
	for _, rs := range resolved {
		ref := rs.Source.Ref()
		locked[ref.Identity()] = ref
		spec := Spec{
			Name:     rs.Name,
			Version:  rs.Version,
			Platform: rs.Platform,
			Source:   ref,
			Deps:     slices.Clone(rs.Deps),
			Checksum: rs.Checksum,
		}
		if spec.Checksum == "" {
			spec.Checksum = oldSums[ref.Identity()+" "+spec.FullName()]
		}
		next.Specs = append(next.Specs, spec)
	}
	SortSpecs(next.Specs)

	seen := make(map[string]bool)
	for _, ref := range opts.Sources {
		id := ref.Identity()
		if seen[id] {
			continue
		}
		seen[id] = true
		if l, ok := locked[id]; ok {
			ref = l
		}
		next.Sources = append(next.Sources, ref)
	}
	for id, ref := range locked {
		if !seen[id] {
			seen[id] = true
			next.Sources = append(next.Sources, ref)
		}
	}
	slices.SortStableFunc(next.Sources, func(a, b source.Ref) int {
		return kindOrder(a.Kind) - kindOrder(b.Kind)
	})

	return next, Compare(prev, next)
}
