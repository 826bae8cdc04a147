package lockfile

import (
	"fmt"
	"slices"

	"github.com/matzehuels/gemlock/pkg/gemver"
)

// Change is a gem whose locked version moved.
type Change struct {
	Name     string
	From, To gemver.Version
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s -> %s", c.Name, c.From, c.To)
}

// Diff summarizes the difference between two locks. Versions are compared
// per name using the highest locked version.
type Diff struct {
	Added      []string
	Removed    []string
	Upgraded   []Change
	Downgraded []Change
	// Moved lists gems locked from a different source than before.
	Moved []string
}

// Compare computes the diff from prev to next. Either may be nil.
func Compare(prev, next *LockedGems) Diff {
	if prev == nil {
		prev = &LockedGems{}
	}
	if next == nil {
		next = &LockedGems{}
	}
	before, after := prev.Versions(), next.Versions()
	beforeSrc, afterSrc := sourceIDs(prev), sourceIDs(next)

	var d Diff
	for _, name := range next.Names() {
		v := after[name]
		old, ok := before[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case v.Compare(old) > 0:
			d.Upgraded = append(d.Upgraded, Change{Name: name, From: old, To: v})
		case v.Compare(old) < 0:
			d.Downgraded = append(d.Downgraded, Change{Name: name, From: old, To: v})
		}
		if ok && beforeSrc[name] != afterSrc[name] {
			d.Moved = append(d.Moved, name)
		}
	}
	for _, name := range prev.Names() {
		if _, ok := after[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	return d
}

func sourceIDs(lg *LockedGems) map[string]string {
	out := make(map[string]string, len(lg.Specs))
	for _, s := range lg.Specs {
		out[s.Name] = s.Source.Identity()
	}
	return out
}

// Empty reports whether no gem was added, removed or moved.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Upgraded) == 0 &&
		len(d.Downgraded) == 0 && len(d.Moved) == 0
}

// Regressions returns the downgrades among the explicitly updated gems.
func (d Diff) Regressions(updated []string) []Change {
	var out []Change
	for _, c := range d.Downgraded {
		if slices.Contains(updated, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// Unchanged returns the explicitly updated gems whose version and source
// stayed the same. Gems absent from both locks are not reported.
func (d Diff) Unchanged(updated []string, next *LockedGems) []string {
	var out []string
	versions := next.Versions()
	for _, name := range updated {
		if _, ok := versions[name]; !ok {
			continue
		}
		if d.changed(name) {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (d Diff) changed(name string) bool {
	if slices.Contains(d.Added, name) || slices.Contains(d.Moved, name) {
		return true
	}
	for _, c := range append(slices.Clone(d.Upgraded), d.Downgraded...) {
		if c.Name == name {
			return true
		}
	}
	return false
}
