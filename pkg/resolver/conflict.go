package resolver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/platform"
)

// ManifestRequirer names the manifest in conflict explanations.
const ManifestRequirer = "Gemfile"

// Edge is one requirement placed on a gem.
type Edge struct {
	From        string // requiring gem; empty for the manifest
	FromVersion string
	Requirement gemver.Requirement
}

// Requirer renders who placed the requirement, e.g. "rails (7.1.0)".
func (e Edge) Requirer() string {
	if e.From == "" {
		return ManifestRequirer
	}
	return e.From + " (" + e.FromVersion + ")"
}

// Conflict explains why no candidate of a gem could be chosen.
type Conflict struct {
	Name  string
	Edges []Edge // the new or narrowing requirement first

	// Selected is the version already chosen when a new requirement
	// rejected it; empty when the candidate set ran dry.
	Selected string
	// Missing is set when no source has the gem at all.
	Missing bool
}

func (c Conflict) String() string {
	if len(c.Edges) == 0 {
		return c.Name + " could not be resolved"
	}
	var b strings.Builder
	first := c.Edges[0]
	b.WriteString(first.Requirer() + " requires " + requirement(c.Name, first.Requirement))
	switch {
	case c.Missing:
		b.WriteString(", which could not be found in any source")
		return b.String()
	case len(c.Edges) == 1 && c.Selected == "":
		b.WriteString(", but no version of " + c.Name + " matches")
		return b.String()
	}
	for i, e := range c.Edges[1:] {
		if i == 0 {
			b.WriteString(", but ")
		} else {
			b.WriteString(" and ")
		}
		b.WriteString(e.Requirer() + " requires " + requirement(c.Name, e.Requirement))
	}
	if c.Selected != "" {
		b.WriteString(" (selected " + c.Name + " " + c.Selected + ")")
	}
	return b.String()
}

func requirement(name string, r gemver.Requirement) string {
	if r.IsAny() {
		return name
	}
	return name + " " + r.String()
}

// Split is a gem two platforms resolved to different versions.
type Split struct {
	Name          string
	First         platform.Platform
	FirstVersion  gemver.Version
	Second        platform.Platform
	SecondVersion gemver.Version

	versions []gemver.Version // every version chosen for Name
}

func (s *Split) String() string {
	return fmt.Sprintf("%s resolves to %s on %s but to %s on %s, and no version works on both",
		s.Name, s.FirstVersion, s.First, s.SecondVersion, s.Second)
}

// order returns the disputed versions to try pinning: the locked version
// first, then highest first.
func (s *Split) order(req Request) []gemver.Version {
	out := slices.Clone(s.versions)
	slices.SortFunc(out, func(a, b gemver.Version) int { return b.Compare(a) })
	if locked, ok := req.prefersLocked(s.Name); ok {
		if i := slices.IndexFunc(out, locked.Equal); i > 0 {
			v := out[i]
			out = slices.Insert(slices.Delete(out, i, i+1), 0, v)
		}
	}
	return out
}

// SolveFailure reports requirements that cannot be satisfied together.
type SolveFailure struct {
	Platform  platform.Platform
	Conflicts []Conflict

	// Split is set when each platform resolved on its own but they could
	// not agree on a version of one gem.
	Split *Split
}

func (e *SolveFailure) Error() string {
	var b strings.Builder
	if e.Split != nil {
		fmt.Fprintf(&b, "could not find compatible versions for platforms %s and %s", e.Split.First, e.Split.Second)
	} else {
		fmt.Fprintf(&b, "could not find compatible versions for platform %s", e.Platform)
	}
	for _, line := range e.Lines() {
		b.WriteString("\n  " + line)
	}
	return b.String()
}

// Lines renders each distinct conflict once, in discovery order.
func (e *SolveFailure) Lines() []string {
	var out []string
	if e.Split != nil {
		out = append(out, e.Split.String())
	}
	for _, c := range e.Conflicts {
		if s := c.String(); !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (e *SolveFailure) Unwrap() error {
	return errors.New(errors.ErrCodeSolveFailure, "%s", e.Error())
}
