package resolver

import (
	"fmt"
	"slices"

	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// Level bounds how far an unlocked gem may move away from its locked
// version. It only reorders candidates unless the request is strict.
type Level int

const (
	// LevelMajor prefers the highest version. It is the default.
	LevelMajor Level = iota
	// LevelMinor prefers staying on the locked major version.
	LevelMinor
	// LevelPatch prefers staying on the locked major and minor version.
	LevelPatch
)

func (l Level) String() string {
	switch l {
	case LevelMinor:
		return "minor"
	case LevelPatch:
		return "patch"
	}
	return "major"
}

// ParseLevel parses "major", "minor" or "patch".
func ParseLevel(s string) (Level, error) {
	for _, l := range []Level{LevelMajor, LevelMinor, LevelPatch} {
		if l.String() == s {
			return l, nil
		}
	}
	return LevelMajor, fmt.Errorf("unknown update level %q", s)
}

// fixed is the number of leading release segments the level keeps.
func (l Level) fixed() int {
	switch l {
	case LevelMinor:
		return 1
	case LevelPatch:
		return 2
	}
	return 0
}

// rank orders cs, newest first on input, for a gem being updated away from
// locked. Versions not older than locked come first, those sharing more of
// the locked leading segments ahead of the rest and the newest first within
// a group. Older versions follow, newest first. When strict, only versions
// not older than locked that keep the leading segments survive.
func (l Level) rank(cs []source.Candidate, locked gemver.Version, strict bool) []source.Candidate {
	n := l.fixed()
	if n == 0 && !strict {
		return cs
	}
	lockedSegs := locked.Segments()
	drift := func(v gemver.Version) []int64 {
		segs := v.Segments()
		out := make([]int64, n)
		for i := range n {
			out[i] = at(segs, i) - at(lockedSegs, i)
		}
		return out
	}

	out := slices.Clone(cs)
	if strict {
		out = slices.DeleteFunc(out, func(c source.Candidate) bool {
			return c.Version.LessThan(locked) || slices.ContainsFunc(drift(c.Version), func(d int64) bool { return d != 0 })
		})
	}
	slices.SortStableFunc(out, func(a, b source.Candidate) int {
		aOld, bOld := a.Version.LessThan(locked), b.Version.LessThan(locked)
		switch {
		case aOld != bOld:
			if aOld {
				return 1
			}
			return -1
		case aOld:
			return b.Version.Compare(a.Version)
		}
		if c := slices.Compare(drift(a.Version), drift(b.Version)); c != 0 {
			return c
		}
		return b.Version.Compare(a.Version)
	})
	return out
}

func at(segs []int64, i int) int64 {
	if i < len(segs) {
		return segs[i]
	}
	return 0
}
