// Package gemver implements RubyGems version and requirement semantics.
//
// Versions are a dotted sequence of numeric segments optionally followed by
// prerelease segments ("1.0.0.rc1", "2.0.beta.2"). Any segment containing a
// letter marks the version as a prerelease, which sorts before the release it
// precedes. The first three numeric segments are delegated to
// github.com/Masterminds/semver/v3; further numeric segments ("1.2.3.4") are
// compared after them.
package gemver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a parsed gem version. The zero value is "0".
type Version struct {
	raw   string
	core  *mm.Version // major.minor.patch plus prerelease tokens
	nums  []int64     // every numeric release segment, in order
	extra []int64     // release segments beyond the third
	pre   []string    // prerelease tokens
}

var (
	versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9a-zA-Z]+)*(-[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*)?$`)
	tokenPattern   = regexp.MustCompile(`[0-9]+|[a-zA-Z]+`)
)

// Zero is the version "0".
var Zero = MustParse("0")

// Parse parses a gem version string.
func Parse(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = "0"
	}
	if !versionPattern.MatchString(s) {
		return Version{}, fmt.Errorf("gemver: malformed version %q", raw)
	}

	// "1.0.0-rc1" is the same version as "1.0.0.pre.rc1".
	normalized := strings.ReplaceAll(s, "-", ".pre.")

	v := Version{raw: s}
	inRelease := true
	for _, seg := range strings.Split(normalized, ".") {
		if inRelease {
			if n, err := strconv.ParseInt(seg, 10, 64); err == nil {
				v.nums = append(v.nums, n)
				continue
			}
			inRelease = false
		}
		for _, tok := range tokenPattern.FindAllString(seg, -1) {
			if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
				tok = strconv.FormatInt(n, 10)
			}
			v.pre = append(v.pre, tok)
		}
	}
	if len(v.nums) == 0 {
		return Version{}, fmt.Errorf("gemver: version %q has no release segment", raw)
	}
	if len(v.nums) > 3 {
		v.extra = v.nums[3:]
	}

	core := make([]string, 3)
	for i := range core {
		core[i] = "0"
		if i < len(v.nums) {
			core[i] = strconv.FormatInt(v.nums[i], 10)
		}
	}
	semver := strings.Join(core, ".")
	if len(v.pre) > 0 {
		semver += "-" + strings.Join(v.pre, ".")
	}
	parsed, err := mm.StrictNewVersion(semver)
	if err != nil {
		return Version{}, fmt.Errorf("gemver: parse version %q: %w", raw, err)
	}
	v.core = parsed
	return v, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as it was written.
func (v Version) String() string {
	if v.core == nil {
		return "0"
	}
	return v.raw
}

// Prerelease reports whether the version has a prerelease segment.
func (v Version) Prerelease() bool {
	return len(v.pre) > 0
}

// Segments returns the numeric release segments.
func (v Version) Segments() []int64 {
	out := make([]int64, len(v.nums))
	copy(out, v.nums)
	return out
}

// Release returns the version with its prerelease segments removed.
func (v Version) Release() Version {
	if !v.Prerelease() {
		return v
	}
	parts := make([]string, len(v.nums))
	for i, n := range v.nums {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return MustParse(strings.Join(parts, "."))
}

// Compare returns -1, 0 or 1 as v is less than, equal to or greater than o.
// Trailing zero segments are insignificant, so "1.0" equals "1.0.0".
func (v Version) Compare(o Version) int {
	if v.core == nil {
		v = Zero
	}
	if o.core == nil {
		o = Zero
	}

	vc, _ := v.core.SetPrerelease("")
	oc, _ := o.core.SetPrerelease("")
	if c := vc.Compare(&oc); c != 0 {
		return c
	}

	n := max(len(v.extra), len(o.extra))
	for i := range n {
		a, b := segment(v.extra, i), segment(o.extra, i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}

	switch {
	case !v.Prerelease() && !o.Prerelease():
		return 0
	case !v.Prerelease():
		return 1
	case !o.Prerelease():
		return -1
	}
	return comparePre(v.pre, o.pre)
}

// comparePre orders prerelease tokens the RubyGems way: letters sort before
// numbers, numbers compare numerically, and a missing token counts as 0.
// This differs from semver, where numeric identifiers sort first.
func comparePre(a, b []string) int {
	for i := range max(len(a), len(b)) {
		x, y := token(a, i), token(b, i)
		xn, xerr := strconv.ParseInt(x, 10, 64)
		yn, yerr := strconv.ParseInt(y, 10, 64)
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				if xn < yn {
					return -1
				}
				return 1
			}
		case xerr == nil:
			return 1
		case yerr == nil:
			return -1
		default:
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
		}
	}
	return 0
}

func token(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return "0"
}

// Equal reports whether v and o denote the same version.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// LessThan reports whether v sorts before o.
func (v Version) LessThan(o Version) bool { return v.Compare(o) < 0 }

// bump returns the upper bound used by the pessimistic operator: drop the
// prerelease and the last release segment, then increment what remains.
// "~> 1" and "~> 1.2" both stop below 2; "~> 1.2.3" stops below 1.3.
func (v Version) bump() Version {
	if v.core == nil {
		v = Zero
	}
	release, _ := v.core.SetPrerelease("")
	switch len(v.nums) {
	case 1, 2:
		return fromSemver(release.IncMajor())
	case 3:
		return fromSemver(release.IncMinor())
	case 4:
		return fromSemver(release.IncPatch())
	}
	segs := v.Segments()[:len(v.nums)-1]
	segs[len(segs)-1]++
	parts := make([]string, len(segs))
	for i, n := range segs {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return MustParse(strings.Join(parts, "."))
}

func fromSemver(sv mm.Version) Version {
	return MustParse(fmt.Sprintf("%d.%d.%d", sv.Major(), sv.Minor(), sv.Patch()))
}

func segment(s []int64, i int) int64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
