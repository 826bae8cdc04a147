// Package platform models gem platforms.
//
// A gem is either pure Ruby ("ruby") or built for a native platform written
// as cpu-os[-version], e.g. "x86_64-linux", "arm64-darwin-23",
// "x86_64-linux-musl". A pure gem installs everywhere; a native gem only on a
// matching target.
package platform

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
)

// Platform is a parsed gem platform.
type Platform struct {
	CPU     string
	OS      string
	Version string
}

// Ruby is the platform of pure gems.
var Ruby = Platform{}

const (
	rubyName  = "ruby"
	universal = "universal"
)

// Parse parses a platform string.
func Parse(s string) (Platform, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == rubyName {
		return Ruby, nil
	}
	parts := strings.Split(s, "-")
	for _, p := range parts {
		if p == "" {
			return Platform{}, fmt.Errorf("platform: malformed platform %q", s)
		}
	}
	switch len(parts) {
	case 1:
		// "java", "mswin32": an OS without a cpu.
		return Platform{OS: parts[0]}, nil
	case 2:
		return Platform{CPU: parts[0], OS: parts[1]}, nil
	default:
		return Platform{CPU: parts[0], OS: parts[1], Version: strings.Join(parts[2:], "-")}, nil
	}
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Platform {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsRuby reports whether p is the pure platform.
func (p Platform) IsRuby() bool {
	return p == Ruby
}

func (p Platform) String() string {
	if p.IsRuby() {
		return rubyName
	}
	var parts []string
	if p.CPU != "" {
		parts = append(parts, p.CPU)
	}
	parts = append(parts, p.OS)
	if p.Version != "" {
		parts = append(parts, p.Version)
	}
	return strings.Join(parts, "-")
}

// Match reports whether a gem built for p installs on target. Pure gems match
// every target; a native gem matches when cpu and os agree, where a
// "universal" cpu matches any cpu and a gem without an os version matches
// every version of that os.
func (p Platform) Match(target Platform) bool {
	if p.IsRuby() {
		return true
	}
	if target.IsRuby() {
		return false
	}
	if p.OS != target.OS {
		return false
	}
	if p.CPU != target.CPU && p.CPU != universal && target.CPU != universal {
		return false
	}
	return p.Version == "" || p.Version == target.Version
}

var cpuNames = map[string]string{
	"amd64": "x86_64",
	"386":   "x86",
	"arm64": "arm64",
	"arm":   "arm",
}

// Local returns the platform of the running process.
func Local() Platform {
	cpu, ok := cpuNames[runtime.GOARCH]
	if !ok {
		cpu = runtime.GOARCH
	}
	return Platform{CPU: cpu, OS: runtime.GOOS}
}

// Compare orders platforms canonically: ruby first, then by name.
func Compare(a, b Platform) int {
	switch {
	case a.IsRuby() && b.IsRuby():
		return 0
	case a.IsRuby():
		return -1
	case b.IsRuby():
		return 1
	}
	return strings.Compare(a.String(), b.String())
}

// Sort sorts ps in canonical order.
func Sort(ps []Platform) {
	slices.SortFunc(ps, Compare)
}

// Set is an ordered, duplicate-free list of platforms.
type Set []Platform

// ParseSet parses platform names into a canonical set.
func ParseSet(names ...string) (Set, error) {
	var s Set
	for _, n := range names {
		p, err := Parse(n)
		if err != nil {
			return nil, err
		}
		s = s.Add(p)
	}
	return s, nil
}

// Contains reports whether p is in s.
func (s Set) Contains(p Platform) bool {
	return slices.Contains(s, p)
}

// Add returns s with p added in canonical position.
func (s Set) Add(p Platform) Set {
	if s.Contains(p) {
		return s
	}
	out := append(slices.Clone(s), p)
	Sort(out)
	return out
}

// Remove returns s without p.
func (s Set) Remove(p Platform) Set {
	return slices.DeleteFunc(slices.Clone(s), func(q Platform) bool { return q == p })
}

// Strings returns the platform names.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.String()
	}
	return out
}


// Selects reports whether a manifest platform tag such as "windows", "jruby"
// or "mri" applies when resolving for target.
func Selects(tag string, target Platform) bool {
	windows := strings.Contains(target.OS, "mingw") || strings.Contains(target.OS, "mswin")
	java := target.OS == "java"
	switch tag {
	case "ruby", "mri":
		return !java && !windows
	case "windows", "mswin", "mswin64", "mingw", "x64_mingw":
		return windows
	case "jruby", "java":
		return java
	}
	return target.String() == tag
}
