package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/platform"
)

// GemTOML is the file name of a declarative gemspec:
//
//	name = "widget"
//	version = "0.3.0"
//	required_ruby_version = ">= 3.0"
//
//	[dependencies]
//	rack = ">= 2.0"
//	thor = ["~> 1.2", ">= 1.2.2"]
const GemTOML = "gem.toml"

// DefaultGlob locates gemspecs in a checkout: the root and one level down.
const DefaultGlob = "{,*/}{gem.toml,*.gemspec}"

// localSpec is a gem found in a checkout.
type localSpec struct {
	Name         string
	Version      gemver.Version
	Platform     platform.Platform
	Deps         []Dependency
	RequiredRuby gemver.Requirement
	Dir          string
}

type gemTOMLFile struct {
	Name                string         `toml:"name"`
	Version             string         `toml:"version"`
	Platform            string         `toml:"platform"`
	RequiredRubyVersion any            `toml:"required_ruby_version"`
	Dependencies        map[string]any `toml:"dependencies"`
}

// loadSpecs reads every gemspec below dir matched by glob. A directory with
// a gem.toml ignores its *.gemspec files.
func loadSpecs(dir, glob string) ([]localSpec, error) {
	files, err := globSpecs(dir, glob)
	if err != nil {
		return nil, err
	}

	hasTOML := make(map[string]bool)
	for _, f := range files {
		if filepath.Base(f) == GemTOML {
			hasTOML[filepath.Dir(f)] = true
		}
	}

	var specs []localSpec
	for _, f := range files {
		var (
			s   localSpec
			err error
		)
		switch {
		case filepath.Base(f) == GemTOML:
			s, err = parseGemTOML(f)
		case hasTOML[filepath.Dir(f)]:
			continue
		default:
			s, err = parseGemspec(f)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		s.Dir = filepath.Dir(f)
		specs = append(specs, s)
	}
	return specs, nil
}

// globSpecs expands glob below dir. Only a single {a,b} alternation group
// per brace pair is supported, which covers the default and the patterns
// people write in practice.
func globSpecs(dir, glob string) ([]string, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range expandBraces(glob) {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", glob, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func expandBraces(p string) []string {
	open := strings.IndexByte(p, '{')
	if open < 0 {
		return []string{p}
	}
	end := strings.IndexByte(p[open:], '}')
	if end < 0 {
		return []string{p}
	}
	end += open
	var out []string
	for _, alt := range strings.Split(p[open+1:end], ",") {
		out = append(out, expandBraces(p[:open]+alt+p[end+1:])...)
	}
	return out
}

func parseGemTOML(path string) (localSpec, error) {
	var f gemTOMLFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return localSpec{}, err
	}
	if f.Name == "" || f.Version == "" {
		return localSpec{}, fmt.Errorf("name and version are required")
	}

	s := localSpec{Name: f.Name}
	var err error
	if s.Version, err = gemver.Parse(f.Version); err != nil {
		return localSpec{}, err
	}
	if s.Platform, err = platform.Parse(f.Platform); err != nil {
		return localSpec{}, err
	}
	ruby, err := stringList(f.RequiredRubyVersion)
	if err != nil {
		return localSpec{}, fmt.Errorf("required_ruby_version: %w", err)
	}
	if s.RequiredRuby, err = gemver.ParseRequirement(ruby...); err != nil {
		return localSpec{}, err
	}

	names := make([]string, 0, len(f.Dependencies))
	for name := range f.Dependencies {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		parts, err := stringList(f.Dependencies[name])
		if err != nil {
			return localSpec{}, fmt.Errorf("dependency %s: %w", name, err)
		}
		req, err := gemver.ParseRequirement(parts...)
		if err != nil {
			return localSpec{}, fmt.Errorf("dependency %s: %w", name, err)
		}
		s.Deps = append(s.Deps, Dependency{Name: name, Requirement: req})
	}
	return s, nil
}

// stringList accepts a TOML string or array of strings.
func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or array, got %T", v)
	}
}

var (
	specNamePattern    = regexp.MustCompile(`\.name\s*=\s*['"]([^'"]+)['"]`)
	specVersionPattern = regexp.MustCompile(`\.version\s*=\s*['"]([^'"]+)['"]`)
	specPlatformPat    = regexp.MustCompile(`\.platform\s*=\s*['"]([^'"]+)['"]`)
	specRubyPattern    = regexp.MustCompile(`\.required_ruby_version\s*=\s*(.+)$`)
	specDepPattern     = regexp.MustCompile(`\.add_(?:runtime_)?dependency\s*\(?\s*['"]([^'"]+)['"](.*)$`)
	quotedPattern      = regexp.MustCompile(`['"]([^'"]*)['"]`)
)

// parseGemspec extracts the static parts of a Ruby gemspec. Versions taken
// from constants or other computed expressions are not supported.
func parseGemspec(path string) (localSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return localSpec{}, err
	}
	defer f.Close()

	var (
		s       localSpec
		version string
		plat    string
		ruby    []string
		deps    = make(map[string][]string)
		order   []string
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if m := specDepPattern.FindStringSubmatch(line); m != nil {
			if _, ok := deps[m[1]]; !ok {
				order = append(order, m[1])
			}
			deps[m[1]] = append(deps[m[1]], quoted(m[2])...)
			continue
		}
		if m := specRubyPattern.FindStringSubmatch(line); m != nil {
			ruby = quoted(m[1])
			continue
		}
		if m := specNamePattern.FindStringSubmatch(line); m != nil && s.Name == "" {
			s.Name = m[1]
		}
		if m := specVersionPattern.FindStringSubmatch(line); m != nil && version == "" {
			version = m[1]
		}
		if m := specPlatformPat.FindStringSubmatch(line); m != nil {
			plat = m[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return localSpec{}, err
	}

	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), ".gemspec")
	}
	if version == "" {
		return localSpec{}, fmt.Errorf("no literal version in gemspec")
	}
	if s.Version, err = gemver.Parse(version); err != nil {
		return localSpec{}, err
	}
	if s.Platform, err = platform.Parse(plat); err != nil {
		return localSpec{}, err
	}
	if s.RequiredRuby, err = gemver.ParseRequirement(ruby...); err != nil {
		return localSpec{}, err
	}
	slices.Sort(order)
	for _, name := range order {
		req, err := gemver.ParseRequirement(deps[name]...)
		if err != nil {
			return localSpec{}, fmt.Errorf("dependency %s: %w", name, err)
		}
		s.Deps = append(s.Deps, Dependency{Name: name, Requirement: req})
	}
	return s, nil
}

func quoted(s string) []string {
	var out []string
	for _, m := range quotedPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func (s localSpec) candidate(src Source) Candidate {
	return Candidate{
		Name:         s.Name,
		Version:      s.Version,
		Platform:     s.Platform,
		Source:       src,
		Deps:         s.Deps,
		RequiredRuby: s.RequiredRuby,
	}
}
