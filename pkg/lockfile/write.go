package lockfile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/source"
)

// WriteOptions controls serialization.
type WriteOptions struct {
	// PreserveUnknown appends sections this package does not understand.
	PreserveUnknown bool
}

// Write serializes lg in canonical order.
func Write(w io.Writer, lg *LockedGems, opts WriteOptions) error {
	_, err := w.Write(Marshal(lg, opts))
	return err
}

// Marshal returns the canonical serialization of lg.
func Marshal(lg *LockedGems, opts WriteOptions) []byte {
	var sections [][]string

	bySource := make(map[string][]Spec)
	refs := make(map[string]source.Ref)
	for _, ref := range lg.Sources {
		refs[ref.Identity()] = ref
	}
	for _, s := range lg.Specs {
		id := s.Source.Identity()
		bySource[id] = append(bySource[id], s)
		if _, ok := refs[id]; !ok {
			refs[id] = s.Source
		}
	}
	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := kindOrder(refs[a].Kind) - kindOrder(refs[b].Kind); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	for _, id := range ids {
		sections = append(sections, sourceSection(refs[id], bySource[id]))
	}

	plats := slices.Clone(lg.Platforms)
	platform.Sort(plats)
	plats = slices.Compact(plats)
	sec := []string{sectionPlatforms}
	for _, p := range plats {
		sec = append(sec, "  "+p.String())
	}
	sections = append(sections, sec)

	deps := slices.Clone(lg.Dependencies)
	slices.SortFunc(deps, func(a, b Dependency) int { return strings.Compare(a.Name, b.Name) })
	sec = []string{sectionDependencies}
	for _, d := range deps {
		sec = append(sec, "  "+formatDependency(d))
	}
	sections = append(sections, sec)

	if lg.HasChecksums || hasChecksums(lg.Specs) {
		specs := slices.Clone(lg.Specs)
		SortSpecs(specs)
		sec = []string{sectionChecksums}
		for _, s := range specs {
			line := "  " + s.Name + " (" + s.versionString() + ")"
			if s.Checksum != "" {
				line += " sha256=" + s.Checksum
			}
			sec = append(sec, line)
		}
		sections = append(sections, sec)
	}

	if lg.RubyVersion != "" {
		sections = append(sections, []string{sectionRuby, "   " + lg.RubyVersion})
	}
	if opts.PreserveUnknown {
		for _, u := range lg.Unknown {
			sections = append(sections, append([]string{u.Name}, u.Lines...))
		}
	}
	if lg.BundledWith != "" {
		sections = append(sections, []string{sectionBundled, "   " + lg.BundledWith})
	}

	var b bytes.Buffer
	for i, sec := range sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, line := range sec {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.Bytes()
}

func kindOrder(k source.Kind) int {
	switch k {
	case source.KindGit:
		return 0
	case source.KindPath:
		return 1
	default:
		return 2
	}
}

func sourceSection(ref source.Ref, specs []Spec) []string {
	var lines []string
	switch ref.Kind {
	case source.KindGit:
		lines = append(lines, sectionGit, "  remote: "+ref.URI)
		if ref.Revision != "" {
			lines = append(lines, "  revision: "+ref.Revision)
		}
		switch {
		case ref.Branch != "":
			lines = append(lines, "  branch: "+ref.Branch)
		case ref.Tag != "":
			lines = append(lines, "  tag: "+ref.Tag)
		case ref.Ref != "":
			lines = append(lines, "  ref: "+ref.Ref)
		}
	case source.KindPath:
		lines = append(lines, sectionPath, "  remote: "+ref.URI)
	default:
		lines = append(lines, sectionGem, "  remote: "+ref.URI)
	}
	if ref.Glob != "" {
		lines = append(lines, "  glob: "+ref.Glob)
	}
	lines = append(lines, "  specs:")

	specs = slices.Clone(specs)
	SortSpecs(specs)
	for _, s := range specs {
		lines = append(lines, "    "+s.Name+" ("+s.versionString()+")")
		deps := slices.Clone(s.Deps)
		slices.SortFunc(deps, func(a, b source.Dependency) int { return strings.Compare(a.Name, b.Name) })
		for _, d := range deps {
			lines = append(lines, "      "+formatDependency(Dependency{Name: d.Name, Requirement: d.Requirement}))
		}
	}
	return lines
}

func formatDependency(d Dependency) string {
	s := d.Name
	if d.Pinned {
		s += "!"
	}
	if !d.Requirement.IsAny() {
		s += " (" + d.Requirement.String() + ")"
	}
	return s
}

func hasChecksums(specs []Spec) bool {
	for _, s := range specs {
		if s.Checksum != "" {
			return true
		}
	}
	return false
}

// Digest returns the xxhash of the canonical serialization.
func Digest(lg *LockedGems, opts WriteOptions) uint64 {
	return xxhash.Sum64(Marshal(lg, opts))
}

// WriteFile writes lg to path atomically. It reports false, and leaves the
// file untouched, when the content is already identical.
func WriteFile(path string, lg *LockedGems, opts WriteOptions) (bool, error) {
	data := Marshal(lg, opts)
	if old, err := os.ReadFile(path); err == nil && xxhash.Sum64(old) == xxhash.Sum64(data) && bytes.Equal(old, data) {
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, err
	}
	return true, nil
}
