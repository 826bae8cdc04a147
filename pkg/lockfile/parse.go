package lockfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/source"
)

const (
	sectionGit          = "GIT"
	sectionPath         = "PATH"
	sectionGem          = "GEM"
	sectionPlatforms    = "PLATFORMS"
	sectionDependencies = "DEPENDENCIES"
	sectionChecksums    = "CHECKSUMS"
	sectionRuby         = "RUBY VERSION"
	sectionBundled      = "BUNDLED WITH"
)

var (
	specLinePattern = regexp.MustCompile(`^(\S+) \(([^)]+)\)$`)
	depLinePattern  = regexp.MustCompile(`^([^\s!(]+)(!)?(?: \((.*)\))?$`)
	checksumPattern = regexp.MustCompile(`^(\S+) \(([^)]+)\)(?: (.+))?$`)
)

// ReadFile parses the lockfile at path. A missing file is reported with
// the LOCKFILE_NOT_FOUND code.
func ReadFile(path string) (*LockedGems, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeLockfileNotFound, err, "no lockfile at %s", path)
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a lockfile.
func Parse(r io.Reader) (*LockedGems, error) {
	p := &parser{lg: &LockedGems{}, checksums: make(map[string]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.lineNo++
		if err := p.line(strings.TrimRight(sc.Text(), "\r")); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "lockfile line %d", p.lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	p.flush()

	for i, s := range p.lg.Specs {
		if sum, ok := p.checksums[s.FullName()]; ok {
			p.lg.Specs[i].Checksum = sum
		}
	}
	return p.lg, nil
}

type parser struct {
	lg     *LockedGems
	lineNo int

	section   string
	ref       *source.Ref // current source section
	inSpecs   bool
	firstSpec int // index of the first spec of the current source
	unknown   *Section

	checksums map[string]string
}

func (p *parser) line(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if !strings.HasPrefix(line, " ") {
		p.flush()
		p.section = line
		switch line {
		case sectionGit, sectionPath, sectionGem:
			p.ref = &source.Ref{}
			p.firstSpec = len(p.lg.Specs)
		case sectionPlatforms, sectionDependencies, sectionRuby, sectionBundled:
		case sectionChecksums:
			p.lg.HasChecksums = true
		default:
			p.unknown = &Section{Name: line}
		}
		return nil
	}

	switch p.section {
	case sectionGit, sectionPath, sectionGem:
		return p.sourceLine(line)
	case sectionPlatforms:
		plat, err := platform.Parse(strings.TrimSpace(line))
		if err != nil {
			return err
		}
		p.lg.Platforms = append(p.lg.Platforms, plat)
	case sectionDependencies:
		return p.dependencyLine(strings.TrimSpace(line))
	case sectionChecksums:
		return p.checksumLine(strings.TrimSpace(line))
	case sectionRuby:
		p.lg.RubyVersion = strings.TrimSpace(line)
	case sectionBundled:
		p.lg.BundledWith = strings.TrimSpace(line)
	case "":
		return fmt.Errorf("indented line outside of a section")
	default:
		p.unknown.Lines = append(p.unknown.Lines, line)
	}
	return nil
}

// flush closes the current section.
func (p *parser) flush() {
	if p.ref != nil {
		switch p.section {
		case sectionGit:
			p.ref.Kind = source.KindGit
		case sectionPath:
			p.ref.Kind = source.KindPath
		default:
			p.ref.Kind = source.KindRemote
		}
		p.lg.Sources = append(p.lg.Sources, *p.ref)
		for i := p.firstSpec; i < len(p.lg.Specs); i++ {
			p.lg.Specs[i].Source = *p.ref
		}
	}
	if p.unknown != nil {
		p.lg.Unknown = append(p.lg.Unknown, *p.unknown)
	}
	p.ref, p.unknown, p.inSpecs = nil, nil, false
}

func (p *parser) sourceLine(line string) error {
	indent := len(line) - len(strings.TrimLeft(line, " "))
	text := strings.TrimSpace(line)

	if !p.inSpecs {
		if indent != 2 {
			return fmt.Errorf("unexpected indentation %d in source section", indent)
		}
		if text == "specs:" {
			p.inSpecs = true
			return nil
		}
		key, val, ok := strings.Cut(text, ": ")
		if !ok {
			// Attributes without a value, e.g. "submodules:", are ignored.
			return nil
		}
		switch key {
		case "remote":
			if p.ref.URI == "" {
				p.ref.URI = val
			}
		case "revision":
			p.ref.Revision = val
		case "branch":
			p.ref.Branch = val
		case "tag":
			p.ref.Tag = val
		case "ref":
			p.ref.Ref = val
		case "glob":
			p.ref.Glob = val
		}
		return nil
	}

	switch indent {
	case 4:
		m := specLinePattern.FindStringSubmatch(text)
		if m == nil {
			return fmt.Errorf("malformed spec %q", text)
		}
		spec, err := parseSpec(m[1], m[2])
		if err != nil {
			return err
		}
		p.lg.Specs = append(p.lg.Specs, spec)
	case 6:
		last := len(p.lg.Specs) - 1
		if last < p.firstSpec {
			return fmt.Errorf("dependency %q before any spec", text)
		}
		d, err := parseDependency(text)
		if err != nil {
			return err
		}
		p.lg.Specs[last].Deps = append(p.lg.Specs[last].Deps, source.Dependency{Name: d.Name, Requirement: d.Requirement})
	default:
		return fmt.Errorf("unexpected indentation %d in specs", indent)
	}
	return nil
}

func parseSpec(name, ver string) (Spec, error) {
	raw, plat, _ := strings.Cut(ver, "-")
	v, err := gemver.Parse(raw)
	if err != nil {
		return Spec{}, err
	}
	pl, err := platform.Parse(plat)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Name: name, Version: v, Platform: pl}, nil
}

func parseDependency(text string) (Dependency, error) {
	m := depLinePattern.FindStringSubmatch(text)
	if m == nil {
		return Dependency{}, fmt.Errorf("malformed dependency %q", text)
	}
	req, err := gemver.ParseRequirement(m[3])
	if err != nil {
		return Dependency{}, err
	}
	return Dependency{Name: m[1], Requirement: req, Pinned: m[2] == "!"}, nil
}

func (p *parser) dependencyLine(text string) error {
	d, err := parseDependency(text)
	if err != nil {
		return err
	}
	p.lg.Dependencies = append(p.lg.Dependencies, d)
	return nil
}

func (p *parser) checksumLine(text string) error {
	m := checksumPattern.FindStringSubmatch(text)
	if m == nil {
		return fmt.Errorf("malformed checksum %q", text)
	}
	spec, err := parseSpec(m[1], m[2])
	if err != nil {
		return err
	}
	for _, sum := range strings.Split(m[3], ",") {
		if algo, hex, ok := strings.Cut(strings.TrimSpace(sum), "="); ok && algo == "sha256" {
			p.checksums[spec.FullName()] = hex
		}
	}
	return nil
}
