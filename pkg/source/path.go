package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/matzehuels/gemlock/pkg/platform"
)

// Path serves gems from a directory on disk. Its specs are read once, on
// first use, and are available in every mode.
type Path struct {
	ref Ref
	dir string

	once  sync.Once
	specs []localSpec
	err   error
}

// NewPath creates a path source. A relative ref.URI is resolved against
// env.Root.
func NewPath(ref Ref, env Env) *Path {
	dir := ref.URI
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(env.Root, dir)
	}
	return &Path{ref: ref, dir: dir}
}

func (*Path) Kind() Kind         { return KindPath }
func (p *Path) Identity() string { return p.ref.Identity() }
func (p *Path) Ref() Ref         { return p.ref }
func (*Path) sealed()            {}

// Dir returns the absolute directory the source reads.
func (p *Path) Dir() string { return p.dir }

func (p *Path) load() ([]localSpec, error) {
	p.once.Do(func() {
		if _, err := os.Stat(p.dir); err != nil {
			p.err = fmt.Errorf("path source %s: %w", p.ref.URI, err)
			return
		}
		p.specs, p.err = loadSpecs(p.dir, p.ref.Glob)
	})
	return p.specs, p.err
}

// ListVersions implements [Source].
func (p *Path) ListVersions(_ context.Context, name string, platforms platform.Set) ([]Candidate, error) {
	specs, err := p.load()
	if err != nil {
		return nil, err
	}
	return filterSpecs(specs, p, name, platforms), nil
}

// FetchDependencies implements [Source].
func (p *Path) FetchDependencies(_ context.Context, c Candidate) ([]Dependency, error) {
	return c.Deps, nil
}

// FetchArtifact returns the directory holding the gem; dir is unused.
func (p *Path) FetchArtifact(_ context.Context, c Candidate, _ string) (string, error) {
	specs, err := p.load()
	if err != nil {
		return "", err
	}
	return specDir(specs, c)
}

func filterSpecs(specs []localSpec, src Source, name string, platforms platform.Set) []Candidate {
	var out []Candidate
	for _, s := range specs {
		if s.Name == name && installable(s.Platform, platforms) {
			out = append(out, s.candidate(src))
		}
	}
	return out
}

func specDir(specs []localSpec, c Candidate) (string, error) {
	for _, s := range specs {
		if s.Name == c.Name && s.Version.Equal(c.Version) && s.Platform == c.Platform {
			return s.Dir, nil
		}
	}
	return "", fmt.Errorf("%s is not in %s", c, c.Source.Ref())
}

var _ Source = (*Path)(nil)
