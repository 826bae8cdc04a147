package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/integrations"
	"github.com/matzehuels/gemlock/pkg/platform"
)

//go:generate mockgen -source=remote.go -destination=mocks/mock_index_client.go -package=mocks

// IndexClient reads compact index data from one gem server. It is
// implemented by rubygems.Client and s3index.Client.
type IndexClient interface {
	Remote() string
	Info(ctx context.Context, gem string, policy integrations.Policy) ([]integrations.GemVersion, error)
	Artifact(ctx context.Context, file string) ([]byte, error)
}

// Remote is a compact index gem server.
type Remote struct {
	ref    Ref
	client IndexClient
	mode   Mode
}

// NewRemote wraps client as a source. The mode decides whether info files
// come from the network, the cache, or both.
func NewRemote(ref Ref, client IndexClient, mode Mode) *Remote {
	return &Remote{ref: ref, client: client, mode: mode}
}

func (*Remote) Kind() Kind         { return KindRemote }
func (r *Remote) Identity() string { return r.ref.Identity() }
func (r *Remote) Ref() Ref         { return r.ref }
func (*Remote) sealed()            {}

// ListVersions implements [Source]. In [ModeLocal] an info file missing from
// the cache yields no candidates rather than an error.
func (r *Remote) ListVersions(ctx context.Context, name string, platforms platform.Set) ([]Candidate, error) {
	infos, err := r.client.Info(ctx, name, r.mode.Policy())
	if err != nil {
		if integrations.IsNotFound(err) || errors.Is(err, integrations.ErrNotCached) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Candidate, 0, len(infos))
	for _, info := range infos {
		c, err := r.candidate(name, info)
		if err != nil {
			// A single malformed line must not hide the rest of the gem.
			continue
		}
		if !installable(c.Platform, platforms) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Remote) candidate(name string, info integrations.GemVersion) (Candidate, error) {
	v, err := gemver.Parse(info.Number)
	if err != nil {
		return Candidate{}, err
	}
	p, err := platform.Parse(info.Platform)
	if err != nil {
		return Candidate{}, err
	}
	c := Candidate{Name: name, Version: v, Platform: p, Source: r, Checksum: info.Checksum}
	for _, d := range info.Deps {
		req, err := gemver.ParseRequirement(d.Requirement...)
		if err != nil {
			return Candidate{}, fmt.Errorf("%s %s: dependency %s: %w", name, info.Number, d.Name, err)
		}
		c.Deps = append(c.Deps, Dependency{Name: d.Name, Requirement: req})
	}
	if info.RequiredRuby != "" {
		if c.RequiredRuby, err = gemver.ParseRequirement(info.RequiredRuby); err != nil {
			return Candidate{}, err
		}
	}
	return c, nil
}

// FetchDependencies implements [Source]. Compact index lines carry their
// dependencies, so nothing is fetched.
func (r *Remote) FetchDependencies(_ context.Context, c Candidate) ([]Dependency, error) {
	return c.Deps, nil
}

// FetchArtifact downloads the .gem file into dir and verifies its checksum
// when the index published one.
func (r *Remote) FetchArtifact(ctx context.Context, c Candidate, dir string) (string, error) {
	file := c.FullName() + ".gem"
	dest := filepath.Join(dir, file)
	if r.mode == ModeLocal {
		if _, err := os.Stat(dest); err != nil {
			return "", fmt.Errorf("%s is not available locally: %w", file, integrations.ErrNotCached)
		}
		return dest, nil
	}

	data, err := r.client.Artifact(ctx, file)
	if err != nil {
		return "", fmt.Errorf("download %s from %s: %w", file, r.client.Remote(), err)
	}
	if c.Checksum != "" {
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != c.Checksum {
			return "", fmt.Errorf("checksum mismatch for %s: expected %s, got %s", file, c.Checksum, got)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

// installable reports whether a gem built for p installs on any of targets.
func installable(p platform.Platform, targets platform.Set) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if p.Match(t) {
			return true
		}
	}
	return false
}

var _ Source = (*Remote)(nil)
