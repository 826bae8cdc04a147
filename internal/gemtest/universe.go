// Package gemtest provides an in-memory gem server for tests.
package gemtest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/matzehuels/gemlock/pkg/integrations"
	"github.com/matzehuels/gemlock/pkg/source"
)

// Universe is a fixed set of gem versions served through the compact index
// client interface. Info responses are remembered, so an offline query only
// succeeds for gems that were fetched before, like a warm HTTP cache.
type Universe struct {
	remote string

	mu     sync.Mutex
	gems   map[string][]integrations.GemVersion
	fail   map[string]error
	served map[string]bool
	calls  map[string]int
}

// NewUniverse creates an empty universe answering for remote.
func NewUniverse(remote string) *Universe {
	return &Universe{
		remote: integrations.NormalizeRemote(remote),
		gems:   make(map[string][]integrations.GemVersion),
		fail:   make(map[string]error),
		served: make(map[string]bool),
		calls:  make(map[string]int),
	}
}

// Gem adds a pure version of name. Each dependency is written
// "dep" or "dep >= 1.0, < 2".
func (u *Universe) Gem(name, version string, deps ...string) *Universe {
	return u.NativeGem(name, version, "ruby", deps...)
}

// NativeGem adds a version of name built for plat.
func (u *Universe) NativeGem(name, version, plat string, deps ...string) *Universe {
	v := integrations.GemVersion{Number: version, Platform: plat}
	for _, d := range deps {
		dep, req, _ := strings.Cut(strings.TrimSpace(d), " ")
		gd := integrations.GemDep{Name: dep}
		for _, part := range strings.Split(req, ",") {
			if part = strings.TrimSpace(part); part != "" {
				gd.Requirement = append(gd.Requirement, part)
			}
		}
		if len(gd.Requirement) == 0 {
			gd.Requirement = []string{">= 0"}
		}
		v.Deps = append(v.Deps, gd)
	}
	u.mu.Lock()
	u.gems[name] = append(u.gems[name], v)
	u.mu.Unlock()
	return u
}

// RequireRuby sets the required ruby version of name at version.
func (u *Universe) RequireRuby(name, version, req string) *Universe {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := range u.gems[name] {
		if u.gems[name][i].Number == version {
			u.gems[name][i].RequiredRuby = req
		}
	}
	return u
}

// Fail makes every query for name return err.
func (u *Universe) Fail(name string, err error) *Universe {
	u.mu.Lock()
	u.fail[name] = err
	u.mu.Unlock()
	return u
}

// Calls returns how many times name was queried.
func (u *Universe) Calls(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[name]
}

// Remote implements source.IndexClient.
func (u *Universe) Remote() string { return u.remote }

// Info implements source.IndexClient.
func (u *Universe) Info(_ context.Context, gem string, policy integrations.Policy) ([]integrations.GemVersion, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls[gem]++
	if err := u.fail[gem]; err != nil {
		return nil, err
	}
	if policy == integrations.PolicyOffline && !u.served[gem] {
		return nil, fmt.Errorf("%w: info/%s", integrations.ErrNotCached, gem)
	}
	versions, ok := u.gems[gem]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integrations.ErrNotFound, gem)
	}
	u.served[gem] = true
	return slices.Clone(versions), nil
}

// Artifact implements source.IndexClient. Artifacts hold their own file
// name.
func (u *Universe) Artifact(_ context.Context, file string) ([]byte, error) {
	return []byte(file), nil
}

// Opener serves remote references matching one of the universes and opens
// every other reference normally.
func Opener(universes ...*Universe) source.Opener {
	return func(ref source.Ref, env source.Env) (source.Source, error) {
		if ref.Kind == source.KindRemote {
			for _, u := range universes {
				if integrations.NormalizeRemote(ref.URI) == u.remote {
					return source.NewRemote(ref, u, env.Mode), nil
				}
			}
		}
		return source.Open(ref, env)
	}
}

var _ source.IndexClient = (*Universe)(nil)
