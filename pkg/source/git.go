package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/integrations"
	"github.com/matzehuels/gemlock/pkg/platform"
)

// Git serves gems from a git repository checked out at one revision.
//
// Each source owns a clone below CacheDir/git. The revision is the locked
// one when the reference carries it, otherwise the tip of the tracked
// branch, tag or ref. The clone is only updated over the network when the
// mode allows it and the wanted commit is not already present.
type Git struct {
	ref    Ref
	dir    string
	mode   Mode
	logger *log.Logger

	once     sync.Once
	mu       sync.Mutex
	revision string
	specs    []localSpec
	err      error
}

// NewGit creates a git source. Nothing is cloned until first use.
func NewGit(ref Ref, env Env) *Git {
	key := cache.Hash([]byte(ref.Identity()))[:16]
	return &Git{
		ref:    ref,
		dir:    filepath.Join(env.CacheDir, "git", key),
		mode:   env.Mode,
		logger: env.logger(),
	}
}

func (*Git) Kind() Kind         { return KindGit }
func (g *Git) Identity() string { return g.ref.Identity() }
func (*Git) sealed()            {}

// Ref returns the reference with Revision set to the checked out commit
// once the source has been read.
func (g *Git) Ref() Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.ref
	if g.revision != "" {
		r.Revision = g.revision
	}
	return r
}

// Dir returns the working tree of the clone.
func (g *Git) Dir() string { return g.dir }

// ListVersions implements [Source].
func (g *Git) ListVersions(ctx context.Context, name string, platforms platform.Set) ([]Candidate, error) {
	specs, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	return filterSpecs(specs, g, name, platforms), nil
}

// FetchDependencies implements [Source].
func (g *Git) FetchDependencies(_ context.Context, c Candidate) ([]Dependency, error) {
	return c.Deps, nil
}

// FetchArtifact returns the directory of the gem inside the checkout.
func (g *Git) FetchArtifact(ctx context.Context, c Candidate, _ string) (string, error) {
	specs, err := g.load(ctx)
	if err != nil {
		return "", err
	}
	return specDir(specs, c)
}

func (g *Git) load(ctx context.Context) ([]localSpec, error) {
	g.once.Do(func() {
		rev, err := g.checkout(ctx)
		if err != nil {
			g.err = fmt.Errorf("git source %s: %w", g.ref, err)
			return
		}
		g.mu.Lock()
		g.revision = rev
		g.mu.Unlock()
		g.specs, g.err = loadSpecs(g.dir, g.ref.Glob)
	})
	return g.specs, g.err
}

// checkout makes the working tree match the wanted revision and returns
// its hash.
func (g *Git) checkout(ctx context.Context) (string, error) {
	repo, err := git.PlainOpen(g.dir)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		if g.mode == ModeLocal {
			return "", fmt.Errorf("not checked out yet: %w", integrations.ErrNotCached)
		}
		g.logger.Debug("cloning", "repo", g.ref.URI, "dir", g.dir)
		repo, err = git.PlainCloneContext(ctx, g.dir, false, &git.CloneOptions{
			URL:        g.ref.URI,
			Tags:       git.AllTags,
			NoCheckout: true,
		})
		if err != nil {
			return "", fmt.Errorf("clone: %w", err)
		}
	case err != nil:
		return "", err
	default:
		if err := g.update(ctx, repo); err != nil {
			return "", err
		}
	}

	hash, err := g.resolve(repo)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return "", fmt.Errorf("checkout %s: %w", shortRev(hash.String()), err)
	}
	return hash.String(), nil
}

// update fetches into an existing clone when the wanted commit may be
// missing. A locked revision that is already present never fetches; an
// unlocked source fetches only in remote mode and only when ls-remote
// reports a commit the clone does not have.
func (g *Git) update(ctx context.Context, repo *git.Repository) error {
	if g.ref.Revision != "" && hasCommit(repo, g.ref.Revision) {
		return nil
	}
	if g.ref.Revision == "" && g.mode != ModeRemote {
		return nil
	}
	if g.mode == ModeLocal {
		return fmt.Errorf("revision %s is not in the local clone: %w", shortRev(g.ref.Revision), integrations.ErrNotCached)
	}
	if g.ref.Revision == "" {
		if tip, err := g.lsRemote(ctx); err == nil && hasCommit(repo, tip) {
			return nil
		}
	}

	g.logger.Debug("fetching", "repo", g.ref.URI)
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Tags:       git.AllTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// lsRemote returns the commit the tracked reference points at on the
// remote.
func (g *Git) lsRemote(ctx context.Context) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{g.ref.URI},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", err
	}

	var want plumbing.ReferenceName
	switch {
	case g.ref.Branch != "":
		want = plumbing.NewBranchReferenceName(g.ref.Branch)
	case g.ref.Tag != "":
		want = plumbing.NewTagReferenceName(g.ref.Tag)
	case g.ref.Ref != "":
		if isHash(g.ref.Ref) {
			return g.ref.Ref, nil
		}
		want = plumbing.ReferenceName(g.ref.Ref)
	default:
		want = plumbing.HEAD
	}

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}
	r, ok := byName[want]
	if ok && r.Type() == plumbing.SymbolicReference {
		r, ok = byName[r.Target()]
	}
	if !ok {
		return "", fmt.Errorf("%s not found on remote", want)
	}
	return r.Hash().String(), nil
}

// resolve maps the reference to a commit in the local clone.
func (g *Git) resolve(repo *git.Repository) (plumbing.Hash, error) {
	var revs []string
	switch {
	case g.ref.Revision != "":
		revs = []string{g.ref.Revision}
	case g.ref.Branch != "":
		revs = []string{"refs/remotes/origin/" + g.ref.Branch, string(plumbing.NewBranchReferenceName(g.ref.Branch))}
	case g.ref.Tag != "":
		revs = []string{string(plumbing.NewTagReferenceName(g.ref.Tag))}
	case g.ref.Ref != "":
		revs = []string{g.ref.Ref, "refs/remotes/origin/" + g.ref.Ref}
	default:
		revs = []string{"refs/remotes/origin/HEAD", "HEAD"}
	}
	for _, rev := range revs {
		if h, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
			return *h, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("cannot resolve %s", g.ref.Pin())
}

func hasCommit(repo *git.Repository, rev string) bool {
	if !isHash(rev) {
		return false
	}
	_, err := repo.CommitObject(plumbing.NewHash(rev))
	return err == nil
}

func isHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	return strings.Trim(strings.ToLower(s), "0123456789abcdef") == ""
}

var _ Source = (*Git)(nil)
