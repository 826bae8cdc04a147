// Package source abstracts where gem metadata and artifacts come from.
//
// A [Source] is one of three kinds:
//
//   - [*Remote]: a compact index server (https://rubygems.org/ or an
//     s3://bucket/prefix mirror)
//   - [*Path]: gems checked out on the local filesystem
//   - [*Git]: gems inside a git repository, pinned to a revision
//
// The set is closed: Source carries an unexported method so the kinds above
// are the only implementations, and callers switch on [Kind] rather than on
// dynamic types.
//
// Two sources are interchangeable only when their [Ref.Identity] values are
// equal. The index relies on this to detect gems served by more than one
// source.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/httputil"
	"github.com/matzehuels/gemlock/pkg/integrations"
	"github.com/matzehuels/gemlock/pkg/integrations/rubygems"
	"github.com/matzehuels/gemlock/pkg/integrations/s3index"
	"github.com/matzehuels/gemlock/pkg/platform"
)

// Kind identifies the source variant.
type Kind int

const (
	KindRemote Kind = iota
	KindPath
	KindGit
)

func (k Kind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindPath:
		return "path"
	case KindGit:
		return "git"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Ref is the declaration of a source as written in a manifest or lockfile.
type Ref struct {
	Kind Kind
	URI  string // remote URL, filesystem path or repository URL

	// Git only. At most one of Branch, Tag and Ref is set.
	Branch   string
	Tag      string
	Ref      string
	Revision string // locked commit; empty until resolved

	// Glob restricts which gemspecs a path or git source loads.
	Glob string
}

// DefaultRemote is the source used when a manifest declares none.
var DefaultRemote = Ref{Kind: KindRemote, URI: rubygems.DefaultRemote}

// RemoteRef returns a remote source reference with its URI normalized.
func RemoteRef(uri string) Ref {
	return Ref{Kind: KindRemote, URI: integrations.NormalizeRemote(uri)}
}

// PathRef returns a path source reference.
func PathRef(path string) Ref { return Ref{Kind: KindPath, URI: path} }

// GitRef returns a git source reference tracking the default branch.
func GitRef(uri string) Ref { return Ref{Kind: KindGit, URI: uri} }

// Identity returns the normalized identity of the source. Revision is not
// part of the identity: a re-locked git source is still the same source.
func (r Ref) Identity() string {
	switch r.Kind {
	case KindRemote:
		return "remote:" + integrations.NormalizeRemote(r.URI)
	case KindPath:
		return "path:" + filepath.ToSlash(filepath.Clean(r.URI))
	case KindGit:
		return "git:" + integrations.NormalizeRepoURL(r.URI) + "@" + r.Pin()
	}
	return r.Kind.String() + ":" + r.URI
}

// Name is the short name an update selects the source by: the repository
// name for git, the directory name for path and the URI for remotes.
func (r Ref) Name() string {
	switch r.Kind {
	case KindGit:
		uri := strings.TrimSuffix(strings.TrimSuffix(r.URI, "/"), ".git")
		if i := strings.LastIndexAny(uri, "/:"); i >= 0 {
			uri = uri[i+1:]
		}
		return uri
	case KindPath:
		return filepath.Base(filepath.Clean(r.URI))
	}
	return r.URI
}

// Pin returns the git reference the source tracks, e.g. "branch:main".
func (r Ref) Pin() string {
	switch {
	case r.Branch != "":
		return "branch:" + r.Branch
	case r.Tag != "":
		return "tag:" + r.Tag
	case r.Ref != "":
		return "ref:" + r.Ref
	default:
		return "HEAD"
	}
}

func (r Ref) String() string {
	switch r.Kind {
	case KindGit:
		s := r.URI
		if p := r.Pin(); p != "HEAD" {
			s += " (" + p + ")"
		}
		if r.Revision != "" {
			s += " at " + shortRev(r.Revision)
		}
		return s
	case KindPath:
		return "path " + r.URI
	default:
		return r.URI
	}
}

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Dependency is a runtime dependency declared by a candidate.
type Dependency struct {
	Name        string
	Requirement gemver.Requirement
}

func (d Dependency) String() string {
	if d.Requirement.IsAny() {
		return d.Name
	}
	return d.Name + " (" + d.Requirement.String() + ")"
}

// Candidate is one installable (name, version, platform) offered by a
// source.
type Candidate struct {
	Name         string
	Version      gemver.Version
	Platform     platform.Platform
	Source       Source
	Deps         []Dependency
	Checksum     string // sha256 hex, empty when the source has none
	RequiredRuby gemver.Requirement
}

// FullName returns name-version[-platform], the gem file stem.
func (c Candidate) FullName() string {
	s := c.Name + "-" + c.Version.String()
	if !c.Platform.IsRuby() {
		s += "-" + c.Platform.String()
	}
	return s
}

// Key identifies the candidate across sources.
func (c Candidate) Key() string {
	return c.FullName()
}

func (c Candidate) String() string {
	if c.Platform.IsRuby() {
		return c.Name + " (" + c.Version.String() + ")"
	}
	return c.Name + " (" + c.Version.String() + "-" + c.Platform.String() + ")"
}

// Source lists and fetches gems from one place.
//
// Implementations are safe for concurrent use by multiple goroutines.
type Source interface {
	Kind() Kind
	Identity() string
	Ref() Ref

	// ListVersions returns every candidate for name installable on at least
	// one of platforms (all platforms when empty). A gem the source does not
	// carry yields an empty slice and no error.
	ListVersions(ctx context.Context, name string, platforms platform.Set) ([]Candidate, error)

	// FetchDependencies returns the runtime dependencies of c.
	FetchDependencies(ctx context.Context, c Candidate) ([]Dependency, error)

	// FetchArtifact materializes c below dir and returns its path: a .gem
	// file for remotes, the gem directory for path and git sources.
	FetchArtifact(ctx context.Context, c Candidate, dir string) (string, error)

	sealed()
}

// Mode selects which data a source may use.
type Mode int

const (
	// ModeRemote always asks the network.
	ModeRemote Mode = iota
	// ModeCached prefers cached data and falls back to the network.
	ModeCached
	// ModeLocal uses only data already on disk or in the cache.
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeCached:
		return "cached"
	case ModeLocal:
		return "local"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Policy maps the mode to the HTTP cache policy.
func (m Mode) Policy() integrations.Policy {
	switch m {
	case ModeRemote:
		return integrations.PolicyRefresh
	case ModeLocal:
		return integrations.PolicyOffline
	default:
		return integrations.PolicyDefault
	}
}

// Env carries what sources need to reach their data.
type Env struct {
	Root     string      // project directory; relative paths resolve against it
	CacheDir string      // git clones live below CacheDir/git
	Cache    cache.Cache // compact index responses
	Keyer    cache.Keyer // nil uses the default layout
	TTL      time.Duration
	Mode     Mode
	Timeout  time.Duration
	Backoff  httputil.Backoff
	Logger   *log.Logger

	// S3 builds the client for s3:// remotes. Nil uses the AWS environment.
	S3 func() s3index.API
}

func (e Env) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Opener creates a Source for a reference.
type Opener func(ref Ref, env Env) (Source, error)

// Open creates the Source described by ref.
func Open(ref Ref, env Env) (Source, error) {
	switch ref.Kind {
	case KindRemote:
		client, err := indexClient(ref.URI, env)
		if err != nil {
			return nil, err
		}
		return NewRemote(ref, client, env.Mode), nil
	case KindPath:
		return NewPath(ref, env), nil
	case KindGit:
		return NewGit(ref, env), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown source kind %s", ref.Kind)
}

func indexClient(uri string, env Env) (IndexClient, error) {
	var opts []integrations.ClientOption
	if env.Keyer != nil {
		opts = append(opts, integrations.WithKeyer(env.Keyer))
	}
	if strings.HasPrefix(uri, "s3://") {
		var api s3index.API
		if env.S3 != nil {
			api = env.S3()
		} else {
			api = s3index.NewAPIFromEnv()
		}
		return s3index.NewClient(api, env.Cache, uri, env.TTL, opts...)
	}
	if err := errors.ValidateURL(uri); err != nil {
		return nil, err
	}
	if env.Backoff.Attempts > 0 {
		opts = append(opts, integrations.WithBackoff(env.Backoff))
	}
	if env.Timeout > 0 {
		opts = append(opts, integrations.WithTimeout(env.Timeout))
	}
	return rubygems.NewClient(env.Cache, uri, env.TTL, opts...), nil
}
