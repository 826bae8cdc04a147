// Package cli implements the gemlock command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gemlock/pkg/buildinfo"
	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/config"
	"github.com/matzehuels/gemlock/pkg/definition"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/lockfile"
	"github.com/matzehuels/gemlock/pkg/manifest"
	"github.com/matzehuels/gemlock/pkg/observability"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/source"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "gemlock"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Opener opens gem sources. Nil uses source.Open.
	Opener source.Opener
	// Platform overrides the detected local platform.
	Platform *platform.Platform

	status io.Writer // spinner output, shared with the logger
	global globalFlags
}

type globalFlags struct {
	verbose bool
	gemfile string
	noCache bool
	jobs    int
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), status: w}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

func (c *CLI) localPlatform() platform.Platform {
	if c.Platform != nil {
		return *c.Platform
	}
	return platform.Local()
}

// =============================================================================
// Project Loading
// =============================================================================

// project is the manifest, lock and settings one command works on.
type project struct {
	manifestPath string
	lockPath     string
	dir          string
	settings     config.Settings
	model        *manifest.Model
	locked       *lockfile.LockedGems
	cache        cache.Cache
	metrics      *observability.PrometheusHooks
	traces       *observability.TraceFile
}

// openProject locates and loads the manifest named by --gemfile (or found
// in the working directory), its lock and the layered settings. A missing
// lock is not an error; locked is nil then.
func (c *CLI) openProject(ctx context.Context, lockPath string) (*project, error) {
	path := c.global.gemfile
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		if path, err = manifest.Detect(wd); err != nil {
			return nil, err
		}
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p := &project{manifestPath: path, dir: filepath.Dir(path), lockPath: lockPath}
	if p.lockPath == "" {
		p.lockPath = manifest.LockPath(path)
	}

	if p.settings, err = c.loadSettings(p.dir); err != nil {
		return nil, err
	}

	if p.model, err = manifest.Load(path); err != nil {
		return nil, err
	}
	p.locked, err = lockfile.ReadFile(p.lockPath)
	if errors.Is(err, errors.ErrCodeLockfileNotFound) {
		p.locked, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	if p.cache, err = cache.Open(ctx, p.settings.CacheOptions()); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if p.settings.MetricsFile != "" {
		p.metrics = observability.NewPrometheusHooks()
		observability.Install(p.metrics)
	}
	if p.settings.TraceFile != "" {
		if p.traces, err = observability.StartTraceFile(p.settings.TraceFile); err != nil {
			_ = p.cache.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
	}
	c.Logger.Debug("loaded project", "manifest", p.manifestPath, "lock", p.lockPath, "locked", p.locked != nil)
	return p, nil
}

// loadSettings reads the settings for the project in dir and applies the
// global flags.
func (c *CLI) loadSettings(dir string) (config.Settings, error) {
	s, err := config.Load(dir)
	if err != nil {
		return config.Settings{}, err
	}
	if c.global.jobs > 0 {
		s = s.WithJobs(c.global.jobs)
	}
	if c.global.noCache {
		s = s.WithoutCache()
	}
	return s, s.Validate()
}

// projectDir is the directory of --gemfile, or the working directory.
func (c *CLI) projectDir() (string, error) {
	if c.global.gemfile != "" {
		path, err := filepath.Abs(c.global.gemfile)
		if err != nil {
			return "", err
		}
		return filepath.Dir(path), nil
	}
	return os.Getwd()
}

// close releases the cache and writes the metrics file.
func (p *project) close(logger *log.Logger) {
	if p.metrics != nil {
		if err := p.metrics.WriteTextfile(p.settings.MetricsFile); err != nil {
			logger.Warn("write metrics", "path", p.settings.MetricsFile, "err", err)
		}
		observability.Reset()
	}
	if p.traces != nil {
		if err := p.traces.Close(context.Background()); err != nil {
			logger.Warn("write traces", "path", p.settings.TraceFile, "err", err)
		}
	}
	if err := p.cache.Close(); err != nil {
		logger.Debug("close cache", "err", err)
	}
}

// definition builds the Definition for p.
func (c *CLI) definition(p *project, opts definition.Options) (*definition.Definition, error) {
	return definition.New(p.model, p.locked, p.settings,
		definition.WithLogger(c.Logger),
		definition.WithCache(p.cache),
		definition.WithSourceOpener(c.Opener),
		definition.WithRoot(p.dir),
		definition.WithLocalPlatform(c.localPlatform()),
		definition.WithBundledWith(buildinfo.LockVersion()),
		definition.WithUpdate(opts),
	)
}

// resolve runs d remotely, or against cached data only when local is set.
func (c *CLI) resolve(ctx context.Context, d *definition.Definition, local bool) error {
	spin := newSpinner(ctx, c.status, "Fetching gem metadata...")
	spin.start()
	prog := newProgress(c.Logger)

	var err error
	if local {
		spin.setMessage("Resolving with locally available gems...")
		err = d.ResolveOnlyLocally(ctx)
	} else {
		err = d.ResolveRemotely(ctx)
	}
	spin.stop()
	if spin.interrupted() {
		c.Logger.Warn("resolution interrupted")
	}
	if err != nil {
		return err
	}
	lock, err := d.ToLock()
	if err != nil {
		return err
	}
	if d.Reused() {
		prog.done("lockfile satisfies the manifest", "gems", len(lock.Specs))
	} else {
		prog.done("resolved dependencies", "gems", len(lock.Specs), "run", d.RunID())
	}
	return nil
}
