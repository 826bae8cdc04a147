// Package config loads the settings that tune resolution: worker counts,
// network retries, the response cache and group selection.
//
// Settings are read once and passed down by value. Sources, in increasing
// precedence: built-in defaults, ~/.gemlock/config.yml,
// <project>/.gemlock/config.yml, GEMLOCK_* environment variables. Command
// line flags are applied by the caller through the With methods.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/httputil"
)

// Dir is the settings directory, both under the home directory and the
// project root.
const (
	Dir      = ".gemlock"
	FileName = "config.yml"
)

// Settings is the resolved configuration.
type Settings struct {
	Jobs       int           `yaml:"jobs"`
	Retry      int           `yaml:"retry"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`

	CacheDir      string        `yaml:"cache_dir"`
	CacheBackend  string        `yaml:"cache_backend"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	RedisURL      string        `yaml:"redis_url"`
	MongoURI      string        `yaml:"mongo_uri"`
	MongoDatabase string        `yaml:"mongo_database"`

	// CacheNamespace prefixes every cache key so several projects can share
	// one redis or mongo backend.
	CacheNamespace string `yaml:"cache_namespace"`

	InstallPath string   `yaml:"install_path"`
	Frozen      bool     `yaml:"frozen"`
	Without     []string `yaml:"without"`
	With        []string `yaml:"with"`
	// RubyVersion overrides the detected ruby, as "3.3.0" or
	// "3.1.4 jruby 9.4.5.0".
	RubyVersion string   `yaml:"ruby_version"`
	MetricsFile string   `yaml:"metrics_file"`
	TraceFile   string   `yaml:"trace_file"`
}

// Default returns the built-in settings.
func Default() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		Jobs:         8,
		Retry:        3,
		RetryDelay:   time.Second,
		Timeout:      10 * time.Second,
		CacheDir:     filepath.Join(home, Dir, "cache"),
		CacheBackend: cache.BackendFile,
		CacheTTL:     24 * time.Hour,
		InstallPath:  filepath.Join(home, Dir, "gems"),
	}
}

// Load reads the settings for the project at projectDir from the home and
// project files and the process environment.
func Load(projectDir string) (Settings, error) {
	home, _ := os.UserHomeDir()
	var files []string
	if home != "" {
		files = append(files, filepath.Join(home, Dir, FileName))
	}
	if projectDir != "" {
		files = append(files, filepath.Join(projectDir, Dir, FileName))
	}
	return LoadFrom(files, os.LookupEnv)
}

// LoadFrom layers files, in order, and then the environment returned by
// lookup over the defaults. Missing files are skipped.
//
// Group selection layers differently from scalar keys: a layer's with list
// also takes its groups out of the without list inherited from lower layers,
// and the other way round. Only a layer naming a group in both lists is an
// error.
func LoadFrom(files []string, lookup func(string) (string, bool)) (Settings, error) {
	s := Default()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Settings{}, err
		}
		var groups groupLayer
		if err := yaml.Unmarshal(data, &groups); err != nil {
			return Settings{}, errors.Wrap(errors.ErrCodeInvalidOption, err, "parse %s: %v", path, err)
		}
		with, without := s.With, s.Without
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, errors.Wrap(errors.ErrCodeInvalidOption, err, "parse %s: %v", path, err)
		}
		s.With, s.Without = with, without
		if err := s.layerGroups(path, groups); err != nil {
			return Settings{}, err
		}
	}
	if err := s.applyEnv(lookup); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

// EnvPrefix prefixes every environment variable read by [Load].
const EnvPrefix = "GEMLOCK_"

type envSetter func(s *Settings, v string) error

func intVar(dst func(*Settings) *int) envSetter {
	return func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		*dst(s) = n
		return err
	}
}

func durationVar(dst func(*Settings) *time.Duration) envSetter {
	return func(s *Settings, v string) error {
		d, err := time.ParseDuration(v)
		*dst(s) = d
		return err
	}
}

func stringVar(dst func(*Settings) *string) envSetter {
	return func(s *Settings, v string) error {
		*dst(s) = v
		return nil
	}
}

// splitList splits on colons, commas or spaces.
func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == ':' || r == ',' || r == ' ' })
}

// groupLayer is the group selection a single file or the environment sets.
// A nil list means the layer leaves it alone.
type groupLayer struct {
	With    []string `yaml:"with"`
	Without []string `yaml:"without"`
}

// layerGroups applies one layer's group selection over the lower layers.
func (s *Settings) layerGroups(origin string, l groupLayer) error {
	for _, g := range l.With {
		if slices.Contains(l.Without, g) {
			return errors.New(errors.ErrCodeInvalidOption, "%s: group %s is in both with and without", origin, g)
		}
	}
	if l.With != nil {
		s.With = l.With
		s.Without = slices.DeleteFunc(slices.Clone(s.Without), func(g string) bool { return slices.Contains(l.With, g) })
	}
	if l.Without != nil {
		s.Without = l.Without
		s.With = slices.DeleteFunc(slices.Clone(s.With), func(g string) bool { return slices.Contains(l.Without, g) })
	}
	return nil
}

var envVars = map[string]envSetter{
	"JOBS":            intVar(func(s *Settings) *int { return &s.Jobs }),
	"RETRY":           intVar(func(s *Settings) *int { return &s.Retry }),
	"RETRY_DELAY":     durationVar(func(s *Settings) *time.Duration { return &s.RetryDelay }),
	"TIMEOUT":         durationVar(func(s *Settings) *time.Duration { return &s.Timeout }),
	"CACHE_DIR":       stringVar(func(s *Settings) *string { return &s.CacheDir }),
	"CACHE_BACKEND":   stringVar(func(s *Settings) *string { return &s.CacheBackend }),
	"CACHE_TTL":       durationVar(func(s *Settings) *time.Duration { return &s.CacheTTL }),
	"REDIS_URL":       stringVar(func(s *Settings) *string { return &s.RedisURL }),
	"MONGO_URI":       stringVar(func(s *Settings) *string { return &s.MongoURI }),
	"MONGO_DATABASE":  stringVar(func(s *Settings) *string { return &s.MongoDatabase }),
	"CACHE_NAMESPACE": stringVar(func(s *Settings) *string { return &s.CacheNamespace }),
	"INSTALL_PATH":    stringVar(func(s *Settings) *string { return &s.InstallPath }),
	"RUBY_VERSION":    stringVar(func(s *Settings) *string { return &s.RubyVersion }),
	"METRICS_FILE":    stringVar(func(s *Settings) *string { return &s.MetricsFile }),
	"TRACE_FILE":      stringVar(func(s *Settings) *string { return &s.TraceFile }),
	"FROZEN": func(s *Settings, v string) error {
		b, err := strconv.ParseBool(v)
		s.Frozen = b
		return err
	},
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	keys := make([]string, 0, len(envVars))
	for k := range envVars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, ok := lookup(EnvPrefix + k)
		if !ok || v == "" {
			continue
		}
		if err := envVars[k](s, v); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidOption, err, "%s%s=%q: %v", EnvPrefix, k, v, err)
		}
	}

	var groups groupLayer
	if v, ok := lookup(EnvPrefix + "WITH"); ok && v != "" {
		groups.With = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "WITHOUT"); ok && v != "" {
		groups.Without = splitList(v)
	}
	return s.layerGroups("environment", groups)
}

// Validate reports conflicting or out-of-range values as INVALID_OPTION.
func (s Settings) Validate() error {
	switch {
	case s.Jobs < 1:
		return errors.New(errors.ErrCodeInvalidOption, "jobs must be at least 1, got %d", s.Jobs)
	case s.Retry < 1:
		return errors.New(errors.ErrCodeInvalidOption, "retry must be at least 1, got %d", s.Retry)
	case s.Timeout < 0 || s.RetryDelay < 0 || s.CacheTTL < 0:
		return errors.New(errors.ErrCodeInvalidOption, "durations must not be negative")
	}
	switch s.CacheBackend {
	case "", cache.BackendFile, cache.BackendNone:
	case cache.BackendRedis:
		if s.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidOption, "cache_backend redis needs redis_url")
		}
	case cache.BackendMongo:
		if s.MongoURI == "" {
			return errors.New(errors.ErrCodeInvalidOption, "cache_backend mongo needs mongo_uri")
		}
	default:
		return errors.New(errors.ErrCodeInvalidOption, "unknown cache_backend %q", s.CacheBackend)
	}
	for _, g := range s.With {
		if slices.Contains(s.Without, g) {
			return errors.New(errors.ErrCodeInvalidOption, "group %s is in both with and without", g)
		}
	}
	return nil
}

// ExcludedGroups returns the groups to leave out of resolution: Without
// minus With.
func (s Settings) ExcludedGroups() []string {
	var out []string
	for _, g := range s.Without {
		if !slices.Contains(s.With, g) {
			out = append(out, g)
		}
	}
	return out
}

// CacheOptions returns the options for [cache.Open].
func (s Settings) CacheOptions() cache.Options {
	return cache.Options{
		Backend:       s.CacheBackend,
		Dir:           s.CacheDir,
		RedisURL:      s.RedisURL,
		MongoURI:      s.MongoURI,
		MongoDatabase: s.MongoDatabase,
	}
}

// Keyer returns the cache key layout: the default one, scoped by
// CacheNamespace when it is set.
func (s Settings) Keyer() cache.Keyer {
	if s.CacheNamespace == "" {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(cache.NewDefaultKeyer(), s.CacheNamespace+":")
}

// Backoff returns the retry policy for registry requests.
func (s Settings) Backoff() httputil.Backoff {
	b := httputil.DefaultBackoff
	b.Attempts = s.Retry
	if s.RetryDelay > 0 {
		b.Delay = s.RetryDelay
	}
	return b
}

// WithJobs returns a copy with the worker count set.
func (s Settings) WithJobs(n int) Settings {
	s.Jobs = n
	return s
}

// WithFrozen returns a copy with the frozen flag set.
func (s Settings) WithFrozen(frozen bool) Settings {
	s.Frozen = frozen
	return s
}

// WithoutCache returns a copy that disables the response cache.
func (s Settings) WithoutCache() Settings {
	s.CacheBackend = cache.BackendNone
	return s
}
