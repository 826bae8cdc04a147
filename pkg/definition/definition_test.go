package definition

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/gemlock/internal/gemtest"
	"github.com/matzehuels/gemlock/pkg/config"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/lockfile"
	"github.com/matzehuels/gemlock/pkg/manifest"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/resolver"
)

const remote = "https://rubygems.org/"

func universe() *gemtest.Universe {
	return gemtest.NewUniverse(remote).
		Gem("foo", "1.0.0").
		Gem("foo", "1.1.0").
		Gem("foo", "1.2.0").
		Gem("bar", "1.0.0", "foo >= 1.1").
		Gem("bar", "1.1.0", "foo >= 1.1").
		Gem("baz", "0.9.0")
}

func settings(t *testing.T) config.Settings {
	s := config.Default()
	s.CacheDir = t.TempDir()
	s.InstallPath = t.TempDir()
	return s
}

func parseGemfile(t *testing.T, src string) *manifest.Model {
	t.Helper()
	m, err := manifest.ParseGemfile(strings.NewReader(src))
	require.NoError(t, err)
	return m
}

func parseLock(t *testing.T, src string) *lockfile.LockedGems {
	t.Helper()
	lg, err := lockfile.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return lg
}

func newDefinition(t *testing.T, u *gemtest.Universe, gemfile string, lock *lockfile.LockedGems, s config.Settings, opts ...Option) *Definition {
	t.Helper()
	opts = append([]Option{
		WithSourceOpener(gemtest.Opener(u)),
		WithLocalPlatform(platform.Ruby),
		WithRoot(t.TempDir()),
		WithBundledWith("0.1.0"),
	}, opts...)
	d, err := New(parseGemfile(t, gemfile), lock, s, opts...)
	require.NoError(t, err)
	return d
}

func versions(t *testing.T, d *Definition) map[string]string {
	t.Helper()
	lg, err := d.ToLock()
	require.NoError(t, err)
	out := make(map[string]string)
	for name, v := range lg.Versions() {
		out[name] = v.String()
	}
	return out
}

const fooBarGemfile = `gem "foo", "~> 1.0"
gem "bar"
`

func TestResolve_HighestSatisfyingAll(t *testing.T) {
	d := newDefinition(t, universe(), fooBarGemfile, nil, settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	require.Equal(t, map[string]string{"foo": "1.2.0", "bar": "1.1.0"}, versions(t, d))
	require.False(t, d.Reused())
	require.Equal(t, []string{"bar", "foo"}, d.Diff().Added)
}

func TestResolve_TransitiveRequirementOverridesLock(t *testing.T) {
	lock := parseLock(t, `GEM
  remote: https://rubygems.org/
  specs:
    bar (1.0.0)
      foo (>= 1.1)
    foo (1.0.0)

PLATFORMS
  ruby

DEPENDENCIES
  bar
  foo (~> 1.0)
`)
	d := newDefinition(t, universe(), fooBarGemfile, lock, settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	got := versions(t, d)
	require.Equal(t, "1.2.0", got["foo"])
	require.Equal(t, "1.0.0", got["bar"], "bar keeps its locked version")
}

const fooBarLock = `GEM
  remote: https://rubygems.org/
  specs:
    bar (1.0.0)
      foo (>= 1.1)
    foo (1.1.0)

PLATFORMS
  ruby

DEPENDENCIES
  bar
  foo (~> 1.0)

BUNDLED WITH
   0.1.0
`

func TestResolve_StabilityPreference(t *testing.T) {
	d := newDefinition(t, universe(), fooBarGemfile+"gem \"baz\"\n", parseLock(t, fooBarLock), settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	require.False(t, d.Reused(), "the manifest changed")
	require.Equal(t, map[string]string{"foo": "1.1.0", "bar": "1.0.0", "baz": "0.9.0"}, versions(t, d))
	require.Equal(t, []string{"baz"}, d.Diff().Added)
	require.Empty(t, d.Diff().Upgraded)
}

func TestResolve_Idempotent(t *testing.T) {
	u := universe()
	d := newDefinition(t, u, fooBarGemfile, parseLock(t, fooBarLock), settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))

	require.True(t, d.Reused())
	require.True(t, d.NothingChanged())
	require.Zero(t, u.Calls("foo"), "sources are not queried")

	lg, err := d.ToLock()
	require.NoError(t, err)
	require.Equal(t, fooBarLock, string(lockfile.Marshal(lg, lockfile.WriteOptions{})))
}

func TestResolve_Deterministic(t *testing.T) {
	var outputs []string
	for range 3 {
		d := newDefinition(t, universe(), fooBarGemfile+"gem \"baz\"\n", nil, settings(t))
		require.NoError(t, d.ResolveRemotely(context.Background()))
		lg, err := d.ToLock()
		require.NoError(t, err)
		outputs = append(outputs, string(lockfile.Marshal(lg, lockfile.WriteOptions{})))
	}
	require.Equal(t, outputs[0], outputs[1])
	require.Equal(t, outputs[1], outputs[2])

	// A second run over the first run's lock reproduces it.
	d := newDefinition(t, universe(), fooBarGemfile+"gem \"baz\"\n", parseLock(t, outputs[0]), settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	require.True(t, d.NothingChanged())
}

func TestResolve_Updates(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    map[string]string
		updated []string
	}{
		{
			name: "no update",
			want: map[string]string{"foo": "1.1.0", "bar": "1.0.0"},
		},
		{
			name: "all",
			opts: Options{UpdateAll: true},
			want: map[string]string{"foo": "1.2.0", "bar": "1.1.0"},
		},
		{
			name:    "named unlocks dependencies",
			opts:    Options{Update: []string{"bar"}},
			want:    map[string]string{"foo": "1.2.0", "bar": "1.1.0"},
			updated: []string{"bar"},
		},
		{
			name:    "conservative keeps dependencies",
			opts:    Options{Update: []string{"bar"}, Conservative: true},
			want:    map[string]string{"foo": "1.1.0", "bar": "1.1.0"},
			updated: []string{"bar"},
		},
		{
			name:    "named leaf",
			opts:    Options{Update: []string{"foo"}},
			want:    map[string]string{"foo": "1.2.0", "bar": "1.0.0"},
			updated: []string{"foo"},
		},
		{
			name: "all at patch level",
			opts: Options{UpdateAll: true, Level: resolver.LevelPatch},
			want: map[string]string{"foo": "1.1.0", "bar": "1.0.0"},
		},
		{
			name: "all at minor level",
			opts: Options{UpdateAll: true, Level: resolver.LevelMinor},
			want: map[string]string{"foo": "1.2.0", "bar": "1.1.0"},
		},
		{
			name:    "named strict patch",
			opts:    Options{Update: []string{"foo"}, Level: resolver.LevelPatch, Strict: true},
			want:    map[string]string{"foo": "1.1.0", "bar": "1.0.0"},
			updated: []string{"foo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDefinition(t, universe(), fooBarGemfile, parseLock(t, fooBarLock), settings(t), WithUpdate(tt.opts))
			require.NoError(t, d.ResolveRemotely(context.Background()))
			require.Equal(t, tt.want, versions(t, d))
			require.Equal(t, tt.updated, d.Updated())
		})
	}
}

func TestResolve_GroupUpdate(t *testing.T) {
	gemfile := "gem \"foo\", \"~> 1.0\"\n\ngroup :test do\n  gem \"bar\"\nend\n"
	d := newDefinition(t, universe(), gemfile, parseLock(t, fooBarLock), settings(t),
		WithUpdate(Options{Groups: []string{"test"}, Conservative: true}))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	require.Equal(t, "1.1.0", versions(t, d)["bar"])
	require.Equal(t, []string{"bar"}, d.Updated())
}

func TestResolve_SourceUpdate(t *testing.T) {
	root := t.TempDir()
	toml := "name = \"widget\"\nversion = \"0.3.0\"\n\n[dependencies]\nfoo = \">= 1.0\"\n"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor", "widget"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "vendor", "widget", "gem.toml"), []byte(toml), 0o644))
	gemfile := fooBarGemfile + "gem \"widget\", path: \"vendor/widget\"\n"

	d := newDefinition(t, universe(), gemfile, nil, settings(t), WithRoot(root))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	first, err := d.ToLock()
	require.NoError(t, err)
	lock := parseLock(t, string(lockfile.Marshal(first, lockfile.WriteOptions{})))

	d = newDefinition(t, universe(), gemfile, lock, settings(t), WithRoot(root),
		WithUpdate(Options{Sources: []string{"widget"}, Conservative: true}))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	require.Equal(t, []string{"widget"}, d.Updated())
	require.Equal(t, "0.3.0", versions(t, d)["widget"])
}

func TestResolve_RubyUpdate(t *testing.T) {
	lock := parseLock(t, strings.Replace(fooBarLock, "BUNDLED WITH", "RUBY VERSION\n   ruby 3.2.2p53\n\nBUNDLED WITH", 1))
	s := settings(t)
	s.RubyVersion = "3.3.0"
	gemfile := "ruby \"~> 3.2\"\n" + fooBarGemfile

	d := newDefinition(t, universe(), gemfile, lock, s)
	require.NoError(t, d.ResolveRemotely(context.Background()))
	lg, err := d.ToLock()
	require.NoError(t, err)
	require.Equal(t, "ruby 3.2.2p53", lg.RubyVersion, "the locked ruby is kept")

	d = newDefinition(t, universe(), gemfile, lock, s, WithUpdate(Options{Ruby: true}))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	lg, err = d.ToLock()
	require.NoError(t, err)
	require.Equal(t, "ruby 3.3.0", lg.RubyVersion)
	require.Equal(t, map[string]string{"foo": "1.1.0", "bar": "1.0.0"}, versions(t, d), "gems stay locked")

	s.RubyVersion = "3.1.4 jruby 9.4.5.0"
	d = newDefinition(t, universe(), "ruby \"3.1.4\", engine: \"jruby\"\n"+fooBarGemfile, nil, s)
	require.NoError(t, d.ResolveRemotely(context.Background()))
	lg, err = d.ToLock()
	require.NoError(t, err)
	require.Equal(t, "ruby 3.1.4 (jruby 9.4.5.0)", lg.RubyVersion)
}

func TestResolve_Conflict(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("a", "1.0.0").
		Gem("a", "2.0.0").
		Gem("b", "1.0.0", "a < 2.0")
	d := newDefinition(t, u, "gem \"a\", \">= 2.0\"\ngem \"b\"\n", nil, settings(t))

	err := d.ResolveRemotely(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCodeSolveFailure), "got %v", err)
	require.Contains(t, err.Error(), "b (1.0.0) requires a < 2.0")

	_, err = d.ToLock()
	require.ErrorIs(t, err, ErrNotResolved)
}

func TestResolve_GemNotFound(t *testing.T) {
	d := newDefinition(t, universe(), "gem \"missing\"\n", nil, settings(t))
	err := d.ResolveRemotely(context.Background())
	require.True(t, errors.Is(err, errors.ErrCodeGemNotFound), "got %v", err)
}

func TestNew_InvalidOptions(t *testing.T) {
	lock := parseLock(t, fooBarLock)
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"all and named", Options{UpdateAll: true, Update: []string{"foo"}}, errors.ErrCodeInvalidOption},
		{"unknown gem", Options{Update: []string{"nope"}}, errors.ErrCodeInvalidOption},
		{"unknown group", Options{Groups: []string{"nope"}}, errors.ErrCodeInvalidOption},
		{"remove all platforms", Options{RemovePlatforms: []string{"ruby"}}, errors.ErrCodeInvalidOption},
		{"remove unknown platform", Options{RemovePlatforms: []string{"java"}}, errors.ErrCodeInvalidOption},
		{"unknown source", Options{Sources: []string{"nope"}}, errors.ErrCodeInvalidOption},
		{"all and source", Options{UpdateAll: true, Sources: []string{"rubygems.org"}}, errors.ErrCodeInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(parseGemfile(t, fooBarGemfile), lock, settings(t), WithUpdate(tt.opts))
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestWithOptions(t *testing.T) {
	d := newDefinition(t, universe(), fooBarGemfile, parseLock(t, fooBarLock), settings(t))
	up, err := d.WithOptions(Options{UpdateAll: true})
	require.NoError(t, err)
	require.NotSame(t, d, up)
	require.False(t, d.Options().UpdateAll)

	require.NoError(t, up.ResolveRemotely(context.Background()))
	require.Equal(t, "1.2.0", versions(t, up)["foo"])

	_, err = d.WithOptions(Options{RemovePlatforms: []string{"ruby"}})
	require.True(t, errors.Is(err, errors.ErrCodeInvalidOption))
}

func TestResolve_Platforms(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("nokogiri", "1.16.0", "racc ~> 1.4").
		NativeGem("nokogiri", "1.16.0", "x86_64-linux", "racc ~> 1.4").
		Gem("racc", "1.7.3")
	d := newDefinition(t, u, "gem \"nokogiri\"\n", nil, settings(t),
		WithUpdate(Options{AddPlatforms: []string{"x86_64-linux"}}))
	require.Equal(t, []string{"ruby", "x86_64-linux"}, d.Platforms().Strings())

	require.NoError(t, d.ResolveRemotely(context.Background()))
	lg, err := d.ToLock()
	require.NoError(t, err)
	require.Len(t, lg.SpecsNamed("nokogiri"), 2)
	require.Len(t, lg.SpecsNamed("racc"), 1)
}

func TestResolveOnlyLocally_UsesLockedSpecs(t *testing.T) {
	u := universe()
	gemfile := "gem \"foo\", \">= 1.0\"\ngem \"bar\"\n"
	d := newDefinition(t, u, gemfile, parseLock(t, fooBarLock), settings(t))

	require.NoError(t, d.ResolveOnlyLocally(context.Background()))
	require.False(t, d.Reused(), "the requirement of foo changed")
	require.Equal(t, map[string]string{"foo": "1.1.0", "bar": "1.0.0"}, versions(t, d))

	lg, err := d.ToLock()
	require.NoError(t, err)
	dep, ok := lg.Dependency("foo")
	require.True(t, ok)
	require.Equal(t, ">= 1.0", dep.Requirement.String())
}

func TestResolveOnlyLocally_MissingGem(t *testing.T) {
	d := newDefinition(t, universe(), fooBarGemfile+"gem \"baz\"\n", parseLock(t, fooBarLock), settings(t))
	err := d.ResolveOnlyLocally(context.Background())
	require.True(t, errors.Is(err, errors.ErrCodeGemNotFound), "got %v", err)
}

func TestResolve_ExcludedGroups(t *testing.T) {
	s := settings(t)
	s.Without = []string{"test"}
	gemfile := "gem \"foo\"\n\ngroup :test do\n  gem \"not-published\"\nend\n"
	d := newDefinition(t, universe(), gemfile, nil, s)
	require.NoError(t, d.ResolveRemotely(context.Background()))
	require.Equal(t, map[string]string{"foo": "1.2.0"}, versions(t, d))
}

func TestValidateRuntime(t *testing.T) {
	u := universe().RequireRuby("foo", "1.2.0", ">= 3.3")
	d := newDefinition(t, u, "ruby \"~> 3.2\"\n"+fooBarGemfile, nil, settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))

	_, err := d.Specs()
	require.True(t, errors.Is(err, errors.ErrCodeRubyVersion), "specs are gated")

	linux := platform.MustParse("x86_64-linux")
	err = d.ValidateRuntime(Runtime{RubyVersion: gemver.MustParse("3.1.4"), Platform: linux})
	require.True(t, errors.Is(err, errors.ErrCodeRubyVersion))
	require.Contains(t, errors.UserMessage(err), "your Gemfile specified ~> 3.2")

	err = d.ValidateRuntime(Runtime{RubyVersion: gemver.MustParse("3.2.2"), Platform: linux})
	require.True(t, errors.Is(err, errors.ErrCodeRubyVersion))
	require.Contains(t, errors.UserMessage(err), "foo (1.2.0) requires ruby version >= 3.3")

	require.NoError(t, d.ValidateRuntime(Runtime{RubyVersion: gemver.MustParse("3.3.0"), Platform: linux}))
	specs, err := d.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
}

func TestValidateRuntime_Engine(t *testing.T) {
	gemfile := `ruby "3.1.4", engine: "jruby", engine_version: "~> 9.4"` + "\n" + fooBarGemfile
	d := newDefinition(t, universe(), gemfile, nil, settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	linux := platform.MustParse("x86_64-linux")

	tests := []struct {
		name string
		rt   Runtime
		msg  string
	}{
		{"mri", Runtime{RubyVersion: gemver.MustParse("3.1.4"), Platform: linux},
			"your Ruby engine is ruby, but your Gemfile specified jruby"},
		{"other engine", Runtime{RubyVersion: gemver.MustParse("3.1.4"), Engine: "truffleruby", EngineVersion: gemver.MustParse("23.1.0"), Platform: linux},
			"your Ruby engine is truffleruby, but your Gemfile specified jruby"},
		{"old engine", Runtime{RubyVersion: gemver.MustParse("3.1.4"), Engine: "jruby", EngineVersion: gemver.MustParse("9.3.13.0"), Platform: linux},
			"your jruby version is 9.3.13.0, but your Gemfile specified jruby ~> 9.4"},
		{"matching", Runtime{RubyVersion: gemver.MustParse("3.1.4"), Engine: "jruby", EngineVersion: gemver.MustParse("9.4.5.0"), Platform: linux}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ValidateRuntime(tt.rt)
			if tt.msg == "" {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, errors.ErrCodeRubyVersion), "got %v", err)
			require.Contains(t, errors.UserMessage(err), tt.msg)
		})
	}
}

func TestValidateRuntime_Platform(t *testing.T) {
	u := gemtest.NewUniverse(remote).NativeGem("ffi", "1.16.3", "x86_64-linux")
	d := newDefinition(t, u, "gem \"ffi\"\n", nil, settings(t), WithLocalPlatform(platform.MustParse("x86_64-linux")))
	require.NoError(t, d.ResolveRemotely(context.Background()))

	err := d.ValidateRuntime(Runtime{RubyVersion: gemver.MustParse("3.3.0"), Platform: platform.MustParse("arm64-darwin")})
	require.True(t, errors.Is(err, errors.ErrCodeRubyVersion))
	require.Contains(t, errors.UserMessage(err), "--add-platform arm64-darwin")
}

func TestMissingSpecsAndFetch(t *testing.T) {
	d := newDefinition(t, universe(), fooBarGemfile, nil, settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))

	inv := DirInventory{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(filepath.Join(inv.Root, "gems", "foo-1.2.0"), 0o755))

	missing, err := d.MissingSpecs(inv, platform.Ruby)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "bar", missing[0].Name)

	_, err = d.Fetch(context.Background(), inv, platform.Ruby)
	require.True(t, errors.Is(err, errors.ErrCodeRubyVersion), "fetch is gated on the runtime check")

	_, err = d.SpecsFor(platform.Ruby)
	require.True(t, errors.Is(err, errors.ErrCodeRubyVersion))

	require.NoError(t, d.ValidateRuntime(Runtime{RubyVersion: gemver.MustParse("3.3.0"), Platform: platform.Ruby}))
	specs, err := d.SpecsFor(platform.Ruby)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	paths, err := d.Fetch(context.Background(), inv, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(inv.CacheDir(), "bar-1.1.0.gem")}, paths)

	missing, err = d.MissingSpecs(inv, platform.Ruby)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), lockfile.DefaultName)
	d := newDefinition(t, universe(), fooBarGemfile, nil, settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))

	wrote, err := d.Lock(path, lockfile.WriteOptions{})
	require.NoError(t, err)
	require.True(t, wrote)

	lg, err := lockfile.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0.1.0", lg.BundledWith)

	again := newDefinition(t, universe(), fooBarGemfile, lg, settings(t))
	require.NoError(t, again.ResolveRemotely(context.Background()))
	wrote, err = again.Lock(path, lockfile.WriteOptions{})
	require.NoError(t, err)
	require.False(t, wrote)
}

func TestLock_Frozen(t *testing.T) {
	s := settings(t).WithFrozen(true)
	path := filepath.Join(t.TempDir(), lockfile.DefaultName)

	d := newDefinition(t, universe(), fooBarGemfile, nil, s)
	require.NoError(t, d.ResolveRemotely(context.Background()))
	_, err := d.Lock(path, lockfile.WriteOptions{})
	require.True(t, errors.Is(err, errors.ErrCodeFrozen))

	d = newDefinition(t, universe(), fooBarGemfile+"gem \"baz\"\n", parseLock(t, fooBarLock), s)
	require.NoError(t, d.ResolveRemotely(context.Background()))
	_, err = d.Lock(path, lockfile.WriteOptions{})
	require.True(t, errors.Is(err, errors.ErrCodeFrozen))
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	d = newDefinition(t, universe(), fooBarGemfile, parseLock(t, fooBarLock), s)
	require.NoError(t, d.ResolveRemotely(context.Background()))
	wrote, err := d.Lock(path, lockfile.WriteOptions{})
	require.NoError(t, err)
	require.True(t, wrote, "an unchanged lock may be written while frozen")
}

func TestResolve_KeepsUnknownSections(t *testing.T) {
	lock := parseLock(t, fooBarLock+"\nPLUGIN SOURCE\n  remote: https://plugins.example.com/\n")
	d := newDefinition(t, universe(), fooBarGemfile+"gem \"baz\"\n", lock, settings(t))
	require.NoError(t, d.ResolveRemotely(context.Background()))
	lg, err := d.ToLock()
	require.NoError(t, err)
	out := string(lockfile.Marshal(lg, lockfile.WriteOptions{PreserveUnknown: true}))
	require.Contains(t, out, "PLUGIN SOURCE\n  remote: https://plugins.example.com/\n")
}

func TestRunID(t *testing.T) {
	a := newDefinition(t, universe(), fooBarGemfile, nil, settings(t))
	b := newDefinition(t, universe(), fooBarGemfile, nil, settings(t))
	require.NotEqual(t, a.RunID(), b.RunID())
	require.Len(t, a.RunID(), 36)
}
