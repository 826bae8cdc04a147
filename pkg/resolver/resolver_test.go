package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/gemlock/internal/gemtest"
	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/index"
	"github.com/matzehuels/gemlock/pkg/platform"
	"github.com/matzehuels/gemlock/pkg/source"
)

const remote = "https://rubygems.org/"

func newResolver(u *gemtest.Universe, opts ...index.Option) *Resolver {
	src := source.NewRemote(source.RemoteRef(remote), u, source.ModeRemote)
	return New(index.New([]source.Source{src}, opts...))
}

func roots(specs ...string) []Root {
	out := make([]Root, len(specs))
	for i, s := range specs {
		name, req, _ := strings.Cut(s, " ")
		out[i] = Root{Name: name, Requirement: gemver.MustParseRequirement(req)}
	}
	return out
}

func chosen(specs []ResolvedSpec) map[string]string {
	out := make(map[string]string, len(specs))
	for _, s := range specs {
		v := s.Version.String()
		if !s.Platform.IsRuby() {
			v += "-" + s.Platform.String()
		}
		if prev, ok := out[s.Name]; ok {
			v = prev + "," + v
		}
		out[s.Name] = v
	}
	return out
}

func fooBar() *gemtest.Universe {
	return gemtest.NewUniverse(remote).
		Gem("foo", "1.0.0").
		Gem("foo", "1.1.0").
		Gem("foo", "1.2.0").
		Gem("bar", "1.0.0", "foo >= 1.1").
		Gem("bar", "1.1.0", "foo >= 1.1")
}

func TestResolve_HighestSatisfyingAll(t *testing.T) {
	specs, err := newResolver(fooBar()).Resolve(context.Background(),
		Request{Roots: roots("foo ~> 1.0", "bar")}, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"foo": "1.2.0", "bar": "1.1.0"}, chosen(specs))
}

func TestResolve_PrefersLocked(t *testing.T) {
	req := Request{
		Roots:  roots("foo ~> 1.0", "bar"),
		Locked: map[string]gemver.Version{"foo": gemver.MustParse("1.1.0"), "bar": gemver.MustParse("1.0.0")},
	}
	specs, err := newResolver(fooBar()).Resolve(context.Background(), req, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"foo": "1.1.0", "bar": "1.0.0"}, chosen(specs))
}

func TestResolve_TransitiveOverridesLock(t *testing.T) {
	req := Request{
		Roots:  roots("foo ~> 1.0", "bar"),
		Locked: map[string]gemver.Version{"foo": gemver.MustParse("1.0.0")},
	}
	specs, err := newResolver(fooBar()).Resolve(context.Background(), req, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, "1.2.0", chosen(specs)["foo"])
}

func TestResolve_UpdateAllAndNamed(t *testing.T) {
	locked := map[string]gemver.Version{"foo": gemver.MustParse("1.1.0"), "bar": gemver.MustParse("1.0.0")}

	specs, err := newResolver(fooBar()).Resolve(context.Background(),
		Request{Roots: roots("foo ~> 1.0", "bar"), Locked: locked, UnlockAll: true}, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"foo": "1.2.0", "bar": "1.1.0"}, chosen(specs))

	specs, err = newResolver(fooBar()).Resolve(context.Background(),
		Request{Roots: roots("foo ~> 1.0", "bar"), Locked: locked, Unlock: map[string]bool{"bar": true}}, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"foo": "1.1.0", "bar": "1.1.0"}, chosen(specs))
}

func TestResolve_RootConflict(t *testing.T) {
	u := gemtest.NewUniverse(remote).Gem("a", "1.0.0").Gem("a", "2.0.0")
	_, err := newResolver(u).Resolve(context.Background(),
		Request{Roots: roots("a >= 2.0", "a < 2.0")}, platform.Ruby)
	require.Error(t, err)

	var sf *SolveFailure
	require.ErrorAs(t, err, &sf)
	require.True(t, errors.Is(err, errors.ErrCodeSolveFailure))
	require.Equal(t, []string{"Gemfile requires a >= 2.0, but Gemfile requires a < 2.0"}, sf.Lines())
}

func TestResolve_TransitiveConflictExplained(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("rails", "7.0.0", "rack < 3").
		Gem("rack", "2.2.8").
		Gem("rack", "3.0.8")
	_, err := newResolver(u).Resolve(context.Background(),
		Request{Roots: roots("rails", "rack >= 3")}, platform.Ruby)

	var sf *SolveFailure
	require.ErrorAs(t, err, &sf)
	require.Contains(t, err.Error(), "rails (7.0.0) requires rack < 3, but Gemfile requires rack >= 3")
}

func TestResolve_Backjump(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("a", "1.0.0").
		Gem("a", "2.0.0", "c >= 2").
		Gem("b", "1.0.0", "d").
		Gem("b", "2.0.0", "d").
		Gem("b", "3.0.0", "d").
		Gem("c", "1.0.0").
		Gem("c", "2.0.0").
		Gem("d", "1.0.0", "e").
		Gem("e", "1.0.0", "c < 2")

	specs, err := newResolver(u).Resolve(context.Background(), Request{Roots: roots("a", "b")}, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"a": "1.0.0", "b": "3.0.0", "c": "1.0.0", "d": "1.0.0", "e": "1.0.0",
	}, chosen(specs))
}

func TestResolve_Deterministic(t *testing.T) {
	req := Request{Roots: roots("foo ~> 1.0", "bar")}
	first, err := newResolver(fooBar()).Resolve(context.Background(), req, platform.Ruby)
	require.NoError(t, err)
	for range 5 {
		again, err := newResolver(fooBar()).Resolve(context.Background(), req, platform.Ruby)
		require.NoError(t, err)
		require.Equal(t, chosen(first), chosen(again))
	}
}

func TestResolve_RequiredBy(t *testing.T) {
	specs, err := newResolver(fooBar()).Resolve(context.Background(),
		Request{Roots: roots("foo ~> 1.0", "bar")}, platform.Ruby)
	require.NoError(t, err)
	for _, s := range specs {
		switch s.Name {
		case "foo":
			require.True(t, s.Direct)
			require.Equal(t, []string{"bar"}, s.RequiredBy)
		case "bar":
			require.True(t, s.Direct)
			require.Empty(t, s.RequiredBy)
			require.Len(t, s.Deps, 1)
		}
	}
}

func TestResolve_GemNotFound(t *testing.T) {
	u := gemtest.NewUniverse(remote).Gem("rack", "3.0.8")

	_, err := newResolver(u).Resolve(context.Background(), Request{Roots: roots("rack >= 9")}, platform.Ruby)
	var nf *index.GemNotFoundError
	require.ErrorAs(t, err, &nf)
	require.Nil(t, nf.Platform)
	require.Contains(t, err.Error(), "could not find gem 'rack (>= 9)'")

	_, err = newResolver(u).Resolve(context.Background(), Request{Roots: roots("nope")}, platform.Ruby)
	require.True(t, errors.Is(err, errors.ErrCodeGemNotFound))
}

func TestResolve_MissingTransitive(t *testing.T) {
	u := gemtest.NewUniverse(remote).Gem("app", "1.0.0", "ghost ~> 1.0")
	_, err := newResolver(u).Resolve(context.Background(), Request{Roots: roots("app")}, platform.Ruby)

	var sf *SolveFailure
	require.ErrorAs(t, err, &sf)
	require.Contains(t, err.Error(), "app (1.0.0) requires ghost ~> 1.0, which could not be found")
}

func TestResolve_Platforms(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("nokogiri", "1.16.0", "racc ~> 1.4").
		NativeGem("nokogiri", "1.16.0", "x86_64-linux", "racc ~> 1.4").
		Gem("racc", "1.7.3")
	plats, err := platform.ParseSet("x86_64-linux", "arm64-darwin")
	require.NoError(t, err)

	specs, err := newResolver(u, index.WithPlatforms(plats)).ResolveAll(context.Background(),
		Request{Roots: roots("nokogiri")}, plats)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"nokogiri": "1.16.0,1.16.0-x86_64-linux",
		"racc":     "1.7.3",
	}, chosen(specs))
}

func rubyAndLinux() platform.Set {
	return platform.Set{platform.Ruby, platform.MustParse("x86_64-linux")}
}

func TestResolveAll_PlatformsAgreeOnVersions(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("foo", "1.1.0").
		Gem("foo", "1.2.0").
		Gem("bar", "1.0.0", "foo").
		NativeGem("bar", "1.0.0", "x86_64-linux", "foo < 1.2")
	plats := rubyAndLinux()

	specs, err := newResolver(u, index.WithPlatforms(plats)).ResolveAll(context.Background(),
		Request{Roots: roots("bar")}, plats)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"bar": "1.0.0,1.0.0-x86_64-linux",
		"foo": "1.1.0",
	}, chosen(specs))

	seen := make(map[string]bool)
	for _, s := range specs {
		key := s.Name + "/" + s.Platform.String()
		require.False(t, seen[key], "two specs for %s", key)
		seen[key] = true
	}
}

func TestResolveAll_PlatformsCannotAgree(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("foo", "1.1.0").
		Gem("foo", "1.2.0").
		Gem("bar", "1.0.0", "foo >= 1.2").
		NativeGem("bar", "1.0.0", "x86_64-linux", "foo < 1.2")
	plats := rubyAndLinux()

	_, err := newResolver(u, index.WithPlatforms(plats)).ResolveAll(context.Background(),
		Request{Roots: roots("bar")}, plats)
	var sf *SolveFailure
	require.ErrorAs(t, err, &sf)
	require.True(t, errors.Is(err, errors.ErrCodeSolveFailure))
	require.NotNil(t, sf.Split)
	require.Equal(t, "foo", sf.Split.Name)
	require.Contains(t, err.Error(), "platforms ruby and x86_64-linux")
	require.Contains(t, err.Error(), "foo resolves to 1.2.0 on ruby but to 1.1.0 on x86_64-linux")
}

func TestSplit_Order(t *testing.T) {
	sp := &Split{Name: "foo", versions: []gemver.Version{
		gemver.MustParse("1.0.0"), gemver.MustParse("1.2.0"), gemver.MustParse("1.1.0"),
	}}
	versions := func(vs []gemver.Version) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = v.String()
		}
		return out
	}

	require.Equal(t, []string{"1.2.0", "1.1.0", "1.0.0"}, versions(sp.order(Request{})))

	locked := Request{Locked: map[string]gemver.Version{"foo": gemver.MustParse("1.1.0")}}
	require.Equal(t, []string{"1.1.0", "1.2.0", "1.0.0"}, versions(sp.order(locked)))

	locked.Unlock = map[string]bool{"foo": true}
	require.Equal(t, []string{"1.2.0", "1.1.0", "1.0.0"}, versions(sp.order(locked)))
}

func TestResolve_PlatformMissing(t *testing.T) {
	u := gemtest.NewUniverse(remote).NativeGem("sassc", "2.4.0", "x86_64-linux")
	java := platform.MustParse("java")

	_, err := newResolver(u).Resolve(context.Background(), Request{Roots: roots("sassc")}, java)
	var nf *index.GemNotFoundError
	require.ErrorAs(t, err, &nf)
	require.NotNil(t, nf.Platform)
	require.Equal(t, "java", nf.Platform.String())
}

func TestResolve_RootPlatformTags(t *testing.T) {
	u := gemtest.NewUniverse(remote).Gem("rack", "3.0.8").Gem("jruby-openssl", "0.14.0")
	req := Request{Roots: []Root{
		{Name: "rack"},
		{Name: "jruby-openssl", Platforms: []string{"jruby"}},
	}}

	specs, err := newResolver(u).Resolve(context.Background(), req, platform.MustParse("x86_64-linux"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"rack": "3.0.8"}, chosen(specs))

	specs, err = newResolver(u).Resolve(context.Background(), req, platform.MustParse("java"))
	require.NoError(t, err)
	require.Contains(t, chosen(specs), "jruby-openssl")
}

func TestResolve_Prerelease(t *testing.T) {
	u := gemtest.NewUniverse(remote).Gem("rack", "3.0.8").Gem("rack", "3.1.0.rc1")

	specs, err := newResolver(u).Resolve(context.Background(), Request{Roots: roots("rack")}, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, "3.0.8", chosen(specs)["rack"])

	specs, err = newResolver(u).Resolve(context.Background(), Request{Roots: roots("rack >= 3.1.0.a")}, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, "3.1.0.rc1", chosen(specs)["rack"])
}

func TestResolve_RequiredRuby(t *testing.T) {
	u := gemtest.NewUniverse(remote).
		Gem("rails", "7.0.8").
		Gem("rails", "8.0.0").
		RequireRuby("rails", "8.0.0", ">= 3.2")
	ruby := gemver.MustParse("3.1.4")

	specs, err := newResolver(u).Resolve(context.Background(), Request{Roots: roots("rails"), Ruby: &ruby}, platform.Ruby)
	require.NoError(t, err)
	require.Equal(t, "7.0.8", chosen(specs)["rails"])
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newResolver(fooBar()).Resolve(ctx, Request{Roots: roots("foo")}, platform.Ruby)
	require.Error(t, err)
}

func TestConflict_String(t *testing.T) {
	tests := []struct {
		name string
		c    Conflict
		want string
	}{
		{
			"no match",
			Conflict{Name: "rack", Edges: []Edge{{Requirement: gemver.MustParseRequirement(">= 9")}}},
			"Gemfile requires rack >= 9, but no version of rack matches",
		},
		{
			"several requirers",
			Conflict{Name: "rack", Edges: []Edge{
				{From: "rails", FromVersion: "7.0.0", Requirement: gemver.MustParseRequirement("< 3")},
				{Requirement: gemver.MustParseRequirement(">= 3")},
				{From: "puma", FromVersion: "6.0.0", Requirement: gemver.MustParseRequirement("~> 3.0")},
			}},
			"rails (7.0.0) requires rack < 3, but Gemfile requires rack >= 3 and puma (6.0.0) requires rack ~> 3.0",
		},
		{
			"missing",
			Conflict{Name: "ghost", Missing: true, Edges: []Edge{{From: "app", FromVersion: "1.0", Requirement: gemver.Any}}},
			"app (1.0) requires ghost, which could not be found in any source",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.c.String())
		})
	}
}
