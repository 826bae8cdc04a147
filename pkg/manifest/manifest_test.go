package manifest

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/source"
)

const gemfile = `# frozen_string_literal: true
source "https://rubygems.org"

ruby "~> 3.2"

gem "rails", "~> 7.1", ">= 7.1.2"
gem 'puma', require: false # web server
gem "pg", platforms: [:mri, :mingw]
gem "activerecord-jdbc-adapter", :platforms => :jruby
gem "nokogiri", git: "https://github.com/sparklemotion/nokogiri.git", branch: "main"
gem "mygem", path: "vendor/mygem"
gem "debug" if ENV["DEBUG"]

group :development, :test do
  gem "rspec-rails", "~> 6.1"

  platforms :jruby do
    gem "jruby-openssl"
  end
end

group :test do
  gem "capybara"
end

source "https://gems.example.com" do
  gem "private-gem"
end

git "https://github.com/rails/rails.git", tag: "v7.1.2" do
  gem "actioncable"
end

if RUBY_VERSION >= "3.3"
  gem "syntax_suggest"
end

gemspec
`

func TestParseGemfile(t *testing.T) {
	m, err := ParseGemfile(strings.NewReader(gemfile))
	require.NoError(t, err)

	ruby, ok := m.RubyRequirement()
	require.True(t, ok)
	require.True(t, ruby.Satisfied(gemver.MustParse("3.3.0")))

	var names []string
	for _, r := range m.Dependencies() {
		names = append(names, r.Name)
	}
	require.Equal(t, []string{
		"rails", "puma", "pg", "activerecord-jdbc-adapter", "nokogiri", "mygem", "debug",
		"rspec-rails", "jruby-openssl", "capybara", "private-gem", "actioncable", "syntax_suggest",
	}, names)

	byName := func(name string) Requirement {
		rs := m.Lookup(name)
		require.Len(t, rs, 1, name)
		return rs[0]
	}

	rails := byName("rails")
	require.Equal(t, "~> 7.1, >= 7.1.2", rails.Requirement.String())
	require.Equal(t, []string{DefaultGroup}, rails.Groups)
	require.False(t, rails.Pinned())

	require.Equal(t, []string{"mri", "mingw"}, byName("pg").Platforms)
	require.Equal(t, []string{"jruby"}, byName("activerecord-jdbc-adapter").Platforms)

	noko := byName("nokogiri")
	require.True(t, noko.Pinned())
	require.Equal(t, source.KindGit, noko.Source.Kind)
	require.Equal(t, "main", noko.Source.Branch)

	require.Equal(t, source.KindPath, byName("mygem").Source.Kind)

	openssl := byName("jruby-openssl")
	require.Equal(t, []string{"development", "test"}, openssl.Groups)
	require.Equal(t, []string{"jruby"}, openssl.Platforms)

	require.Equal(t, "https://gems.example.com/", byName("private-gem").Source.URI)
	require.Equal(t, "v7.1.2", byName("actioncable").Source.Tag)

	sources := m.Sources()
	require.Len(t, sources, 5)
	require.Equal(t, "https://rubygems.org/", sources[0].URI)
	require.Equal(t, "https://github.com/sparklemotion/nokogiri.git", sources[1].URI)
}

func TestParseGemfile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  errors.Code
	}{
		{"duplicate", "gem 'rack'\ngem 'rack', '>= 2'\n", errors.ErrCodeDuplicateDependency},
		{"ambiguous", "gem 'rack'\ngem 'rack', path: 'vendor/rack'\n", errors.ErrCodeAmbiguousSpecification},
		{"ambiguous before duplicate", "gem 'rack', git: 'https://x/rack.git'\ngem 'rack', git: 'https://y/rack.git'\n", errors.ErrCodeAmbiguousSpecification},
		{"missing end", "group :test do\n  gem 'rspec'\n", errors.ErrCodeInvalidManifest},
		{"stray end", "end\n", errors.ErrCodeInvalidManifest},
		{"bad requirement", "gem 'rack', '>> 2'\n", errors.ErrCodeInvalidManifest},
		{"unknown platform", "gem 'rack', platforms: :amiga\n", errors.ErrCodeInvalidManifest},
		{"group without block", "group :test\n", errors.ErrCodeInvalidManifest},
		{"bad gem name", "gem '../rack'\n", errors.ErrCodeInvalidManifest},
		{"glob escapes the source", "gem 'rack', path: 'vendor/rack', glob: '../*.gemspec'\n", errors.ErrCodeInvalidManifest},
		{"bad engine version", "ruby '3.1.4', engine: 'jruby', engine_version: '>> 9'\n", errors.ErrCodeInvalidManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGemfile(strings.NewReader(tt.input))
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestParseGemfile_RubyEngine(t *testing.T) {
	m, err := ParseGemfile(strings.NewReader(`ruby "3.1.4", engine: "jruby", engine_version: "~> 9.4"` + "\n"))
	require.NoError(t, err)
	e, ok := m.RubyEngine()
	require.True(t, ok)
	require.Equal(t, "jruby", e.Name)
	require.Equal(t, "~> 9.4", e.Version.String())
	e, ok = m.Without("test").RubyEngine()
	require.True(t, ok, "Without keeps the engine")
	require.Equal(t, "jruby", e.Name)

	m, err = ParseGemfile(strings.NewReader("ruby \"3.3.0\"\n"))
	require.NoError(t, err)
	_, ok = m.RubyEngine()
	require.False(t, ok)
}

func TestModel_Add_DisjointPlatforms(t *testing.T) {
	m := New()
	mri, err := NewRequirement("pg", []string{"~> 1.5"}, Options{Platforms: []string{"mri"}})
	require.NoError(t, err)
	jdbc, err := NewRequirement("pg", nil, Options{
		Platforms: []string{"jruby"},
		Source:    &source.Ref{Kind: source.KindPath, URI: "vendor/pg-jdbc"},
	})
	require.NoError(t, err)

	require.NoError(t, m.Add(mri))
	require.NoError(t, m.Add(jdbc))
	require.Len(t, m.Lookup("pg"), 2)
	require.Equal(t, []string{"pg"}, m.Names())

	everywhere, err := NewRequirement("pg", nil, Options{})
	require.NoError(t, err)
	require.True(t, errors.Is(m.Add(everywhere), errors.ErrCodeDuplicateDependency))
}

func TestModel_DependenciesFor(t *testing.T) {
	m, err := ParseGemfile(strings.NewReader(gemfile))
	require.NoError(t, err)

	var test []string
	for r := range m.DependenciesFor("test") {
		test = append(test, r.Name)
	}
	require.Equal(t, []string{"rspec-rails", "jruby-openssl", "capybara"}, test)

	var all int
	for range m.DependenciesFor() {
		all++
	}
	require.Equal(t, len(m.Dependencies()), all)

	// Early exit stops the sequence.
	var firstTwo []string
	for r := range m.DependenciesFor() {
		firstTwo = append(firstTwo, r.Name)
		if len(firstTwo) == 2 {
			break
		}
	}
	require.Equal(t, []string{"rails", "puma"}, firstTwo)

	require.Equal(t, []string{"default", "development", "test"}, m.Groups())
}

func TestModel_Without(t *testing.T) {
	m, err := ParseGemfile(strings.NewReader(gemfile))
	require.NoError(t, err)

	w := m.Without("test")
	require.Empty(t, w.Lookup("capybara"))
	require.Len(t, w.Lookup("rspec-rails"), 1, "still in development")

	w = m.Without("development", "test")
	require.Empty(t, w.Lookup("rspec-rails"))
	require.Len(t, w.Lookup("rails"), 1)
	require.Len(t, m.Lookup("capybara"), 1, "original is unchanged")
}

func TestModel_Without_UngroupedLiteral(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(Requirement{Name: "rack", Requirement: gemver.Any}))
	require.Equal(t, []string{DefaultGroup}, m.Lookup("rack")[0].Groups)

	require.Equal(t, []string{"rack"}, m.Without().Names())
	require.Equal(t, []string{"rack"}, m.Without("test").Names())
	require.Empty(t, m.Without(DefaultGroup).Names())

	bare := &Model{reqs: []Requirement{{Name: "thin"}}}
	require.Equal(t, []string{"thin"}, bare.Without("test").Names())
}

func TestModel_DefaultRemote(t *testing.T) {
	m := New()
	require.Equal(t, []source.Ref{source.DefaultRemote}, m.Sources())

	m.AddRemote("https://rubygems.org/")
	m.AddRemote("https://rubygems.org")
	require.Len(t, m.Remotes(), 1)
}

const gemfileTOML = `
ruby = "~> 3.2"
sources = ["https://rubygems.org/"]

[gems]
rails = "~> 7.1"
rspec = { version = ["~> 3.12", ">= 3.12.1"], groups = ["test"] }
mygem = { path = "vendor/mygem" }
nokogiri = { github = "sparklemotion/nokogiri", tag = "v1.16.0" }
pg = { platforms = ["mri"] }
`

func TestParseTOML(t *testing.T) {
	m, err := ParseTOML(strings.NewReader(gemfileTOML))
	require.NoError(t, err)

	var names []string
	for r := range m.DependenciesFor() {
		names = append(names, r.Name)
	}
	require.Equal(t, []string{"rails", "rspec", "mygem", "nokogiri", "pg"}, names)

	rspec := m.Lookup("rspec")[0]
	require.Equal(t, "~> 3.12, >= 3.12.1", rspec.Requirement.String())
	require.Equal(t, []string{"test"}, rspec.Groups)

	noko := m.Lookup("nokogiri")[0]
	require.Equal(t, "https://github.com/sparklemotion/nokogiri.git", noko.Source.URI)
	require.Equal(t, "v1.16.0", noko.Source.Tag)
	require.True(t, m.Lookup("pg")[0].Requirement.IsAny())

	_, ok := m.RubyRequirement()
	require.True(t, ok)
}

func TestParseTOML_Errors(t *testing.T) {
	for _, input := range []string{
		"[gems\n",
		"[gems]\nrack = 3\n",
		"[gems]\nrack = { git = \"https://x/rack.git\", branch = \"a\", tag = \"b\" }\n",
		"[gems]\nrack = { groups = [1] }\n",
	} {
		_, err := ParseTOML(strings.NewReader(input))
		require.True(t, errors.Is(err, errors.ErrCodeInvalidManifest), input)
	}
}

func TestLoadAndDetect(t *testing.T) {
	dir := t.TempDir()
	_, err := Detect(dir)
	require.True(t, errors.Is(err, errors.ErrCodeNotFound))

	path := filepath.Join(dir, GemfileName)
	require.NoError(t, os.WriteFile(path, []byte("gem 'rack'\n"), 0o644))
	found, err := Detect(dir)
	require.NoError(t, err)
	require.Equal(t, path, found)

	m, err := Load(found)
	require.NoError(t, err)
	require.Equal(t, []string{"rack"}, m.Names())
	require.Equal(t, filepath.Join(dir, "Gemfile.lock"), LockPath(found))
	require.Equal(t, filepath.Join(dir, "gems.locked"), LockPath(filepath.Join(dir, GemsRBName)))

	toml := filepath.Join(dir, TOMLName)
	require.NoError(t, os.WriteFile(toml, []byte(gemfileTOML), 0o644))
	found, err = Detect(dir)
	require.NoError(t, err)
	require.Equal(t, toml, found)
	m, err = Load(found)
	require.NoError(t, err)
	require.True(t, slices.Contains(m.Names(), "rails"))
}
