package manifest

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/integrations"
	"github.com/matzehuels/gemlock/pkg/source"
)

// tomlManifest is the layout of Gemfile.toml:
//
//	ruby = "~> 3.2"
//	sources = ["https://rubygems.org/"]
//
//	[gems]
//	rails = "~> 7.1"
//	rspec = { version = "~> 3.12", groups = ["test"] }
//	mygem = { path = "vendor/mygem" }
//	nokogiri = { git = "https://github.com/sparklemotion/nokogiri.git", branch = "main" }
type tomlManifest struct {
	Ruby    any            `toml:"ruby"`
	Sources []string       `toml:"sources"`
	Gems    map[string]any `toml:"gems"`
}

// ParseTOML reads a Gemfile.toml manifest. Gems keep the order in which
// they appear in the file.
func ParseTOML(r io.Reader) (*Model, error) {
	var doc tomlManifest
	md, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "Gemfile.toml: %v", err)
	}

	m := New()
	for _, s := range doc.Sources {
		m.AddRemote(s)
	}
	if doc.Ruby != nil {
		parts, err := stringList(doc.Ruby)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "Gemfile.toml: ruby: %v", err)
		}
		req, err := gemver.ParseRequirement(parts...)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "Gemfile.toml: ruby: %v", err)
		}
		m.SetRuby(req)
	}

	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != "gems" {
			continue
		}
		name := key[1]
		req, err := tomlRequirement(name, doc.Gems[name])
		if err != nil {
			return nil, err
		}
		if err := m.Add(req); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func tomlRequirement(name string, v any) (Requirement, error) {
	var (
		constraints []string
		opts        Options
		err         error
	)
	switch v := v.(type) {
	case string:
		constraints = []string{v}
	case map[string]any:
		if constraints, err = stringList(v["version"]); err != nil {
			break
		}
		if opts.Groups, err = stringList(v["groups"]); err != nil {
			break
		}
		if opts.Platforms, err = stringList(v["platforms"]); err != nil {
			break
		}
		opts.Source, err = tomlSource(v)
	default:
		err = fmt.Errorf("expected a version string or a table, got %T", v)
	}
	if err != nil {
		return Requirement{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "Gemfile.toml: gem %s: %v", name, err)
	}
	return NewRequirement(name, constraints, opts)
}

func tomlSource(v map[string]any) (*source.Ref, error) {
	str := func(key string) string {
		s, _ := v[key].(string)
		return s
	}
	var ref source.Ref
	switch {
	case str("git") != "":
		ref = source.GitRef(str("git"))
	case str("github") != "":
		ref = source.GitRef(integrations.GitHubRepoURL(str("github")))
	case str("path") != "":
		ref = source.PathRef(str("path"))
	case str("source") != "":
		return &source.Ref{Kind: source.KindRemote, URI: str("source")}, nil
	default:
		return nil, nil
	}
	if ref.Kind == source.KindGit {
		ref.Branch, ref.Tag, ref.Ref = str("branch"), str("tag"), str("ref")
		set := 0
		for _, s := range []string{ref.Branch, ref.Tag, ref.Ref} {
			if s != "" {
				set++
			}
		}
		if set > 1 {
			return nil, fmt.Errorf("only one of branch, tag and ref may be set")
		}
	}
	ref.Glob = str("glob")
	return &ref, nil
}

func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or array, got %T", v)
	}
}
