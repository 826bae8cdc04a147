package manifest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/integrations"
	"github.com/matzehuels/gemlock/pkg/source"
)

var (
	blockPattern   = regexp.MustCompile(`\s+do(\s*\|[^|]*\|)?$`)
	keywordPattern = regexp.MustCompile(`^([a-z_]+)(?:\s*\(?\s*(.*?)\)?)?$`)
	keyPattern     = regexp.MustCompile(`^(?:(\w+):\s*|:(\w+)\s*=>\s*|["'](\w+)["']\s*=>\s*)(.+)$`)
	wordsPattern   = regexp.MustCompile(`^%[wi][\[({](.*)[\])}]$`)
)

// ParseGemfile reads the subset of the Gemfile DSL that declares
// dependencies: source, ruby, gem, and the group, platforms, source, git
// and path blocks. Other statements are ignored.
func ParseGemfile(r io.Reader) (*Model, error) {
	p := &gemfileParser{model: New()}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.lineNo++
		if err := p.line(sc.Text()); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "Gemfile line %d: %v", p.lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(p.stack) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "Gemfile: %d block(s) missing end", len(p.stack))
	}
	return p.model, nil
}

// frame is an open do ... end block.
type frame struct {
	groups    []string
	platforms []string
	source    *source.Ref
}

type gemfileParser struct {
	model  *Model
	lineNo int
	stack  []frame
}

func (p *gemfileParser) line(raw string) error {
	line := stripModifier(strings.TrimSpace(stripComment(raw)))
	if line == "" {
		return nil
	}
	if line == "end" {
		if len(p.stack) == 0 {
			return fmt.Errorf("unexpected end")
		}
		p.stack = p.stack[:len(p.stack)-1]
		return nil
	}

	block := false
	if loc := blockPattern.FindStringIndex(line); loc != nil {
		block = true
		line = strings.TrimSpace(line[:loc[0]])
	}
	m := keywordPattern.FindStringSubmatch(line)
	if m == nil {
		if block {
			p.stack = append(p.stack, frame{})
		}
		return nil
	}
	args, opts := parseArgs(m[2])

	switch kw := m[1]; kw {
	case "gem":
		if block {
			return fmt.Errorf("gem does not take a block")
		}
		return p.gem(args, opts)
	case "source":
		if len(args) == 0 {
			return fmt.Errorf("source needs a url")
		}
		if block {
			ref := source.RemoteRef(args[0])
			p.stack = append(p.stack, frame{source: &ref})
			return nil
		}
		p.model.AddRemote(args[0])
	case "ruby":
		if len(args) > 0 {
			req, err := gemver.ParseRequirement(args...)
			if err != nil {
				return err
			}
			p.model.SetRuby(req)
		}
		if name := first(opts["engine"]); name != "" {
			e := Engine{Name: name, Version: gemver.Any}
			if vs := opts["engine_version"]; len(vs) > 0 {
				req, err := gemver.ParseRequirement(vs...)
				if err != nil {
					return fmt.Errorf("engine_version: %w", err)
				}
				e.Version = req
			}
			p.model.SetEngine(e)
		}
	case "group", "platforms", "platform", "git", "github", "path":
		if !block {
			return fmt.Errorf("%s needs a block", kw)
		}
		f, err := blockFrame(kw, args, opts)
		if err != nil {
			return err
		}
		p.stack = append(p.stack, f)
	case "if", "unless", "case", "begin", "while", "until":
		p.stack = append(p.stack, frame{})
	default:
		if block {
			p.stack = append(p.stack, frame{})
		}
	}
	return nil
}

func blockFrame(kw string, args []string, opts map[string][]string) (frame, error) {
	switch kw {
	case "group":
		return frame{groups: args}, nil
	case "platforms", "platform":
		return frame{platforms: args}, nil
	}
	if len(args) == 0 {
		return frame{}, fmt.Errorf("%s needs an argument", kw)
	}
	var ref source.Ref
	switch kw {
	case "git":
		ref = gitRef(args[0], opts)
	case "github":
		ref = gitRef(integrations.GitHubRepoURL(args[0]), opts)
	case "path":
		ref = source.PathRef(args[0])
	}
	ref.Glob = first(opts["glob"])
	return frame{source: &ref}, nil
}

func gitRef(uri string, opts map[string][]string) source.Ref {
	ref := source.GitRef(uri)
	ref.Branch = first(opts["branch"])
	ref.Tag = first(opts["tag"])
	ref.Ref = first(opts["ref"])
	return ref
}

func (p *gemfileParser) gem(args []string, opts map[string][]string) error {
	if len(args) == 0 {
		return fmt.Errorf("gem needs a name")
	}
	var o Options
	for _, f := range p.stack {
		o.Groups = append(o.Groups, f.groups...)
		o.Platforms = append(o.Platforms, f.platforms...)
		if f.source != nil {
			o.Source = f.source
		}
	}
	o.Groups = append(o.Groups, opts["group"]...)
	o.Groups = append(o.Groups, opts["groups"]...)
	o.Platforms = append(o.Platforms, opts["platform"]...)
	o.Platforms = append(o.Platforms, opts["platforms"]...)

	var ref *source.Ref
	switch {
	case opts["git"] != nil:
		r := gitRef(first(opts["git"]), opts)
		ref = &r
	case opts["github"] != nil:
		r := gitRef(integrations.GitHubRepoURL(first(opts["github"])), opts)
		ref = &r
	case opts["path"] != nil:
		r := source.PathRef(first(opts["path"]))
		ref = &r
	case opts["source"] != nil:
		r := source.RemoteRef(first(opts["source"]))
		ref = &r
	}
	if ref != nil {
		if g := first(opts["glob"]); g != "" {
			ref.Glob = g
		}
		o.Source = ref
	}

	req, err := NewRequirement(args[0], args[1:], o)
	if err != nil {
		return err
	}
	return p.model.Add(req)
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// stripComment removes a trailing comment outside of string literals.
func stripComment(s string) string {
	var quote rune
	for i, c := range s {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return s[:i]
		}
	}
	return s
}

// stripModifier removes a trailing "if" or "unless" modifier. The guarded
// statement is kept unconditionally.
func stripModifier(s string) string {
	var quote rune
	for i, c := range s {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ' ' && i > 0:
			rest := s[i+1:]
			if strings.HasPrefix(rest, "if ") || strings.HasPrefix(rest, "unless ") {
				return s[:i]
			}
		}
	}
	return s
}

// splitTop splits s at commas outside of quotes and brackets.
func splitTop(s string) []string {
	var (
		out   []string
		quote rune
		depth int
		start int
	)
	for i, c := range s {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(' || c == '{':
			depth++
		case c == ']' || c == ')' || c == '}':
			depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// parseArgs splits call arguments into positional values and options.
func parseArgs(s string) ([]string, map[string][]string) {
	var args []string
	opts := make(map[string][]string)
	for _, part := range splitTop(s) {
		if m := keyPattern.FindStringSubmatch(part); m != nil && !isLiteral(part) {
			key := m[1] + m[2] + m[3]
			opts[key] = values(m[4])
			continue
		}
		args = append(args, values(part)...)
	}
	return args, opts
}

func isLiteral(s string) bool {
	return (strings.HasPrefix(s, `"`) || strings.HasPrefix(s, "'")) && !strings.Contains(s, "=>")
}

// values converts a literal to its string values: a string, a symbol, an
// array of either, or a %w[] word list.
func values(s string) []string {
	s = strings.TrimSpace(s)
	if m := wordsPattern.FindStringSubmatch(s); m != nil {
		return strings.Fields(m[1])
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var out []string
		for _, e := range splitTop(s[1 : len(s)-1]) {
			out = append(out, values(e)...)
		}
		return out
	}
	s = strings.TrimPrefix(s, ":")
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return nil
	}
	return []string{s}
}
