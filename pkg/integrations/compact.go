package integrations

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// GemVersion is one entry of a compact index info file
// (GET /info/<gem>):
//
//	---
//	1.1.0 rack:>= 1.0&< 3,thor:~> 1.0|checksum:9a1f…,ruby:>= 2.7
//	1.2.0-x86_64-linux rack:>= 1.0|checksum:77c2…
type GemVersion struct {
	Number           string
	Platform         string // "ruby" when the line has no platform suffix
	Deps             []GemDep
	Checksum         string // sha256, hex
	RequiredRuby     string
	RequiredRubygems string
}

// GemDep is a runtime dependency of a GemVersion. Requirement holds the
// individual constraints, e.g. [">= 1.0", "< 3"].
type GemDep struct {
	Name        string
	Requirement []string
}

// ParseInfo parses a compact index info file. Lines before the "---"
// separator and blank lines are ignored.
func ParseInfo(r io.Reader) ([]GemVersion, error) {
	var out []GemVersion
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	started := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "---" {
			started = true
			continue
		}
		if !started || strings.TrimSpace(line) == "" {
			continue
		}
		v, err := parseInfoLine(line)
		if err != nil {
			return nil, fmt.Errorf("info line %d: %w", lineNo, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseInfoLine(line string) (GemVersion, error) {
	head, meta, _ := strings.Cut(line, "|")
	ver, deps, _ := strings.Cut(strings.TrimSpace(head), " ")
	if ver == "" {
		return GemVersion{}, fmt.Errorf("missing version in %q", line)
	}

	v := GemVersion{Number: ver, Platform: "ruby"}
	if number, plat, ok := strings.Cut(ver, "-"); ok {
		v.Number, v.Platform = number, plat
	}

	for _, d := range splitList(deps) {
		name, req, ok := strings.Cut(d, ":")
		if !ok || name == "" {
			return GemVersion{}, fmt.Errorf("malformed dependency %q", d)
		}
		v.Deps = append(v.Deps, GemDep{Name: name, Requirement: strings.Split(req, "&")})
	}

	for _, kv := range splitList(meta) {
		key, val, _ := strings.Cut(kv, ":")
		switch key {
		case "checksum":
			v.Checksum = val
		case "ruby":
			v.RequiredRuby = strings.ReplaceAll(val, "&", ", ")
		case "rubygems":
			v.RequiredRubygems = strings.ReplaceAll(val, "&", ", ")
		}
	}
	return v, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatInfo renders versions in compact index form. It is the inverse of
// [ParseInfo] and is used by mirrors and test registries.
func FormatInfo(versions []GemVersion) []byte {
	var b bytes.Buffer
	b.WriteString("---\n")
	for _, v := range versions {
		b.WriteString(v.Number)
		if v.Platform != "" && v.Platform != "ruby" {
			b.WriteString("-" + v.Platform)
		}
		b.WriteByte(' ')
		deps := make([]string, len(v.Deps))
		for i, d := range v.Deps {
			deps[i] = d.Name + ":" + strings.Join(d.Requirement, "&")
		}
		b.WriteString(strings.Join(deps, ","))
		var meta []string
		if v.Checksum != "" {
			meta = append(meta, "checksum:"+v.Checksum)
		}
		if v.RequiredRuby != "" {
			meta = append(meta, "ruby:"+strings.ReplaceAll(v.RequiredRuby, ", ", "&"))
		}
		if v.RequiredRubygems != "" {
			meta = append(meta, "rubygems:"+strings.ReplaceAll(v.RequiredRubygems, ", ", "&"))
		}
		b.WriteString("|" + strings.Join(meta, ","))
		b.WriteByte('\n')
	}
	return b.Bytes()
}
