package manifest

import (
	"iter"
	"slices"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/source"
)

// Model is the set of requirements of one project.
type Model struct {
	remotes []source.Ref
	reqs    []Requirement
	ruby    gemver.Requirement
	hasRuby bool
	engine  *Engine
}

// Engine is a non-MRI ruby implementation a manifest asks for, as in
// ruby "3.1.4", engine: "jruby", engine_version: "9.4.5.0".
type Engine struct {
	Name    string
	Version gemver.Requirement
}

// New returns an empty model.
func New() *Model {
	return &Model{}
}

// AddRemote declares a global gem server.
func (m *Model) AddRemote(uri string) {
	ref := source.RemoteRef(uri)
	for _, r := range m.remotes {
		if r.Identity() == ref.Identity() {
			return
		}
	}
	m.remotes = append(m.remotes, ref)
}

// SetRuby records the ruby version requirement.
func (m *Model) SetRuby(req gemver.Requirement) {
	m.ruby, m.hasRuby = req, true
}

// SetEngine records the ruby engine requirement.
func (m *Model) SetEngine(e Engine) {
	m.engine = &e
}

// Add inserts r. A name declared from two different sources is an
// AMBIGUOUS_SPECIFICATION error, a name declared twice from the same
// source a DUPLICATE_DEPENDENCY error. Declarations whose platform lists
// do not overlap never conflict. A requirement without groups belongs to
// [DefaultGroup].
func (m *Model) Add(r Requirement) error {
	if len(r.Groups) == 0 {
		r.Groups = []string{DefaultGroup}
	}
	for _, prev := range m.reqs {
		if prev.Name != r.Name || prev.disjoint(r) {
			continue
		}
		if prev.SourceIdentity() != r.SourceIdentity() {
			return errors.New(errors.ErrCodeAmbiguousSpecification,
				"gem %s is declared from two sources: %s and %s", r.Name, describeSource(prev), describeSource(r))
		}
		return errors.New(errors.ErrCodeDuplicateDependency,
			"gem %s is declared more than once (%s and %s); remove one of them", r.Name, prev, r)
	}
	m.reqs = append(m.reqs, r)
	return nil
}

func describeSource(r Requirement) string {
	if r.Source == nil {
		return "the global sources"
	}
	return r.Source.String()
}

// DependenciesFor yields the requirements in any of groups, in declaration
// order. No groups means every requirement.
func (m *Model) DependenciesFor(groups ...string) iter.Seq[Requirement] {
	return func(yield func(Requirement) bool) {
		for _, r := range m.reqs {
			if len(groups) > 0 && !r.InGroups(groups...) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Dependencies returns every requirement in declaration order.
func (m *Model) Dependencies() []Requirement {
	return slices.Clone(m.reqs)
}

// Lookup returns the declarations of name.
func (m *Model) Lookup(name string) []Requirement {
	var out []Requirement
	for _, r := range m.reqs {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the sorted distinct names of all requirements.
func (m *Model) Names() []string {
	var out []string
	for _, r := range m.reqs {
		if !slices.Contains(out, r.Name) {
			out = append(out, r.Name)
		}
	}
	slices.Sort(out)
	return out
}

// Groups returns the sorted distinct group names.
func (m *Model) Groups() []string {
	var out []string
	for _, r := range m.reqs {
		for _, g := range r.Groups {
			if !slices.Contains(out, g) {
				out = append(out, g)
			}
		}
	}
	slices.Sort(out)
	return out
}

// Remotes returns the global gem servers. A model that declares none uses
// [source.DefaultRemote].
func (m *Model) Remotes() []source.Ref {
	if len(m.remotes) == 0 {
		return []source.Ref{source.DefaultRemote}
	}
	return slices.Clone(m.remotes)
}

// Sources returns every source in declaration order: the global remotes
// first, then the pinned sources.
func (m *Model) Sources() []source.Ref {
	out := m.Remotes()
	seen := make(map[string]bool, len(out))
	for _, r := range out {
		seen[r.Identity()] = true
	}
	for _, r := range m.reqs {
		if r.Source == nil || seen[r.Source.Identity()] {
			continue
		}
		seen[r.Source.Identity()] = true
		out = append(out, *r.Source)
	}
	return out
}

// RubyRequirement returns the declared ruby requirement.
func (m *Model) RubyRequirement() (gemver.Requirement, bool) {
	return m.ruby, m.hasRuby
}

// RubyEngine returns the declared ruby engine.
func (m *Model) RubyEngine() (Engine, bool) {
	if m.engine == nil {
		return Engine{}, false
	}
	return *m.engine, true
}

// Without returns a model without the requirements whose groups are all in
// groups. A requirement with no groups is never excluded.
func (m *Model) Without(groups ...string) *Model {
	out := &Model{remotes: slices.Clone(m.remotes), ruby: m.ruby, hasRuby: m.hasRuby, engine: m.engine}
	for _, r := range m.reqs {
		excluded := len(r.Groups) > 0
		for _, g := range r.Groups {
			if !slices.Contains(groups, g) {
				excluded = false
				break
			}
		}
		if !excluded {
			out.reqs = append(out.reqs, r)
		}
	}
	return out
}
