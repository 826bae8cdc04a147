package gemver

import (
	"fmt"
	"slices"
	"strings"
)

// Op is a requirement operator.
type Op string

// Supported operators.
const (
	OpEq          Op = "="
	OpNe          Op = "!="
	OpGt          Op = ">"
	OpLt          Op = "<"
	OpGte         Op = ">="
	OpLte         Op = "<="
	OpPessimistic Op = "~>"
)

// operators is ordered so that two-character operators are tried first.
var operators = []Op{OpNe, OpGte, OpLte, OpPessimistic, OpEq, OpGt, OpLt}

// Constraint is a single operator/version pair.
type Constraint struct {
	Op      Op
	Version Version
}

func (c Constraint) String() string {
	return string(c.Op) + " " + c.Version.String()
}

func (c Constraint) satisfied(v Version) bool {
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpLt:
		return cmp < 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	case OpPessimistic:
		return cmp >= 0 && v.Release().LessThan(c.Version.bump())
	}
	return false
}

// Requirement is a conjunction of constraints. The zero value accepts every
// version, like ">= 0".
type Requirement struct {
	constraints []Constraint
}

// Any is the requirement satisfied by every version.
var Any = Requirement{}

// ParseRequirement parses one or more requirement strings. Each string may
// itself hold several comma-separated constraints:
//
//	ParseRequirement("~> 1.2", "!= 1.2.5")
//	ParseRequirement(">= 1.0, < 2.0")
//
// A bare version means "= version".
func ParseRequirement(parts ...string) (Requirement, error) {
	var r Requirement
	for _, part := range parts {
		for _, piece := range strings.Split(part, ",") {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			c, err := parseConstraint(piece)
			if err != nil {
				return Requirement{}, err
			}
			r.constraints = append(r.constraints, c)
		}
	}
	return r.normalize(), nil
}

// MustParseRequirement is like ParseRequirement but panics on error.
func MustParseRequirement(parts ...string) Requirement {
	r, err := ParseRequirement(parts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Exact returns the requirement "= v".
func Exact(v Version) Requirement {
	return Requirement{constraints: []Constraint{{Op: OpEq, Version: v}}}
}

func parseConstraint(s string) (Constraint, error) {
	op := OpEq
	rest := s
	for _, candidate := range operators {
		if strings.HasPrefix(s, string(candidate)) {
			op = candidate
			rest = strings.TrimSpace(s[len(candidate):])
			break
		}
	}
	v, err := Parse(rest)
	if err != nil || rest == "" {
		return Constraint{}, fmt.Errorf("gemver: malformed requirement %q", s)
	}
	return Constraint{Op: op, Version: v}, nil
}

// normalize drops ">= 0" terms and duplicates and orders constraints the way
// lockfiles print them.
func (r Requirement) normalize() Requirement {
	out := make([]Constraint, 0, len(r.constraints))
	seen := make(map[string]bool)
	for _, c := range r.constraints {
		if c.Op == OpGte && c.Version.Equal(Zero) {
			continue
		}
		key := c.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Constraint) int {
		return strings.Compare(b.String(), a.String())
	})
	return Requirement{constraints: out}
}

// Satisfied reports whether v meets every constraint.
func (r Requirement) Satisfied(v Version) bool {
	for _, c := range r.constraints {
		if !c.satisfied(v) {
			return false
		}
	}
	return true
}

// Intersect returns the requirement satisfied by versions meeting both r and o.
func (r Requirement) Intersect(o Requirement) Requirement {
	merged := make([]Constraint, 0, len(r.constraints)+len(o.constraints))
	merged = append(merged, r.constraints...)
	merged = append(merged, o.constraints...)
	return Requirement{constraints: merged}.normalize()
}

// IsAny reports whether the requirement accepts every version.
func (r Requirement) IsAny() bool {
	return len(r.constraints) == 0
}

// Prerelease reports whether any constraint names a prerelease version.
// Prerelease candidates are only considered for such requirements.
func (r Requirement) Prerelease() bool {
	for _, c := range r.constraints {
		if c.Version.Prerelease() {
			return true
		}
	}
	return false
}

// Pinned returns the version when the requirement is a single "=".
func (r Requirement) Pinned() (Version, bool) {
	if len(r.constraints) == 1 && r.constraints[0].Op == OpEq {
		return r.constraints[0].Version, true
	}
	return Version{}, false
}

// Constraints returns a copy of the constraint list in canonical order.
func (r Requirement) Constraints() []Constraint {
	return slices.Clone(r.constraints)
}

// Equal reports whether both requirements print the same.
func (r Requirement) Equal(o Requirement) bool {
	return r.String() == o.String()
}

// String returns the canonical form, e.g. "< 2.0, >= 1.2". The empty
// requirement prints as ">= 0".
func (r Requirement) String() string {
	if len(r.constraints) == 0 {
		return ">= 0"
	}
	parts := make([]string, len(r.constraints))
	for i, c := range r.constraints {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
