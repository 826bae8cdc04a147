package index

import (
	"fmt"
	"strings"

	"github.com/matzehuels/gemlock/pkg/errors"
	"github.com/matzehuels/gemlock/pkg/gemver"
	"github.com/matzehuels/gemlock/pkg/platform"
)

// SourceFetchError is a failed query of one source.
type SourceFetchError struct {
	Source string // source identity
	Name   string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetching %s from %s: %v", e.Name, e.Source, e.Err)
}

// Unwrap exposes both the coded error and the underlying cause.
func (e *SourceFetchError) Unwrap() error {
	return errors.Wrap(errors.ErrCodeSourceFetch, e.Err, "could not fetch %s from %s", e.Name, e.Source)
}

// GemNotFoundError reports a gem no configured source could provide.
// Requirement and Platform are set when versions exist but none match.
type GemNotFoundError struct {
	Name        string
	Requirement gemver.Requirement
	Platform    *platform.Platform
	Sources     []string // identities, in query order
	Failures    []*SourceFetchError
}

func (e *GemNotFoundError) Error() string {
	var b strings.Builder
	b.WriteString("could not find gem '")
	b.WriteString(e.Name)
	if !e.Requirement.IsAny() {
		b.WriteString(" (" + e.Requirement.String() + ")")
	}
	b.WriteString("'")
	if e.Platform != nil {
		b.WriteString(" with platform '" + e.Platform.String() + "'")
	}
	if len(e.Sources) > 0 {
		b.WriteString(" in " + strings.Join(e.Sources, ", "))
	}
	for _, f := range e.Failures {
		b.WriteString("\n  " + f.Error())
	}
	return b.String()
}

func (e *GemNotFoundError) Unwrap() error {
	return errors.New(errors.ErrCodeGemNotFound, "%s", e.Error())
}
