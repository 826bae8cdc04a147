package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New(ErrCodeInvalidOption, "unknown platform %q", "amiga")
	if got, want := err.Error(), `INVALID_OPTION: unknown platform "amiga"`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := errors.New("connection reset")
	wrapped := Wrap(ErrCodeSourceFetch, cause, "fetching %s", "rack")
	if got, want := wrapped.Error(), "SOURCE_FETCH_ERROR: fetching rack: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error does not match its cause")
	}
}

func TestCodeLookups(t *testing.T) {
	fetch := New(ErrCodeSourceFetch, "all sources failed")
	notFound := Wrap(ErrCodeGemNotFound, fetch, "could not find gem 'rack'")

	tests := []struct {
		name     string
		err      error
		code     Code
		is       bool
		outer    Code
		userText string
	}{
		{"direct", fetch, ErrCodeSourceFetch, true, ErrCodeSourceFetch, "all sources failed"},
		{"other code", fetch, ErrCodeFrozen, false, ErrCodeSourceFetch, "all sources failed"},
		{"outer of chain", notFound, ErrCodeGemNotFound, true, ErrCodeGemNotFound, "could not find gem 'rack'"},
		{"inner of chain", notFound, ErrCodeSourceFetch, true, ErrCodeGemNotFound, "could not find gem 'rack'"},
		{"behind fmt", fmt.Errorf("lock: %w", New(ErrCodeFrozen, "frozen")), ErrCodeFrozen, true, ErrCodeFrozen, "frozen"},
		{"plain", errors.New("boom"), ErrCodeInternal, false, "", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.is {
				t.Errorf("Is(%s) = %v, want %v", tt.code, got, tt.is)
			}
			if got := GetCode(tt.err); got != tt.outer {
				t.Errorf("GetCode() = %q, want %q", got, tt.outer)
			}
			if got := UserMessage(tt.err); got != tt.userText {
				t.Errorf("UserMessage() = %q, want %q", got, tt.userText)
			}
		})
	}
}

func TestNilError(t *testing.T) {
	if Is(nil, ErrCodeInternal) {
		t.Error("Is(nil) = true")
	}
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %q", got)
	}
}
