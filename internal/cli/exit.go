package cli

import (
	"github.com/matzehuels/gemlock/pkg/errors"
)

// exitCodes follow the statuses Bundler scripts already check for.
var exitCodes = map[errors.Code]int{
	errors.ErrCodeInvalidManifest:        4,
	errors.ErrCodeDuplicateDependency:    4,
	errors.ErrCodeAmbiguousSpecification: 4,
	errors.ErrCodeSolveFailure:           6,
	errors.ErrCodeGemNotFound:            7,
	errors.ErrCodeLockfileNotFound:       7,
	errors.ErrCodeInvalidOption:          15,
	errors.ErrCodeFrozen:                 16,
	errors.ErrCodeSourceFetch:            17,
	errors.ErrCodeNetwork:                17,
	errors.ErrCodeRubyVersion:            18,
	errors.ErrCodeInvalidLockfile:        20,
}

// ExitCode returns the process status for err: 0 for nil, a code-specific
// status for coded errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[errors.GetCode(err)]; ok {
		return code
	}
	return 1
}
