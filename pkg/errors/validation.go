package errors

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	maxGemNameLength = 256
	maxPathLength    = 500
)

// gemNameRegex matches names accepted by rubygems.org.
var gemNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateGemName checks a gem name before it is used in a lookup. Gem names
// end up as path segments under the install root and inside cache keys.
func ValidateGemName(name string) error {
	switch {
	case name == "":
		return New(ErrCodeInvalidPackage, "gem name cannot be empty")
	case len(name) > maxGemNameLength:
		return New(ErrCodeInvalidPackage, "gem name too long (max %d characters)", maxGemNameLength)
	case hasControl(name):
		return New(ErrCodeInvalidPackage, "gem name contains control characters")
	case strings.Contains(name, ".."):
		return New(ErrCodeInvalidPackage, "gem name cannot contain %q", "..")
	case !gemNameRegex.MatchString(name):
		return New(ErrCodeInvalidPackage, "invalid gem name: %q", name)
	}
	return nil
}

// ValidateManifestFilename checks the basename of a manifest path.
func ValidateManifestFilename(filename string) error {
	switch {
	case filename == "" || filename == ".":
		return New(ErrCodeInvalidManifest, "manifest filename cannot be empty")
	case strings.ContainsAny(filename, `/\`):
		return New(ErrCodeInvalidManifest, "manifest filename cannot contain path separators")
	case strings.HasPrefix(filename, "."):
		return New(ErrCodeInvalidManifest, "manifest filename cannot be a hidden file")
	}
	return nil
}

// ValidatePath checks a path that must stay inside the directory it is
// relative to, such as a gemspec glob under a path or git source.
func ValidatePath(path string) error {
	switch {
	case path == "":
		return New(ErrCodeInvalidPath, "path cannot be empty")
	case len(path) > maxPathLength:
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	case hasControl(path):
		return New(ErrCodeInvalidPath, "path contains invalid characters")
	case strings.HasPrefix(path, "/"):
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	case strings.Contains(path, ".."):
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	case strings.Contains(path, `\`):
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}
	return nil
}

// ValidateURL checks a remote source URL. Gem servers are reached over
// http(s); S3 mirrors use the s3 scheme.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	for _, scheme := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(rawURL, scheme) {
			return nil
		}
	}
	return New(ErrCodeInvalidInput, "URL must use http, https or s3 scheme")
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
