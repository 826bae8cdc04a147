// Package buildinfo provides build-time version information.
//
// Variables are set via ldflags during build:
//
//	go build -ldflags "-X github.com/matzehuels/gemlock/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/gemlock/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/gemlock/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import (
	"fmt"
	"strings"

	"github.com/matzehuels/gemlock/pkg/gemver"
)

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// devLockVersion is recorded under BUNDLED WITH by builds without a
// release version.
const devLockVersion = "0.0.0"

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// LockVersion returns the version written to the BUNDLED WITH section of
// new lockfiles: Version without its "v" prefix, or 0.0.0 for
// development builds.
func LockVersion() string {
	v := strings.TrimPrefix(Version, "v")
	if _, err := gemver.Parse(v); err != nil {
		return devLockVersion
	}
	return v
}
