// Package version provides build version information for automaker.
// These variables are set at build time via ldflags.
package version

import "fmt"

// Build information variables, injected via ldflags.
// Example: go build -ldflags "-X github.com/ahmedshikashaker/automaker/pkg/version.Version=v0.3.0".
//
//nolint:gochecknoglobals // Must be package-level vars for ldflags injection.
var (
	// Version is the semantic version ("dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String returns a single-line rendering of the build information.
func String() string {
	return fmt.Sprintf("automaker %s (commit %s, built %s)", Version, Commit, Date)
}
