// Package version carries the build identity injected at link time.
package version

// Set via -ldflags at build time.
var (
	// Version is the release version.
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = "none"
	// Date is the build timestamp.
	Date = "unknown"
)
