// Package version carries build-time identity, injected via -ldflags.
package version

var (
	// Version is the semantic version of the build, e.g. "1.4.2".
	Version = "dev"
	// Commit is the short git SHA the binary was built from.
	Commit = "unknown"
)
