// Package version holds the build version.
package version

// Version is set at build time with
// -ldflags "-X github.com/hashicorp-forge/pawls/internal/version.Version=...".
var Version = "0.0.0-dev"
