// Package version exposes the build version of the vault service.
package version

// Version is the semantic version of the running binary.
// Overridden at build time via -ldflags "-X github.com/polkapulse/vault/internal/version.Version=..."
var Version = "0.9.0-dev"
