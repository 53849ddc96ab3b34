// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains all files embedded in the Go binary:
// - policy.default.yaml - the policy used when no POLICY_PATH is configured
//
//go:embed policy.default.yaml
var Files embed.FS

// DefaultPolicy returns the raw bytes of the embedded default policy
func DefaultPolicy() ([]byte, error) {
	return Files.ReadFile("policy.default.yaml")
}
