package config

import "strings"

// AuthConfig groups authentication-related configuration.
//
// The dispatch API uses a single shared secret compared against the
// X-API-Key request header. When the key is empty, authentication is
// disabled and every request passes.
type AuthConfig struct {
	// APIKey is the shared secret expected in the X-API-Key header.
	// Leave empty to disable authentication (development only).
	APIKey string `env:"API_KEY" envDefault:""`
}

// Sanitize normalises the configured key.
func (a *AuthConfig) Sanitize() {
	a.APIKey = strings.TrimSpace(a.APIKey)
}

// Enabled reports whether request authentication is active.
func (a *AuthConfig) Enabled() bool {
	return a.APIKey != ""
}
