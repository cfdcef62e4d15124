package config

import "time"

type SecurityConfig interface {
	GetConsentLifetime() time.Duration
	GetKeyRetention() time.Duration
	GetRefreshReuseDetection() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetConsentLifetime bounds how long a remembered consent decision stays
// valid before the user is prompted again.
func (Security) GetConsentLifetime() time.Duration {
	return durationEnv("CONSENT_LIFETIME", 90*24*time.Hour)
}

// GetKeyRetention is how long a retired signing key keeps validating tokens
// after rotation.
func (Security) GetKeyRetention() time.Duration {
	return durationEnv("KEY_RETENTION", 48*time.Hour)
}

func (Security) GetRefreshReuseDetection() bool {
	return GetEnv("REFRESH_REUSE_DETECTION", "true") != "false"
}
