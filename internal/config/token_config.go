package config

import "time"

// TokenConfig carries the fallback lifetimes used when a client registration
// leaves its own lifetimes unset.
type TokenConfig interface {
	GetAuthCodeLifetime() time.Duration
	GetAccessTokenLifetime() time.Duration
	GetIdentityTokenLifetime() time.Duration
	GetRefreshTokenLifetime() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetAuthCodeLifetime() time.Duration {
	return durationEnv("AUTH_CODE_LIFETIME", 5*time.Minute)
}

func (Tokens) GetAccessTokenLifetime() time.Duration {
	return durationEnv("ACCESS_TOKEN_LIFETIME", 1*time.Hour)
}

func (Tokens) GetIdentityTokenLifetime() time.Duration {
	return durationEnv("IDENTITY_TOKEN_LIFETIME", 5*time.Minute)
}

func (Tokens) GetRefreshTokenLifetime() time.Duration {
	return durationEnv("REFRESH_TOKEN_LIFETIME", 30*24*time.Hour)
}

func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
