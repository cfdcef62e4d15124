package config

import "os"

const (
	appNameVar = "APP_NAME"
	issuerVar  = "ISSUER"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "idpkit")
}

// GetIssuer returns the issuer identifier stamped into every token ("iss")
// and checked during validation.
func (EnvVars) GetIssuer() string {
	return GetEnv(issuerVar, "https://localhost:8443")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
