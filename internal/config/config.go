package config

// Config aggregates the tunable settings of the authorization core. Every
// value comes from an environment variable with a working default, so a zero
// configuration process is fully functional.
type Config interface {
	EnvConfig
	TokenConfig
	DeviceConfig
	SecurityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetIssuer() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Tokens
	Device
	Security
}

func New() Config {
	return mainConfig{}
}
