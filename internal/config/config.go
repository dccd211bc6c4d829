package config

type Config interface {
	EnvConfig
	OIDCConfig
	ProfileAPIConfig
	RealtimeConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetIdentityProviderMode() string
}

type mainConfig struct {
	EnvVars
	OIDC
	ProfileAPI
	Realtime
}

func New() Config {
	return mainConfig{}
}
