package config

import "os"

const (
	appNameVar  = "APP_NAME"
	logLevelVar = "LOG_LEVEL"
	idpModeVar  = "IDP_MODE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Session Coordinator")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetIdentityProviderMode selects the identity provider backend,
// "local" or "oidc".
func (EnvVars) GetIdentityProviderMode() string {
	return GetEnv(idpModeVar, "local")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
