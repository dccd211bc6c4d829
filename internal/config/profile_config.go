package config

import "time"

type ProfileAPIConfig interface {
	GetProfileAPIBaseURL() string
	GetProfileAPIKey() string
	GetProfileAPITimeout() time.Duration
}

type ProfileAPI struct{}

var _ ProfileAPIConfig = ProfileAPI{}

func (ProfileAPI) GetProfileAPIBaseURL() string {
	return GetEnv("PROFILE_API_BASE_URL", "http://localhost:8081")
}

func (ProfileAPI) GetProfileAPIKey() string {
	return GetEnv("PROFILE_API_KEY", "")
}

func (ProfileAPI) GetProfileAPITimeout() time.Duration {
	return 10 * time.Second
}
