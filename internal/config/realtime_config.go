package config

import "time"

type RealtimeConfig interface {
	GetRealtimeBaseURL() string
	GetRealtimeRetryInterval() time.Duration
}

type Realtime struct{}

var _ RealtimeConfig = Realtime{}

func (Realtime) GetRealtimeBaseURL() string {
	return GetEnv("REALTIME_BASE_URL", "http://localhost:8082")
}

// GetRealtimeRetryInterval is the delay before a dropped live channel is
// re-dialled.
func (Realtime) GetRealtimeRetryInterval() time.Duration {
	return 5 * time.Second
}
