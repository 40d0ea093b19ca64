package utils

import (
	"time"

	"github.com/DataShades/fpx/internal/config"
)

// TimeoutConfig holds timeout configuration for different operations
type TimeoutConfig struct {
	FetchTimeout  time.Duration // ceiling for one origin fetch, body included
	WaitTimeout   time.Duration // ceiling for one wait connection
	AdmissionHold time.Duration // how long an admitted ticket keeps its slot before download starts
	DialTimeout   time.Duration
	HeaderTimeout time.Duration // origin response headers
}

// DefaultTimeoutConfig returns the built-in timeouts
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		FetchTimeout:  24 * time.Hour,
		WaitTimeout:   time.Hour,
		AdmissionHold: 10 * time.Minute,
		DialTimeout:   30 * time.Second,
		HeaderTimeout: 5 * time.Minute,
	}
}

// TimeoutsFromConfig overlays configured values on the defaults.
func TimeoutsFromConfig(cfg config.Config) TimeoutConfig {
	t := DefaultTimeoutConfig()
	if cfg.FetchTimeout > 0 {
		t.FetchTimeout = cfg.FetchTimeout
	}
	if cfg.WaitTimeout > 0 {
		t.WaitTimeout = cfg.WaitTimeout
	}
	if cfg.AdmissionHold > 0 {
		t.AdmissionHold = cfg.AdmissionHold
	}
	return t
}
