package docket

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays DOCKET_* environment variables onto cfg. Unset or
// malformed variables leave the corresponding field untouched.
func FromEnv(cfg *Config) {
	if v := os.Getenv("DOCKET_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	envDuration("DOCKET_DRAIN_DELAY", &cfg.DrainDelay)
	envDuration("DOCKET_LOCK_LIFETIME", &cfg.LockLifetime)
	envDuration("DOCKET_LOCK_RENEWAL", &cfg.LockRenewal)
	envDuration("DOCKET_STALLED_INTERVAL", &cfg.StalledInterval)
	if v := os.Getenv("DOCKET_REMOVE_ON_FINISHED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RemoveOnFinished = b
		}
	}
	if v := os.Getenv("DOCKET_REMOVE_ON_FAILED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RemoveOnFailed = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
