package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeReaper runs the periodic sweep of stale engines and stuck jobs.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// DispatchConfig contains dispatch policy configuration.
type DispatchConfig struct {
	// DefaultMaxRetries is the retry budget applied to submissions that
	// do not specify max_retries.
	DefaultMaxRetries int `env:"DEFAULT_MAX_RETRIES" envDefault:"3"`

	// RetryBackoffEnabled switches failed jobs with retries remaining into
	// failed_retry with a retry_after timestamp instead of requeueing them
	// immediately. The reaper promotes them back to pending when due.
	RetryBackoffEnabled bool `env:"RETRY_BACKOFF_ENABLED" envDefault:"false"`
}

// Sanitize applies guardrails to dispatch configuration values.
func (d *DispatchConfig) Sanitize() {
	if d.DefaultMaxRetries < 0 {
		d.DefaultMaxRetries = 0
	}
}

// ReaperConfig contains reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"30s"`

	// EngineTimeout is the maximum heartbeat age before an engine is
	// considered dead and removed.
	EngineTimeout time.Duration `env:"ENGINE_TIMEOUT" envDefault:"5m"`

	// JobTimeout is the maximum time a job may sit in assigned status
	// without an update before it is failed with reason "timeout".
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"30m"`

	// PendingMaxAge is the maximum age for pending jobs before they are
	// marked as expired and removed from active scheduling.
	PendingMaxAge time.Duration `env:"PENDING_MAX_AGE" envDefault:"24h"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent busy-looping sweeps
	if r.Interval < 1*time.Second {
		r.Interval = 1 * time.Second
	}
	if r.EngineTimeout < 10*time.Second {
		r.EngineTimeout = 10 * time.Second
	}
	if r.JobTimeout < 10*time.Second {
		r.JobTimeout = 10 * time.Second
	}
	if r.PendingMaxAge < 1*time.Minute {
		r.PendingMaxAge = 1 * time.Minute
	}
}
