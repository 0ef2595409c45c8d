package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
			expectError: false,
		},
		{
			name:  "single service - reaper",
			input: "reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "all services",
			input: "http,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "services with spaces",
			input: " http , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "duplicate services",
			input: "http,http,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,invalid-service",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name           string
		services       string
		expectedHTTP   bool
		expectedReaper bool
	}{
		{
			name:           "http only",
			services:       "http",
			expectedHTTP:   true,
			expectedReaper: false,
		},
		{
			name:           "default - http and reaper",
			services:       "http,reaper",
			expectedHTTP:   true,
			expectedReaper: true,
		},
		{
			name:           "reaper only",
			services:       "reaper",
			expectedHTTP:   false,
			expectedReaper: true,
		},
		{
			name:           "invalid configuration",
			services:       "invalid-service",
			expectedHTTP:   false,
			expectedReaper: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.expectedHTTP, cfg.IsHTTPServerEnabled())
			}

			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v, got %v", tt.expectedReaper, cfg.IsReaperEnabled())
			}
		})
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("API_KEY", "  sekrit  ")
	t.Setenv("DATABASE_PATH", "/var/lib/dispatch/dispatch.db")
	t.Setenv("STATE_FILE", "custom_state.json")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SERVICES", "http,reaper")
	t.Setenv("DEFAULT_MAX_RETRIES", "5")
	t.Setenv("RETRY_BACKOFF_ENABLED", "true")
	t.Setenv("REAPER_INTERVAL", "10s")
	t.Setenv("ENGINE_TIMEOUT", "2m")
	t.Setenv("JOB_TIMEOUT", "15m")
	t.Setenv("PENDING_MAX_AGE", "12h")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.APIKey != "sekrit" {
		t.Errorf("expected trimmed api key, got %q", cfg.Auth.APIKey)
	}
	if cfg.Store.DatabasePath != "/var/lib/dispatch/dispatch.db" {
		t.Errorf("unexpected database path: %q", cfg.Store.DatabasePath)
	}
	if cfg.Store.Backend() != StoreBackendSQLite {
		t.Errorf("expected sqlite backend, got %q", cfg.Store.Backend())
	}
	if cfg.Store.StateFile != "custom_state.json" {
		t.Errorf("unexpected state file: %q", cfg.Store.StateFile)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("unexpected http addr: %q", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.DefaultMaxRetries != 5 {
		t.Errorf("unexpected default max retries: %d", cfg.Dispatch.DefaultMaxRetries)
	}
	if !cfg.Dispatch.RetryBackoffEnabled {
		t.Error("expected retry backoff to be enabled")
	}
	if cfg.Reaper.Interval != 10*time.Second {
		t.Errorf("unexpected reaper interval: %v", cfg.Reaper.Interval)
	}
	if cfg.Reaper.EngineTimeout != 2*time.Minute {
		t.Errorf("unexpected engine timeout: %v", cfg.Reaper.EngineTimeout)
	}
	if cfg.Reaper.JobTimeout != 15*time.Minute {
		t.Errorf("unexpected job timeout: %v", cfg.Reaper.JobTimeout)
	}
	if cfg.Reaper.PendingMaxAge != 12*time.Hour {
		t.Errorf("unexpected pending max age: %v", cfg.Reaper.PendingMaxAge)
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Enabled() {
		t.Error("expected auth to be disabled without an api key")
	}
	if cfg.Store.Backend() != StoreBackendSnapshot {
		t.Errorf("expected snapshot backend by default, got %q", cfg.Store.Backend())
	}
	if cfg.Store.StateFile != "dispatch_server_state.json" {
		t.Errorf("unexpected default state file: %q", cfg.Store.StateFile)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("unexpected default http addr: %q", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.DefaultMaxRetries != 3 {
		t.Errorf("unexpected default max retries: %d", cfg.Dispatch.DefaultMaxRetries)
	}
	if cfg.Dispatch.RetryBackoffEnabled {
		t.Error("expected retry backoff to be disabled by default")
	}
	if cfg.Reaper.Interval != 30*time.Second {
		t.Errorf("unexpected default reaper interval: %v", cfg.Reaper.Interval)
	}
	if cfg.Reaper.EngineTimeout != 5*time.Minute {
		t.Errorf("unexpected default engine timeout: %v", cfg.Reaper.EngineTimeout)
	}
	if cfg.Reaper.JobTimeout != 30*time.Minute {
		t.Errorf("unexpected default job timeout: %v", cfg.Reaper.JobTimeout)
	}
	if cfg.Reaper.PendingMaxAge != 24*time.Hour {
		t.Errorf("unexpected default pending max age: %v", cfg.Reaper.PendingMaxAge)
	}
	if cfg.Observability.Metrics.Prefix != "dispatch" {
		t.Errorf("unexpected default metrics prefix: %q", cfg.Observability.Metrics.Prefix)
	}
	if !cfg.IsHTTPServerEnabled() || !cfg.IsReaperEnabled() {
		t.Error("expected http and reaper services enabled by default")
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:      10 * time.Millisecond,
		EngineTimeout: time.Second,
		JobTimeout:    time.Second,
		PendingMaxAge: time.Second,
	}

	cfg.Sanitize()

	if cfg.Interval < time.Second {
		t.Errorf("expected interval to be clamped, got %v", cfg.Interval)
	}
	if cfg.EngineTimeout < 10*time.Second {
		t.Errorf("expected engine timeout to be clamped, got %v", cfg.EngineTimeout)
	}
	if cfg.JobTimeout < 10*time.Second {
		t.Errorf("expected job timeout to be clamped, got %v", cfg.JobTimeout)
	}
	if cfg.PendingMaxAge < time.Minute {
		t.Errorf("expected pending max age to be clamped, got %v", cfg.PendingMaxAge)
	}
}

func TestDispatchConfig_Sanitize(t *testing.T) {
	cfg := DispatchConfig{DefaultMaxRetries: -2}
	cfg.Sanitize()
	if cfg.DefaultMaxRetries != 0 {
		t.Errorf("expected negative retry budget to clamp to 0, got %d", cfg.DefaultMaxRetries)
	}
}

func TestStoreConfig_Sanitize(t *testing.T) {
	cfg := StoreConfig{DatabasePath: "  ", StateFile: " "}
	cfg.Sanitize()

	if cfg.DatabasePath != "" {
		t.Errorf("expected database path to be trimmed empty, got %q", cfg.DatabasePath)
	}
	if cfg.StateFile != "dispatch_server_state.json" {
		t.Errorf("expected state file to fall back to default, got %q", cfg.StateFile)
	}
	if cfg.Backend() != StoreBackendSnapshot {
		t.Errorf("expected snapshot backend, got %q", cfg.Backend())
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
		Prefix:        "  ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}
	if cfg.Prefix != "dispatch" {
		t.Fatalf("expected prefix to fall back to default, got %q", cfg.Prefix)
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Prefix:        " dispatch.staging ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.Prefix != "dispatch.staging" {
		t.Fatalf("expected prefix to be trimmed, got %q", cfg.Prefix)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Endpoint:   " https://events.eu.pagerduty.com/v2/enqueue ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "dispatch" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}
	if cfg.PagerDuty.Component != "dispatch" {
		t.Fatalf("expected pagerduty component default, got %q", cfg.PagerDuty.Component)
	}
	if cfg.PagerDuty.Endpoint != "https://events.eu.pagerduty.com/v2/enqueue" {
		t.Fatalf("expected pagerduty endpoint to be trimmed, got %q", cfg.PagerDuty.Endpoint)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}
