package config

import (
	"fmt"
	"net"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if _, _, err := net.SplitHostPort(cfg.Server.APIAddr); err != nil {
		errs = append(errs, fmt.Sprintf("server.api_addr must be host:port, got %q", cfg.Server.APIAddr))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// SpeedTest validation
	if cfg.SpeedTest.DefaultTimeoutMs < 1 || cfg.SpeedTest.DefaultTimeoutMs > MaxProbeTimeoutMs {
		errs = append(errs, fmt.Sprintf("speedtest.default_timeout_ms must be between 1 and %d, got %d", MaxProbeTimeoutMs, cfg.SpeedTest.DefaultTimeoutMs))
	}
	for name, ms := range map[string]int{
		"claude_timeout_ms": cfg.SpeedTest.ClaudeTimeoutMs,
		"codex_timeout_ms":  cfg.SpeedTest.CodexTimeoutMs,
		"gemini_timeout_ms": cfg.SpeedTest.GeminiTimeoutMs,
	} {
		if ms < 0 || ms > MaxProbeTimeoutMs {
			errs = append(errs, fmt.Sprintf("speedtest.%s must be between 0 and %d, got %d", name, MaxProbeTimeoutMs, ms))
		}
	}

	// Session validation
	if cfg.Session.MaxOpen < 1 {
		errs = append(errs, fmt.Sprintf("session.max_open must be at least 1, got %d", cfg.Session.MaxOpen))
	}
	if cfg.Session.SelfWriteTTLMs < 1 {
		errs = append(errs, fmt.Sprintf("session.self_write_ttl_ms must be positive, got %d", cfg.Session.SelfWriteTTLMs))
	}

	// Live validation
	if cfg.Live.ClaudeDir == "" || cfg.Live.CodexDir == "" || cfg.Live.GeminiDir == "" {
		errs = append(errs, "live.claude_dir, live.codex_dir and live.gemini_dir must not be empty")
	}

	// History validation
	if cfg.History.Enabled && cfg.History.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("history.retention_days must be at least 1, got %d", cfg.History.RetentionDays))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidTracingExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", ValidTracingExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
