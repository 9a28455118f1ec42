package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for provswitch.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	SpeedTest SpeedTestConfig `mapstructure:"speedtest" toml:"speedtest"`
	Session   SessionConfig   `mapstructure:"session"   toml:"session"`
	Live      LiveConfig      `mapstructure:"live"      toml:"live"`
	Catalog   CatalogConfig   `mapstructure:"catalog"   toml:"catalog"`
	History   HistoryConfig   `mapstructure:"history"   toml:"history"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
}

// ServerConfig holds the local API server settings.
type ServerConfig struct {
	APIAddr      string `mapstructure:"api_addr"      toml:"api_addr"`
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"      toml:"data_dir"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// DBPath returns the path of the SQLite database inside the data dir.
func (s ServerConfig) DBPath() string {
	return filepath.Join(s.DataDir, DefaultDBFilename)
}

// SpeedTestConfig controls endpoint probing. Timeouts are per application
// family in milliseconds; zero falls back to default_timeout_ms.
type SpeedTestConfig struct {
	DefaultTimeoutMs int    `mapstructure:"default_timeout_ms" toml:"default_timeout_ms"`
	ClaudeTimeoutMs  int    `mapstructure:"claude_timeout_ms"  toml:"claude_timeout_ms"`
	CodexTimeoutMs   int    `mapstructure:"codex_timeout_ms"   toml:"codex_timeout_ms"`
	GeminiTimeoutMs  int    `mapstructure:"gemini_timeout_ms"  toml:"gemini_timeout_ms"`
	AutoSelect       bool   `mapstructure:"auto_select"        toml:"auto_select"`
	Warmup           bool   `mapstructure:"warmup"             toml:"warmup"`
	UserAgent        string `mapstructure:"user_agent"         toml:"user_agent"`
}

// TimeoutFor returns the probe timeout for an application family name.
func (s SpeedTestConfig) TimeoutFor(app string) time.Duration {
	ms := 0
	switch app {
	case "claude":
		ms = s.ClaudeTimeoutMs
	case "codex":
		ms = s.CodexTimeoutMs
	case "gemini":
		ms = s.GeminiTimeoutMs
	}
	if ms <= 0 {
		ms = s.DefaultTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// SessionConfig controls provider edit sessions.
type SessionConfig struct {
	MaxOpen        int `mapstructure:"max_open"          toml:"max_open"`
	SelfWriteTTLMs int `mapstructure:"self_write_ttl_ms" toml:"self_write_ttl_ms"`
}

// SelfWriteTTL returns the self-write suppression window.
func (s SessionConfig) SelfWriteTTL() time.Duration {
	return time.Duration(s.SelfWriteTTLMs) * time.Millisecond
}

// LiveConfig holds the configuration directories of the external tools.
type LiveConfig struct {
	ClaudeDir string `mapstructure:"claude_dir" toml:"claude_dir"`
	CodexDir  string `mapstructure:"codex_dir"  toml:"codex_dir"`
	GeminiDir string `mapstructure:"gemini_dir" toml:"gemini_dir"`
}

// CatalogConfig points at an optional user template file.
type CatalogConfig struct {
	File string `mapstructure:"file" toml:"file"`
}

// HistoryConfig controls stored probe history.
type HistoryConfig struct {
	Enabled       bool `mapstructure:"enabled"        toml:"enabled"`
	RetentionDays int  `mapstructure:"retention_days" toml:"retention_days"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "provswitch"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (PROVSWITCH_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.provswitch/provswitch.toml
//  4. ./provswitch.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: PROVSWITCH_SPEEDTEST_AUTO_SELECT etc.
	v.SetEnvPrefix("PROVSWITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".provswitch"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("provswitch")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	cfg.Live.ClaudeDir = expandHome(cfg.Live.ClaudeDir)
	cfg.Live.CodexDir = expandHome(cfg.Live.CodexDir)
	cfg.Live.GeminiDir = expandHome(cfg.Live.GeminiDir)
	cfg.Catalog.File = expandHome(cfg.Catalog.File)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.provswitch/provswitch.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".provswitch")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	data, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	data, err := toml.Marshal(Get())
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.api_addr", d.Server.APIAddr)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// SpeedTest
	v.SetDefault("speedtest.default_timeout_ms", d.SpeedTest.DefaultTimeoutMs)
	v.SetDefault("speedtest.claude_timeout_ms", d.SpeedTest.ClaudeTimeoutMs)
	v.SetDefault("speedtest.codex_timeout_ms", d.SpeedTest.CodexTimeoutMs)
	v.SetDefault("speedtest.gemini_timeout_ms", d.SpeedTest.GeminiTimeoutMs)
	v.SetDefault("speedtest.auto_select", d.SpeedTest.AutoSelect)
	v.SetDefault("speedtest.warmup", d.SpeedTest.Warmup)
	v.SetDefault("speedtest.user_agent", d.SpeedTest.UserAgent)

	// Session
	v.SetDefault("session.max_open", d.Session.MaxOpen)
	v.SetDefault("session.self_write_ttl_ms", d.Session.SelfWriteTTLMs)

	// Live
	v.SetDefault("live.claude_dir", d.Live.ClaudeDir)
	v.SetDefault("live.codex_dir", d.Live.CodexDir)
	v.SetDefault("live.gemini_dir", d.Live.GeminiDir)

	// Catalog
	v.SetDefault("catalog.file", d.Catalog.File)

	// History
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.retention_days", d.History.RetentionDays)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
