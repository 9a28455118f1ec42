package config

// DefaultAPIAddr is the default listen address of the local API (localhost only).
const DefaultAPIAddr = "127.0.0.1:7690"

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.provswitch"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "provswitch.toml"

// DefaultDBFilename is the name of the SQLite database in the data dir.
const DefaultDBFilename = "provswitch.db"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// It must exceed the longest probe timeout so speed-test requests complete.
const DefaultWriteTimeout = 60

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (1 MB).
const DefaultMaxBodySize = 1 << 20

// Probe timeouts in milliseconds.
const (
	DefaultProbeTimeoutMs  = 8000
	DefaultClaudeTimeoutMs = 8000
	DefaultCodexTimeoutMs  = 12000
	DefaultGeminiTimeoutMs = 8000
)

// MaxProbeTimeoutMs bounds any configured probe timeout.
const MaxProbeTimeoutMs = 120000

// DefaultMaxOpenSessions is the default bound on concurrently open edit sessions.
const DefaultMaxOpenSessions = 32

// DefaultSelfWriteTTLMs is the default self-write suppression window.
const DefaultSelfWriteTTLMs = 50

// DefaultRetentionDays is the default probe history retention in days.
const DefaultRetentionDays = 30

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "provswitch"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidTracingExporters lists the allowed tracing exporters.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIAddr:      DefaultAPIAddr,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		SpeedTest: SpeedTestConfig{
			DefaultTimeoutMs: DefaultProbeTimeoutMs,
			ClaudeTimeoutMs:  DefaultClaudeTimeoutMs,
			CodexTimeoutMs:   DefaultCodexTimeoutMs,
			GeminiTimeoutMs:  DefaultGeminiTimeoutMs,
			AutoSelect:       true,
			Warmup:           false,
			UserAgent:        "",
		},
		Session: SessionConfig{
			MaxOpen:        DefaultMaxOpenSessions,
			SelfWriteTTLMs: DefaultSelfWriteTTLMs,
		},
		Live: LiveConfig{
			ClaudeDir: "~/.claude",
			CodexDir:  "~/.codex",
			GeminiDir: "~/.gemini",
		},
		Catalog: CatalogConfig{
			File: "~/.provswitch/catalog.toml",
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: DefaultRetentionDays,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
	}
}
