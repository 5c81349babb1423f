package models

// Config holds the application configuration
type Config struct {
	Padron       PadronConfig       `json:"padron"`
	Store        StoreConfig        `json:"store"`
	Server       ServerConfig       `json:"server"`
	Connectivity ConnectivityConfig `json:"connectivity"`
	Retry        RetryConfig        `json:"retry"`
	Tracing      TracingConfig      `json:"tracing"`
	LogLevel     string             `json:"log_level"`
}

// PadronConfig holds the municipal padron API related configuration
type PadronConfig struct {
	APIBaseURL string `json:"api_base_url"`
	TimeoutSec int    `json:"timeoutSec"`
}

// StoreConfig holds local store related configuration
type StoreConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds the local HTTP API configuration
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// ConnectivityConfig holds reachability probing configuration
type ConnectivityConfig struct {
	ProbeIntervalSec int `json:"probeIntervalSec"`
	ProbeTimeoutSec  int `json:"probeTimeoutSec"`
}

// RetryConfig holds startup retry related configuration
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry related configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
