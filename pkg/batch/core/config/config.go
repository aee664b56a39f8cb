package config

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// EnvFilePath is the path of an optional .env file, supplied to the fx graph by main.
type EnvFilePath string

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// BatchConfig holds configuration specific to the batch processing engine.
type BatchConfig struct {
	// JobName is the name given to job executions and used as a metrics label.
	JobName string `yaml:"job_name" default:"sihRdPipeline"`
	// ChunkSize is the default number of items per chunk transaction.
	ChunkSize int `yaml:"chunk_size" default:"500"`
	// WriteBatchSize is the number of rows per INSERT statement issued by table writers.
	WriteBatchSize int `yaml:"write_batch_size" default:"200"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level" default:"INFO"`
	// Format is "text" or "json".
	Format string `yaml:"format" default:"text"`
	// SQLLevel controls the GORM logger ("SILENT", "ERROR", "WARN", "INFO").
	SQLLevel string `yaml:"sql_level" default:"SILENT"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the reference timezone for calendar computations.
	Timezone string `yaml:"timezone" default:"America/Sao_Paulo"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// PrometheusConfig controls how Prometheus metrics leave a short-lived batch process.
type PrometheusConfig struct {
	// TextfilePath, when set, receives the registry in text exposition format at shutdown.
	TextfilePath string `yaml:"textfile_path"`
	// PushgatewayURL, when set, receives a push of the registry at shutdown.
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// OTLPConfig holds the exporter settings shared by OTel traces and metrics.
type OTLPConfig struct {
	// Protocol is "grpc" or "http".
	Protocol string `yaml:"protocol" default:"grpc"`
	// Endpoint is host:port of the collector.
	Endpoint string `yaml:"endpoint" default:"localhost:4317"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "prometheus", "otlp" or "none".
	Backend    string           `yaml:"backend" default:"prometheus"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	OTLP       OTLPConfig       `yaml:"otlp"`
}

// TracingConfig controls the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled     bool       `yaml:"enabled"`
	ServiceName string     `yaml:"service_name" default:"sihrd"`
	OTLP        OTLPConfig `yaml:"otlp"`
}

// SurfinConfig holds all configuration under the "surfin" top-level key.
type SurfinConfig struct {
	Batch   BatchConfig   `yaml:"batch"`
	System  SystemConfig  `yaml:"system"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	// AdapterConfigs holds the "adapter" block: named database and storage connections.
	// Entries are decoded lazily by the providers with mapstructure.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// Surfin contains the framework configuration.
	Surfin SurfinConfig `yaml:"surfin"`
	// Application holds the application-specific block, decoded by the application itself.
	Application map[string]interface{} `yaml:"application"`
}

// DatabaseAdapterConfigs returns the raw "adapter.database" map, or nil.
func (c *Config) DatabaseAdapterConfigs() map[string]interface{} {
	return c.adapterSection("database")
}

// StorageAdapterConfigs returns the raw "adapter.storage" map, or nil.
func (c *Config) StorageAdapterConfigs() map[string]interface{} {
	return c.adapterSection("storage")
}

// BigQueryAdapterConfigs returns the raw "adapter.bigquery" map, or nil.
func (c *Config) BigQueryAdapterConfigs() map[string]interface{} {
	return c.adapterSection("bigquery")
}

func (c *Config) adapterSection(name string) map[string]interface{} {
	if c == nil || c.Surfin.AdapterConfigs == nil {
		return nil
	}
	section, ok := c.Surfin.AdapterConfigs[name].(map[string]interface{})
	if !ok {
		return nil
	}
	return section
}
