// Package config holds the application configuration and its loader.
package config

import "time"

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

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

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // SkipLimit is the maximum number of records skipped per step execution. 0 disables skipping.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // SkippableExceptions lists registered error type names, e.g. "ReadError".
}

// SkippedExportConfig controls the parquet export of skipped records.
type SkippedExportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URI         string `yaml:"uri"`         // URI is a local path or gs://bucket/object. A run id suffix is added.
	Compression string `yaml:"compression"` // Compression is a parquet codec name: SNAPPY, GZIP, ZSTD or UNCOMPRESSED.
}

// BatchConfig holds configuration specific to the batch processing engine.
type BatchConfig struct {
	// JobName is the job run by the `run` command.
	JobName string `yaml:"job_name"`
	// ChunkSize is the number of records per chunk transaction.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkTimeout bounds one chunk transaction. 0 disables the deadline.
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`
	// StaleAfter is the idle time after which a STARTED execution counts as crashed.
	StaleAfter time.Duration `yaml:"stale_after"`
	// Restart resumes the last unfinished execution when true.
	Restart bool `yaml:"restart"`
	// ContinueOnError runs later steps after a failed one. The job still fails.
	ContinueOnError bool `yaml:"continue_on_error"`
	// ItemSkip is the item-level skip configuration.
	ItemSkip ItemSkipConfig `yaml:"item_skip"`
	// SkippedExport writes skipped records to a parquet file.
	SkippedExport SkippedExportConfig `yaml:"skipped_export"`
}

// InputConfig describes the delimited input file.
type InputConfig struct {
	// Path is a local file path or a gs://bucket/object URI.
	Path      string `yaml:"path"`
	HasHeader bool   `yaml:"has_header"`
	Delimiter string `yaml:"delimiter"`
	// GCSCredentialsFile is a service account key for gs:// inputs. Empty uses application default credentials.
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig selects the connections used by the framework.
type InfrastructureConfig struct {
	// JobRepositoryType is "sql" or "inmemory".
	JobRepositoryType string `yaml:"job_repository_type"`
	// JobRepositoryDBRef names the connection holding batch_job_execution and batch_step_execution.
	JobRepositoryDBRef string `yaml:"job_repository_db_ref"`
	// TargetDBRef names the connection holding the employee table.
	TargetDBRef string `yaml:"target_db_ref"`
}

// OTLPConfig configures an OTLP exporter.
type OTLPConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Protocol string        `yaml:"protocol"` // Protocol is "grpc" or "http".
	Insecure bool          `yaml:"insecure"`
	Interval time.Duration `yaml:"interval"` // Interval is the metric export period.
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Exporter is "none", "prometheus" or "otlp".
	Exporter string `yaml:"exporter"`
	// PushgatewayURL receives the Prometheus registry at job end when set.
	PushgatewayURL string     `yaml:"pushgateway_url"`
	OTLP           OTLPConfig `yaml:"otlp"`
}

// TracingConfig selects the tracing backend.
type TracingConfig struct {
	// Exporter is "none" or "otlp".
	Exporter    string     `yaml:"exporter"`
	ServiceName string     `yaml:"service_name"`
	OTLP        OTLPConfig `yaml:"otlp"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Batch          BatchConfig          `yaml:"batch"`
	Input          InputConfig          `yaml:"input"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Tracing        TracingConfig        `yaml:"tracing"`
	// Database holds named connection settings. Each entry is decoded into a
	// dbconfig.DatabaseConfig by the database provider.
	Database map[string]interface{} `yaml:"database"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			JobName:    "employeeJob",
			ChunkSize:  10,
			StaleAfter: 30 * time.Minute,
			Restart:    true,
			ItemSkip: ItemSkipConfig{
				SkipLimit: 0, // Default is fail fast.
			},
			SkippedExport: SkippedExportConfig{
				Compression: "SNAPPY",
			},
		},
		Input: InputConfig{
			Path:      "employees.csv",
			Delimiter: ",",
		},
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO", Format: "text"},
		},
		Infrastructure: InfrastructureConfig{
			JobRepositoryType:  "sql",
			JobRepositoryDBRef: "default",
			TargetDBRef:        "default",
		},
		Metrics: MetricsConfig{
			Exporter: "none",
			OTLP:     OTLPConfig{Protocol: "grpc", Interval: 10 * time.Second},
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "employee-import",
			OTLP:        OTLPConfig{Protocol: "grpc"},
		},
		Database: map[string]interface{}{
			"default": map[string]interface{}{
				"type":     "sqlite",
				"database": "employee.db",
				"migrate":  true,
				"pool":     map[string]interface{}{"max_open_conns": 1},
			},
		},
	}
}
