package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Queue       QueueConfig      `toml:"queue"`
	Storage     StorageConfig    `toml:"storage"`
	Archive     ArchiveConfig    `toml:"archive"`
	Uploads     UploadsConfig    `toml:"uploads"`
	Summarizer  SummarizerConfig `toml:"summarizer"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

// QueueConfig controls the durable archive task transport.
type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often the worker polls for messages
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - redelivery window for in-flight messages
	MaxReceive        int    `toml:"max_receive"`        // Max deliveries before a message is dead-lettered
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	SQLite        SQLiteConfig   `toml:"sqlite"`
	Badger        BadgerConfig   `toml:"badger"`
	Replica       ReplicaConfig  `toml:"replica"`
	DataDir       string         `toml:"data_dir"` // Root for locally saved artifacts
	FileProviders []FileProvider `toml:"file_providers"`
}

// SQLiteConfig represents primary (relational) store configuration
type SQLiteConfig struct {
	Path          string `toml:"path" validate:"required"`
	CacheSizeMB   int    `toml:"cache_size_mb"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
	WALMode       bool   `toml:"wal_mode"`
}

// BadgerConfig represents BadgerDB-specific configuration (replica store + queue)
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// ReplicaConfig controls the optional document-store mirror.
type ReplicaConfig struct {
	Enabled     bool   `toml:"enabled"`
	FailureMode string `toml:"failure_mode" validate:"omitempty,oneof=fail_fast log_and_continue queue_retry"`
}

// FileProvider names one blob-storage destination for artifact uploads.
type FileProvider struct {
	Type   string `toml:"type" validate:"oneof=local gcs memory"`
	Root   string `toml:"root"`   // local: directory root
	Bucket string `toml:"bucket"` // gcs: bucket name
}

// ArchiveConfig controls the archive orchestrator.
type ArchiveConfig struct {
	SkipExistingSaves bool              `toml:"skip_existing_saves"` // Dedup against prior successes on enqueue
	RequeuePriorities []string          `toml:"requeue_priorities"`  // Archiver names requeued first, in order
	RequeueChunkSize  int               `toml:"requeue_chunk_size"`  // Max items per requeued batch task
	PaywallRulesFile  string            `toml:"paywall_rules_file"`  // YAML file of host rewrite rules
	ProbeTimeout      string            `toml:"probe_timeout"`       // e.g. "10s"
	ProbeRatePerHost  float64           `toml:"probe_rate_per_host"` // Liveness probes per second per host
	ExecCommands      map[string]string `toml:"exec_commands"`       // archiver name -> command template
}

// UploadsConfig controls the upload pipeline and retention GC.
type UploadsConfig struct {
	Enabled         bool   `toml:"enabled"`
	RetentionHours  int    `toml:"retention_hours"`  // Local copies kept at least this long after upload
	CleanupSchedule string `toml:"cleanup_schedule"` // Cron expression for retention GC
	RetrySchedule   string `toml:"retry_schedule"`   // Cron expression for upload catch-up
	StorageClass    string `toml:"storage_class"`    // Optional blob storage class
}

// SummarizerConfig controls the summarization gate and its LLM backend.
type SummarizerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Inline          bool     `toml:"inline"`           // Run summaries synchronously instead of queueing
	Model           string   `toml:"model"`            // Anthropic model identifier
	APIKey          string   `toml:"api_key"`          // Falls back to ANTHROPIC_API_KEY
	SourceArchivers []string `toml:"source_archivers"` // Archivers whose output is summarizable
	MaxInputChars   int      `toml:"max_input_chars"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			VisibilityTimeout: "5m",
			MaxReceive:        5,
			QueueName:         "archive",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/hoard.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
			Replica: ReplicaConfig{
				Enabled:     false,
				FailureMode: "log_and_continue",
			},
			DataDir: "./data/archives",
		},
		Archive: ArchiveConfig{
			SkipExistingSaves: true,
			RequeueChunkSize:  25,
			ProbeTimeout:      "10s",
			ProbeRatePerHost:  1,
		},
		Uploads: UploadsConfig{
			Enabled:         false,
			RetentionHours:  72,
			CleanupSchedule: "*/30 * * * *",
			RetrySchedule:   "15 * * * *",
		},
		Summarizer: SummarizerConfig{
			Enabled:         false,
			Model:           "claude-sonnet-4-20250514",
			SourceArchivers: []string{"readable"},
			MaxInputChars:   100000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadConfig loads configuration in priority order: defaults -> files -> env.
// Later files override earlier ones.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies HOARD_* environment variables on top of file config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("HOARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("HOARD_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("HOARD_DATA_DIR"); v != "" {
		config.Storage.DataDir = v
	}
	if v := os.Getenv("HOARD_LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Summarizer.APIKey == "" {
		config.Summarizer.APIKey = v
	}
}

// PollIntervalDuration parses the queue poll interval with a safe fallback.
func (q *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(q.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// VisibilityTimeoutDuration parses the visibility timeout with a safe fallback.
func (q *QueueConfig) VisibilityTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(q.VisibilityTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ProbeTimeoutDuration parses the liveness probe timeout with a safe fallback.
func (a *ArchiveConfig) ProbeTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(a.ProbeTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// RetentionWindow returns the local-copy retention window.
func (u *UploadsConfig) RetentionWindow() time.Duration {
	if u.RetentionHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(u.RetentionHours) * time.Hour
}
