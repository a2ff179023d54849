// Package config provides configuration management for dronetrace.
// Values start from defaults, are overlaid by an optional YAML file and
// finally by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort              = 8797
	DefaultLogLevel          = "info"
	DefaultDataDir           = ".dronetrace"
	DefaultLogExt            = ".SRT"
	DefaultFailurePolicy     = FailureAbort
	DefaultFullExportName    = "data.csv"
	DefaultSummaryExportName = "data_summ.csv"
	DefaultPreviewRows       = 5
	DefaultS3Bucket          = "dronetrace"
	DefaultWatchInterval     = 30 * time.Second

	// Environment variable names
	EnvConfigFile    = "DRONETRACE_CONFIG_FILE"
	EnvPort          = "DRONETRACE_PORT"
	EnvLogLevel      = "DRONETRACE_LOG_LEVEL"
	EnvDataDir       = "DRONETRACE_DATA_DIR"
	EnvFailurePolicy = "DRONETRACE_FAILURE_POLICY"
	EnvPreviewRows   = "DRONETRACE_PREVIEW_ROWS"
	EnvS3Endpoint    = "DRONETRACE_S3_ENDPOINT"
	EnvWatchInterval = "DRONETRACE_WATCH_INTERVAL"

	// Database filename
	DBFilename = "dronetrace.db"

	FailureAbort = "abort"
	FailureSkip  = "skip"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LogExt() string
	ExtCaseSensitive() bool
	Recursive() bool
	FailurePolicy() string
	OutputDir() string
	FullExportName() string
	SummaryExportName() string
	PreviewRows() int
	Headless() bool
	WatchInterval() time.Duration
	ObjectStore() ObjectStoreConfig
}

// ObjectStoreConfig describes the optional S3-compatible export mirror.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"   env:"DRONETRACE_S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"DRONETRACE_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"DRONETRACE_S3_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl"    env:"DRONETRACE_S3_USE_SSL"`
	Bucket    string `yaml:"bucket"     env:"DRONETRACE_S3_BUCKET"`
	Prefix    string `yaml:"prefix"     env:"DRONETRACE_S3_PREFIX"`
}

// Enabled reports whether a mirror endpoint is configured.
func (o ObjectStoreConfig) Enabled() bool {
	return o.Endpoint != ""
}

type settings struct {
	Port              int               `yaml:"port"                env:"DRONETRACE_PORT"`
	LogLevel          string            `yaml:"log_level"           env:"DRONETRACE_LOG_LEVEL"`
	DataDir           string            `yaml:"data_dir"            env:"DRONETRACE_DATA_DIR"`
	LogExt            string            `yaml:"log_ext"             env:"DRONETRACE_LOG_EXT"`
	ExtCaseSensitive  bool              `yaml:"ext_case_sensitive"  env:"DRONETRACE_EXT_CASE_SENSITIVE"`
	Recursive         bool              `yaml:"recursive"           env:"DRONETRACE_RECURSIVE"`
	FailurePolicy     string            `yaml:"failure_policy"      env:"DRONETRACE_FAILURE_POLICY"`
	OutputDir         string            `yaml:"output_dir"          env:"DRONETRACE_OUTPUT_DIR"`
	FullExportName    string            `yaml:"full_export_name"    env:"DRONETRACE_FULL_EXPORT_NAME"`
	SummaryExportName string            `yaml:"summary_export_name" env:"DRONETRACE_SUMMARY_EXPORT_NAME"`
	PreviewRows       int               `yaml:"preview_rows"        env:"DRONETRACE_PREVIEW_ROWS"`
	Headless          bool              `yaml:"headless"            env:"DRONETRACE_HEADLESS"`
	WatchInterval     time.Duration     `yaml:"watch_interval"      env:"DRONETRACE_WATCH_INTERVAL"`
	ObjectStore       ObjectStoreConfig `yaml:"s3"`
}

// EnvConfig holds configuration resolved from defaults, file and environment.
type EnvConfig struct {
	s settings
}

// New creates a new EnvConfig. If DRONETRACE_CONFIG_FILE is set the named
// YAML file is applied before environment variables.
func New() (*EnvConfig, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// Load is New with an explicit config file path; an empty path skips the file.
func Load(path string) (*EnvConfig, error) {
	s := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Fields without a matching variable keep their current value.
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &EnvConfig{s: s}, nil
}

func defaults() settings {
	return settings{
		Port:              DefaultPort,
		LogLevel:          DefaultLogLevel,
		DataDir:           defaultDataDir(),
		LogExt:            DefaultLogExt,
		ExtCaseSensitive:  true,
		FailurePolicy:     DefaultFailurePolicy,
		FullExportName:    DefaultFullExportName,
		SummaryExportName: DefaultSummaryExportName,
		PreviewRows:       DefaultPreviewRows,
		Headless:          true,
		WatchInterval:     DefaultWatchInterval,
		ObjectStore:       ObjectStoreConfig{Bucket: DefaultS3Bucket},
	}
}

func (s *settings) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	s.FailurePolicy = strings.ToLower(strings.TrimSpace(s.FailurePolicy))
	if s.FailurePolicy != FailureAbort && s.FailurePolicy != FailureSkip {
		return fmt.Errorf("invalid %s: %q (want %s or %s)", EnvFailurePolicy, s.FailurePolicy, FailureAbort, FailureSkip)
	}
	if s.PreviewRows < 0 {
		return fmt.Errorf("invalid %s: must not be negative", EnvPreviewRows)
	}
	if s.WatchInterval < 0 {
		return fmt.Errorf("invalid %s: must not be negative", EnvWatchInterval)
	}
	if s.LogExt == "" {
		return errors.New("invalid DRONETRACE_LOG_EXT: must not be empty")
	}
	if s.DataDir == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvDataDir)
	}
	if s.ObjectStore.Enabled() && s.ObjectStore.Bucket == "" {
		return errors.New("invalid DRONETRACE_S3_BUCKET: required when an endpoint is set")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.s.Port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.s.LogLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.s.DataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.s.DataDir, DBFilename)
}

// LogExt returns the file extension that marks a subtitle log.
func (c *EnvConfig) LogExt() string {
	return c.s.LogExt
}

func (c *EnvConfig) ExtCaseSensitive() bool {
	return c.s.ExtCaseSensitive
}

func (c *EnvConfig) Recursive() bool {
	return c.s.Recursive
}

// FailurePolicy returns "abort" or "skip".
func (c *EnvConfig) FailurePolicy() string {
	return c.s.FailurePolicy
}

// OutputDir returns the export directory. Empty means next to the inputs.
func (c *EnvConfig) OutputDir() string {
	return c.s.OutputDir
}

func (c *EnvConfig) FullExportName() string {
	return c.s.FullExportName
}

func (c *EnvConfig) SummaryExportName() string {
	return c.s.SummaryExportName
}

func (c *EnvConfig) PreviewRows() int {
	return c.s.PreviewRows
}

func (c *EnvConfig) Headless() bool {
	return c.s.Headless
}

// WatchInterval is how often registered folders are polled for new or
// changed logs. Zero disables watching.
func (c *EnvConfig) WatchInterval() time.Duration {
	return c.s.WatchInterval
}

func (c *EnvConfig) ObjectStore() ObjectStoreConfig {
	return c.s.ObjectStore
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
