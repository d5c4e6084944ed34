package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

const (
	// DefaultEndpoint is the collector base URL; uploads go to
	// <endpoint>/<app_key>/uploads.
	DefaultEndpoint = "http://analytics.localytics.com/api/v2/applications"

	DefaultMaxStoredSessions = 10
	DefaultUploadTimeout     = 60 * time.Second
	DefaultSchedule          = "@every 15m"
)

// Config represents the tally configuration
type Config struct {
	// Application key issued by the collector
	AppKey string `json:"app_key" mapstructure:"app_key"`

	// Application version reported in blob headers; empty means build info
	AppVersion string `json:"app_version" mapstructure:"app_version"`

	// Storage directory; empty means the platform application-support dir
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Upload configuration
	Upload UploadConfig `json:"upload" mapstructure:"upload"`

	// Sessions configuration
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Metrics listener for `tally run`, empty disables it
	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// UploadConfig holds collector settings
type UploadConfig struct {
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Timeout  int    `json:"timeout" mapstructure:"timeout"` // seconds
	Coalesce bool   `json:"coalesce" mapstructure:"coalesce"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron expression for `tally run`
}

// SessionsConfig holds session storage limits
type SessionsConfig struct {
	MaxStored int `json:"max_stored" mapstructure:"max_stored"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Upload: UploadConfig{
			Endpoint: DefaultEndpoint,
			Timeout:  int(DefaultUploadTimeout / time.Second),
			Schedule: DefaultSchedule,
		},
		Sessions: SessionsConfig{
			MaxStored: DefaultMaxStoredSessions,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   10,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// UploadTimeout returns the upload deadline as a duration.
func (c *Config) UploadTimeout() time.Duration {
	if c.Upload.Timeout <= 0 {
		return DefaultUploadTimeout
	}
	return time.Duration(c.Upload.Timeout) * time.Second
}

// String returns a JSON representation of the config with the app key masked.
func (c *Config) String() string {
	masked := *c
	if masked.AppKey != "" {
		masked.AppKey = "****"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateAppKey(c.AppKey); err != nil {
		return err
	}
	if err := v.ValidateEndpoint(c.Upload.Endpoint); err != nil {
		return err
	}
	if c.Sessions.MaxStored <= 0 {
		return fmt.Errorf("sessions.max_stored must be positive, got %d", c.Sessions.MaxStored)
	}
	if c.Upload.Timeout < 0 {
		return fmt.Errorf("upload.timeout cannot be negative")
	}
	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// UploadURL returns the collector URL for this configuration's app key.
func (c *Config) UploadURL() (string, error) {
	return url.JoinPath(c.Upload.Endpoint, c.AppKey, "uploads")
}
