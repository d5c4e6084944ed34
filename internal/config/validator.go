package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAppKey checks that the app key is usable as a URL path segment.
func (v *Validator) ValidateAppKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("app key cannot be empty")
	}
	if strings.ContainsAny(key, "/?#\\ \t\n") {
		return fmt.Errorf("app key contains invalid characters")
	}
	return nil
}

// ValidateEndpoint checks that the collector endpoint is an absolute http(s) URL.
func (v *Validator) ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("upload endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid upload endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid upload endpoint scheme %q (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upload endpoint has no host")
	}
	return nil
}

// ValidateSchedule checks a cron expression accepted by `tally run`.
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	if level == "" {
		return nil
	}
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
}
