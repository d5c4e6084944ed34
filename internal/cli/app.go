package cli

import (
	"fmt"

	"github.com/harun/tally/internal/config"
	"github.com/harun/tally/internal/logger"
	"github.com/harun/tally/pkg/telemetry"
)

// loadConfig reads the config file and environment and applies the
// --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// setupLogger installs the global logger for a command. The app key is
// always redacted from log output.
func setupLogger(cfg *config.Config) (*logger.Logger, error) {
	var secrets []string
	if cfg.AppKey != "" {
		secrets = append(secrets, cfg.AppKey)
	}
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		Secrets:   secrets,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
}

// newClient builds the telemetry client described by cfg.
func newClient(cfg *config.Config) (*telemetry.Client, error) {
	url, err := cfg.UploadURL()
	if err != nil {
		return nil, fmt.Errorf("invalid upload endpoint: %w", err)
	}
	return telemetry.New(telemetry.Options{
		AppKey:            cfg.AppKey,
		AppVersion:        cfg.AppVersion,
		DataDir:           cfg.DataDir,
		URL:               url,
		UploadTimeout:     cfg.UploadTimeout(),
		MaxStoredSessions: cfg.Sessions.MaxStored,
		CoalesceUploads:   cfg.Upload.Coalesce,
	})
}

// bootstrap loads the config, installs the logger and builds the client.
// The caller closes the returned logger.
func bootstrap() (*config.Config, *logger.Logger, *telemetry.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	client, err := newClient(cfg)
	if err != nil {
		log.Close()
		return nil, nil, nil, err
	}
	return cfg, log, client, nil
}
