package cli

import (
	"fmt"

	"github.com/harun/tally/internal/config"
	"github.com/spf13/cobra"
)

var (
	configureAppKey     string
	configureEndpoint   string
	configureDataDir    string
	configureSchedule   string
	configureAppVersion string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the configuration file",
	Long: `Update the configuration file with the given flags, validate the
result, and save it. Flags that are not given keep their current values.`,
	Example: `  tally configure --app-key 0123456789abcdef-0123456789abcdef`,
	RunE:    runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureAppKey, "app-key", "", "application key issued by the collector")
	configureCmd.Flags().StringVar(&configureEndpoint, "endpoint", "", "collector base URL")
	configureCmd.Flags().StringVar(&configureDataDir, "data-dir", "", "storage directory for queued files")
	configureCmd.Flags().StringVar(&configureSchedule, "schedule", "", "cron schedule for tally run")
	configureCmd.Flags().StringVar(&configureAppVersion, "app-version", "", "application version reported in uploads")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("app-key") {
		cfg.AppKey = configureAppKey
	}
	if flags.Changed("endpoint") {
		cfg.Upload.Endpoint = configureEndpoint
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = configureDataDir
	}
	if flags.Changed("app-version") {
		cfg.AppVersion = configureAppVersion
	}
	if flags.Changed("schedule") {
		if err := config.NewValidator().ValidateSchedule(configureSchedule); err != nil {
			return err
		}
		cfg.Upload.Schedule = configureSchedule
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Save configuration
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "Record a session with: tally record --event Launched")
	return nil
}
