package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harun/tally/pkg/telemetry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and scheduler status",
	Long: `Show the install identity, the next blob sequence number, the number
of queued session and staging files, and whether "tally run" is active.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusReport is printed as YAML.
type statusReport struct {
	Queue     telemetry.Report `yaml:"queue"`
	Scheduler string           `yaml:"scheduler"`
	PID       int              `yaml:"pid,omitempty"`
	Uptime    string           `yaml:"uptime,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, log, client, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Close()
	defer client.Shutdown(context.Background())

	queue, err := client.Status()
	if err != nil {
		return fmt.Errorf("failed to read queue status: %w", err)
	}

	report := statusReport{Queue: queue, Scheduler: "stopped"}
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		report.Scheduler = "running"
		report.PID, _ = readPID(pidFile)
		if info, err := os.Stat(pidFile); err == nil {
			report.Uptime = formatDuration(time.Since(info.ModTime()))
		}
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return enc.Close()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
