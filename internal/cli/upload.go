package cli

import (
	"context"
	"fmt"

	"github.com/harun/tally/internal/tracing"
	"github.com/harun/tally/pkg/telemetry"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload queued sessions now",
	Long: `Stage every queued session file and upload all staging files to the
collector, waiting for the result. Files are kept when the upload fails.`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	_, log, client, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Close()
	defer client.Shutdown(context.Background())

	ctx := tracing.WithTraceID(cmd.Context(), tracing.NewTraceID())
	res := client.Flush(ctx)
	if res.Status == telemetry.StatusFailed {
		return fmt.Errorf("upload failed: %w", res.Err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Upload %s\n", res)
	return nil
}
