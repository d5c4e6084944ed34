package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/tally/internal/tracing"
	"github.com/harun/tally/pkg/telemetry"
	"github.com/spf13/cobra"
)

var (
	recordEvents []string
	recordAttrs  []string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one session with optional events",
	Long: `Open a session, tag each --event in order with the given --attr
attributes, and close the session. Records are queued on disk until the
next upload.`,
	Example: `  tally record --event Launched
  tally record --event Purchase --attr item=book --attr price=12`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringArrayVar(&recordEvents, "event", nil, "event name to tag (repeatable)")
	recordCmd.Flags().StringArrayVar(&recordAttrs, "attr", nil, "event attribute as key=value (repeatable)")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	attrs, err := parseAttrs(recordAttrs)
	if err != nil {
		return err
	}

	_, log, client, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Close()
	defer client.Shutdown(context.Background())

	ctx := tracing.WithTraceID(cmd.Context(), tracing.NewTraceID())
	out := cmd.OutOrStdout()

	if res := client.Open(ctx); !res.OK() {
		return fmt.Errorf("session not opened: %s", res)
	}
	for _, name := range recordEvents {
		res := client.TagEvent(ctx, name, attrs)
		fmt.Fprintf(out, "event %q: %s\n", name, res)
	}
	if res := client.Close(ctx); res.Status == telemetry.StatusFailed {
		return fmt.Errorf("session not closed: %s", res)
	}

	fmt.Fprintf(out, "Recorded session with %d event(s)\n", len(recordEvents))
	return nil
}

// parseAttrs turns key=value pairs into an attribute map. No pairs means
// no attributes.
func parseAttrs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q, want key=value", pair)
		}
		attrs[key] = value
	}
	return attrs, nil
}
