package cli

import (
	"fmt"
	"strings"

	capi "github.com/mcdev12/cafeclock/go/clients/cafe_api_client"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/countdownrpc"
	"github.com/spf13/cobra"
)

func (a *app) tickCommand() *cobra.Command {
	var start, end, now, serverURL string

	cmd := &cobra.Command{
		Use:   "tick --start <time> --end <time> [--now <time>]",
		Short: "Evaluate one countdown window",
		Long: `Evaluate a session window once and print what a display would show.

Times may be ISO-8601 strings or epoch numbers (seconds or milliseconds).
Unparseable times evaluate as an expired session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL != "" {
				return a.remoteTick(cmd, serverURL, start, end, now)
			}

			startTime, err := parseTimeFlag("start", start)
			if err != nil {
				return err
			}
			endTime, err := parseTimeFlag("end", end)
			if err != nil {
				return err
			}
			at := a.deps.Clock.Now()
			if now != "" {
				at = capi.ParseTimestamp(now)
			}

			frame := countdown.Render("", countdown.Window{Start: startTime, End: endTime}, at, a.settings().LowTimeThreshold)
			if a.flags.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), frame)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), frameLine(frame))
			return err
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "session start time")
	cmd.Flags().StringVar(&end, "end", "", "estimated end time")
	cmd.Flags().StringVar(&now, "now", "", "evaluation time (default: current time)")
	cmd.Flags().StringVar(&serverURL, "server", "", "evaluate on a cafeclock server instead of locally")
	return cmd
}

// remoteTick asks a server to evaluate the window, using its clock when now is empty
func (a *app) remoteTick(cmd *cobra.Command, serverURL, start, end, now string) error {
	if start == "" || end == "" {
		return fmt.Errorf("--start and --end are required")
	}
	client := countdownrpc.NewClient(a.deps.HTTPClient, strings.TrimRight(serverURL, "/"))
	fields, err := client.Evaluate(cmd.Context(), start, end, now)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return a.printRemoteFrame(cmd, fields)
}
