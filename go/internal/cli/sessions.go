package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/spf13/cobra"
)

func (a *app) sessionsCommand() *cobra.Command {
	var cafeID string
	var all bool

	cmd := &cobra.Command{
		Use:   "sessions [--cafe <id>]",
		Short: "List a café's sessions with their countdowns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := a.client().ListSessions(cmd.Context(), cafeID)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			now := a.deps.Clock.Now()
			threshold := a.settings().LowTimeThreshold

			type row struct {
				DeviceID string          `json:"device_id"`
				Status   string          `json:"status"`
				Frame    countdown.Frame `json:"countdown"`
			}
			rows := make([]row, 0, len(sessions))
			for _, s := range sessions {
				if !all && !s.IsRunning() {
					continue
				}
				window := countdown.Window{Start: s.StartTime, End: s.EstimatedEndTime}
				rows = append(rows, row{
					DeviceID: s.DeviceID,
					Status:   string(s.Status),
					Frame:    countdown.Render(s.ID, window, now, threshold),
				})
			}

			if a.flags.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), rows)
			}

			if len(rows) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no running sessions")
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tDEVICE\tSTATUS\tREMAINING\tPROGRESS")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\n", r.Frame.SessionID, r.DeviceID, r.Status, r.Frame.Label, r.Frame.ProgressPercent)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&cafeID, "cafe", "", "café id (default: every café the token can see)")
	cmd.Flags().BoolVar(&all, "all", false, "include completed sessions")
	return cmd
}
