package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/countdownrpc"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8082"

func (a *app) getCommand() *cobra.Command {
	var sessionID, serverURL string

	cmd := &cobra.Command{
		Use:   "get --session <id>",
		Short: "Read the live countdown of a session from a cafeclock server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}

			client := countdownrpc.NewClient(a.deps.HTTPClient, strings.TrimRight(serverURL, "/"))
			fields, err := client.GetCountdown(cmd.Context(), sessionID)
			if err != nil {
				if connect.CodeOf(err) == connect.CodeNotFound {
					return fmt.Errorf("session %s is not tracked by %s", sessionID, serverURL)
				}
				return fmt.Errorf("get countdown: %w", err)
			}
			return a.printRemoteFrame(cmd, fields)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&serverURL, "server", envOr("CAFECLOCK_URL", defaultServerURL), "cafeclock server URL")
	return cmd
}

// printRemoteFrame renders a frame that arrived as a generic struct
func (a *app) printRemoteFrame(cmd *cobra.Command, fields map[string]interface{}) error {
	if a.flags.jsonOutput {
		return outputJSON(cmd.OutOrStdout(), fields)
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	var frame countdown.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), frameLine(frame))
	return err
}
