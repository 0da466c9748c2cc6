package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	capi "github.com/mcdev12/cafeclock/go/clients/cafe_api_client"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultWatchRefresh = 30 * time.Second

func (a *app) watchCommand() *cobra.Command {
	var sessionID string
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "watch --session <id>",
		Short: "Follow a live session countdown until it expires",
		Long: `Mount a countdown for one session and print a frame every tick.

The session is re-fetched periodically so extensions show up without restarting.
The command exits once the countdown expires or the session is closed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			if refresh <= 0 {
				refresh = defaultWatchRefresh
			}
			return a.watch(cmd, sessionID, refresh)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().DurationVar(&refresh, "refresh", defaultWatchRefresh, "how often to re-fetch the session")
	return cmd
}

func (a *app) watch(cmd *cobra.Command, sessionID string, refresh time.Duration) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := a.client()
	session, err := client.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, capi.ErrSessionNotFound) {
			return fmt.Errorf("session %s not found", sessionID)
		}
		return fmt.Errorf("get session: %w", err)
	}
	if !session.IsRunning() {
		return a.printEnded(cmd, session)
	}

	frames := make(chan countdown.Frame, 8)
	timer := countdown.NewTimer(session.ID, windowOf(session), a.deps.Clock, a.settings(), func(f countdown.Frame) {
		select {
		case frames <- f:
		case <-ctx.Done():
		}
	})
	timer.Start(ctx)
	defer func() {
		// unblock a sink waiting on frames before waiting for the tick goroutine
		cancel()
		timer.Stop()
	}()

	refreshTicker := a.deps.Clock.NewTicker(refresh)
	defer refreshTicker.Stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame := <-frames:
			if a.flags.jsonOutput {
				if err := enc.Encode(frame); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), frameLine(frame))
			}
			if frame.State == countdown.StateExpired {
				return nil
			}

		case <-refreshTicker.Chan():
			latest, err := client.GetSession(ctx, sessionID)
			if err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("refresh failed, keeping previous window")
				continue
			}
			if !latest.IsRunning() {
				return a.printEnded(cmd, latest)
			}
			timer.Replace(windowOf(latest))
		}
	}
}

func (a *app) printEnded(cmd *cobra.Command, session models.Session) error {
	if a.flags.jsonOutput {
		return outputJSON(cmd.OutOrStdout(), session)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "session %s is %s\n", session.ID, session.Status)
	return err
}

func windowOf(s models.Session) countdown.Window {
	return countdown.Window{Start: s.StartTime, End: s.EstimatedEndTime}
}
