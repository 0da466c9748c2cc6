package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	capi "github.com/mcdev12/cafeclock/go/clients/cafe_api_client"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/spf13/cobra"
)

// SessionClient is the part of the café API the CLI talks to
type SessionClient interface {
	ListSessions(ctx context.Context, cafeID string) ([]models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
}

// Deps are the collaborators a command tree is built with
type Deps struct {
	Clock      clockwork.Clock
	NewClient  func(baseURL, token string) SessionClient
	HTTPClient connect.HTTPClient
}

// DefaultDeps talks to the real API with the real clock
func DefaultDeps() Deps {
	return Deps{
		Clock: clockwork.NewRealClock(),
		NewClient: func(baseURL, token string) SessionClient {
			return capi.NewCafeApiClient(baseURL, token)
		},
		HTTPClient: http.DefaultClient,
	}
}

type globalFlags struct {
	jsonOutput bool
	apiURL     string
	token      string
	threshold  float64
}

type app struct {
	deps  Deps
	flags globalFlags
}

// NewRootCommand builds the countdownctl command tree
func NewRootCommand(deps Deps) *cobra.Command {
	a := &app{deps: deps}

	rootCmd := &cobra.Command{
		Use:   "countdownctl",
		Short: "countdownctl - inspect café session countdowns",
		Long: `countdownctl evaluates session countdowns the same way café displays do.
It can render a single window, follow a live session from the café API,
list a café's running sessions or query a running cafeclock server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&a.flags.jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&a.flags.apiURL, "api-url", envOr("CAFE_API_URL", capi.DefaultBaseURL), "café API base URL")
	rootCmd.PersistentFlags().StringVar(&a.flags.token, "token", os.Getenv("CAFE_API_TOKEN"), "café API bearer token")
	rootCmd.PersistentFlags().Float64Var(&a.flags.threshold, "low-time-threshold", countdown.DefaultLowTimeThreshold, "remaining share at which low time is flagged")

	rootCmd.AddCommand(
		a.tickCommand(),
		a.watchCommand(),
		a.sessionsCommand(),
		a.getCommand(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand(DefaultDeps()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func (a *app) client() SessionClient {
	return a.deps.NewClient(a.flags.apiURL, a.flags.token)
}

func (a *app) settings() countdown.Settings {
	s := countdown.DefaultSettings()
	s.LowTimeThreshold = a.flags.threshold
	return s.Normalize()
}

// outputJSON prints v as indented JSON
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// frameLine is the one-line text rendering of a frame
func frameLine(frame countdown.Frame) string {
	marker := ""
	switch {
	case frame.Expired:
		marker = " [expired]"
	case frame.LowTime:
		marker = " [low time]"
	}
	return fmt.Sprintf("%-16s %5.1f%%%s", frame.Label, frame.ProgressPercent, marker)
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("--%s is required", name)
	}
	return capi.ParseTimestamp(value), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
