package countdownrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	capi "github.com/mcdev12/cafeclock/go/clients/cafe_api_client"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully-qualified name of the countdown service
	ServiceName = "cafeclock.countdown.v1.CountdownService"

	GetCountdownProcedure = "/" + ServiceName + "/GetCountdown"
	EvaluateProcedure     = "/" + ServiceName + "/Evaluate"
)

// Input keys understood by Evaluate
const (
	FieldStartTime        = "start_time"
	FieldEstimatedEndTime = "estimated_end_time"
	FieldNow              = "now"
)

// FrameProvider looks up the live frame of a mounted session (the session tracker)
type FrameProvider interface {
	Frame(sessionID string) (countdown.Frame, bool)
}

// Service answers countdown queries over Connect
type Service struct {
	frames   FrameProvider
	clock    clockwork.Clock
	settings countdown.Settings
}

func NewService(frames FrameProvider, settings countdown.Settings) *Service {
	return &Service{
		frames:   frames,
		clock:    clockwork.NewRealClock(),
		settings: settings.Normalize(),
	}
}

// WithClock swaps the clock Evaluate falls back to when no now is given
func (s *Service) WithClock(clock clockwork.Clock) *Service {
	s.clock = clock
	return s
}

// GetCountdown returns the live frame of a mounted session
func (s *Service) GetCountdown(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	sessionID := req.Msg.GetValue()
	if sessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session id is required"))
	}

	frame, ok := s.frames.Frame(sessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %s is not tracked", sessionID))
	}

	out, err := frameToStruct(frame)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to encode frame")
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// Evaluate renders an arbitrary window once. Unparseable timestamps evaluate as expired.
func (s *Service) Evaluate(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()

	window := countdown.Window{
		Start: timeField(fields[FieldStartTime]),
		End:   timeField(fields[FieldEstimatedEndTime]),
	}
	// an absent or null now means the server clock; a malformed one expires like any other bad input
	now := s.clock.Now()
	if v, ok := fields[FieldNow]; ok && !isNull(v) {
		now = timeField(v)
	}

	frame := countdown.Render("", window, now, s.settings.LowTimeThreshold)
	out, err := frameToStruct(frame)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// NewHandler builds the HTTP handler serving every procedure of the service
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	getCountdown := connect.NewUnaryHandler(GetCountdownProcedure, svc.GetCountdown, opts...)
	evaluate := connect.NewUnaryHandler(EvaluateProcedure, svc.Evaluate, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetCountdownProcedure:
			getCountdown.ServeHTTP(w, r)
		case EvaluateProcedure:
			evaluate.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func isNull(v *structpb.Value) bool {
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return v.GetKind() == nil || null
}

func timeField(v *structpb.Value) time.Time {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return capi.ParseTimestamp(kind.StringValue)
	case *structpb.Value_NumberValue:
		return capi.FromEpoch(kind.NumberValue)
	default:
		return time.Time{}
	}
}

func frameToStruct(frame countdown.Frame) (*structpb.Struct, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return structpb.NewStruct(fields)
}
