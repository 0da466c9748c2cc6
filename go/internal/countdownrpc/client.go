package countdownrpc

import (
	"context"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote countdown service
type Client struct {
	getCountdown *connect.Client[wrapperspb.StringValue, structpb.Struct]
	evaluate     *connect.Client[structpb.Struct, structpb.Struct]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		getCountdown: connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+GetCountdownProcedure, opts...),
		evaluate:     connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+EvaluateProcedure, opts...),
	}
}

// GetCountdown fetches the live frame of a session as a map
func (c *Client) GetCountdown(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	resp, err := c.getCountdown.CallUnary(ctx, connect.NewRequest(wrapperspb.String(sessionID)))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// Evaluate renders a window remotely; now may be empty to use the server clock
func (c *Client) Evaluate(ctx context.Context, start, end, now string) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		FieldStartTime:        start,
		FieldEstimatedEndTime: end,
	}
	if now != "" {
		fields[FieldNow] = now
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	resp, err := c.evaluate.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}
