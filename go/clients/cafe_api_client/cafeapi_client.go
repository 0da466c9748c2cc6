package cafe_api_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/cafeclock/go/clients"
	"github.com/mcdev12/cafeclock/go/internal/models"
)

// ErrSessionNotFound is returned when the API has no session with the requested id
var ErrSessionNotFound = errors.New("session not found")

type CafeApiClient struct {
	*clients.BaseClient
}

// NewCafeApiClient creates a client for the café backend. token may be empty.
func NewCafeApiClient(baseURL, token string) *CafeApiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := &CafeApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(AcceptHeader, JSONContentType)
	if token != "" {
		client.SetHeader(AuthorizationHeader, "Bearer "+token)
	}

	return client
}

// sessionResponse is the wire shape of a session resource
type sessionResponse struct {
	ID               string     `json:"id"`
	CafeID           string     `json:"cafe_id"`
	DeviceID         string     `json:"device_id"`
	CustomerID       string     `json:"customer_id"`
	Status           string     `json:"status"`
	StartTime        Timestamp  `json:"start_time"`
	EstimatedEndTime Timestamp  `json:"estimated_end_time"`
	EndTime          *Timestamp `json:"end_time"`
}

func (r sessionResponse) toModel() models.Session {
	s := models.Session{
		ID:               r.ID,
		CafeID:           r.CafeID,
		DeviceID:         r.DeviceID,
		CustomerID:       r.CustomerID,
		Status:           models.SessionStatus(r.Status),
		StartTime:        r.StartTime.Time,
		EstimatedEndTime: r.EstimatedEndTime.Time,
	}
	if r.EndTime != nil && !r.EndTime.IsZero() {
		end := r.EndTime.Time
		s.EndTime = &end
	}
	return s
}

// ListSessions fetches the sessions collection, optionally scoped to one café
func (c *CafeApiClient) ListSessions(ctx context.Context, cafeID string) ([]models.Session, error) {
	endpoint := SessionsEndpoint
	if cafeID != "" {
		endpoint += "?" + url.Values{CafeIDParam: []string{cafeID}}.Encode()
	}

	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var resp []sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}

	sessions := make([]models.Session, 0, len(resp))
	for _, r := range resp {
		sessions = append(sessions, r.toModel())
	}
	return sessions, nil
}

// GetSession fetches a single session by id
func (c *CafeApiClient) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	body, err := c.Get(ctx, SessionsEndpoint+"/"+url.PathEscape(sessionID))
	if err != nil {
		var apiErr *clients.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return models.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return models.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return resp.toModel(), nil
}
