package cafe_api_client

const (
	// Base URL
	DefaultBaseURL = "http://localhost:8001"

	// API Endpoints
	SessionsEndpoint = "/api/sessions"

	// Query parameters
	CafeIDParam = "cafe_id"

	// Headers
	AuthorizationHeader = "Authorization"
	AcceptHeader        = "Accept"
	JSONContentType     = "application/json"
)
