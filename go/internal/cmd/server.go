package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/cafeclock/go/internal/config"
	"github.com/mcdev12/cafeclock/go/internal/countdownrpc"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services)

	// Add health check endpoint
	setupHealthCheck(mux, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register countdown service
	countdownServicePath, countdownServiceHandler := countdownrpc.NewHandler(services.Countdown)
	mux.Handle(countdownServicePath, countdownServiceHandler)

	// Register gateway WebSocket and state routes
	services.Gateway.RegisterRoutes(mux)
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := services.Gateway.GetStats(r.Context())
		stats["tracked_sessions"] = services.Tracker.Len()
		stats["poller_enabled"] = services.Poller != nil
		stats["outbox_enabled"] = services.Outbox != nil

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Error().Err(err).Msg("failed to encode service info")
		}
	})

	if services.OutboxHealth != nil {
		mux.Handle("/health/outbox", services.OutboxHealth)
	}
}
