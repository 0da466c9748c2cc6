package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	capi "github.com/mcdev12/cafeclock/go/clients/cafe_api_client"
	"github.com/mcdev12/cafeclock/go/internal/config"
	"github.com/mcdev12/cafeclock/go/internal/countdownrpc"
	"github.com/mcdev12/cafeclock/go/internal/dbconfig"
	"github.com/mcdev12/cafeclock/go/internal/gateway"
	"github.com/mcdev12/cafeclock/go/internal/outbox"
	"github.com/mcdev12/cafeclock/go/internal/poller"
	"github.com/mcdev12/cafeclock/go/internal/tracker"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Tracker      *tracker.Tracker
	Gateway      *gateway.Service
	Countdown    *countdownrpc.Service
	Poller       *poller.Poller
	Outbox       *outbox.Listener
	OutboxHealth *outbox.HealthChecker

	publisher *outbox.JetStreamPublisher
	database  *sql.DB
	pool      *pgxpool.Pool
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Stores → Tracker → Gateway / RPC / Poller → Outbox

	services := &Services{}
	var trackerOpts []tracker.Option

	dbConfig := dbconfig.NewConfigFromEnv()

	if cfg.Snapshot.Enabled {
		store, pool, err := setupSnapshotStore(ctx, dbConfig)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		services.pool = pool
		trackerOpts = append(trackerOpts, tracker.WithStore(store))
	}

	var outboxApp *outbox.App
	if cfg.Outbox.Enabled {
		database, err := setupDatabase(ctx, dbConfig)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("outbox database: %w", err)
		}
		services.database = database

		repo := outbox.NewRepository(database)
		outboxApp = outbox.NewApp(repo)
		trackerOpts = append(trackerOpts, tracker.WithRecorder(outboxApp))

		jsConfig := outbox.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATS.URL
		jsConfig.StreamName = cfg.NATS.EventStream
		jsConfig.SubjectPrefix = cfg.NATS.EventSubjectPrefix

		publisher, err := outbox.NewJetStreamPublisher(jsConfig)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("outbox publisher: %w", err)
		}
		services.publisher = publisher

		listenerConfig := outbox.DefaultListenerConfig()
		listenerConfig.DatabaseURL = dbConfig.DSN()
		listenerConfig.FallbackInterval = cfg.Outbox.FallbackInterval
		listenerConfig.MaxRetries = cfg.Outbox.MaxRetries
		listenerConfig.BatchSize = cfg.Outbox.BatchSize

		stats := outbox.NewStatsCollector()
		listener, err := outbox.NewListener(repo, outbox.NewMetricPublisher(publisher, stats), listenerConfig)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("outbox listener: %w", err)
		}
		services.Outbox = listener.WithMetrics(stats)
		services.OutboxHealth = outbox.NewHealthChecker(repo, listener, publisher.Connected, 2*time.Minute).WithStats(stats)
	}

	// The connection manager exists before the tracker because every frame is published into it
	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	services.Tracker = tracker.New(cfg.Countdown, connections, trackerOpts...)
	if outboxApp != nil {
		outboxApp.SetSessionLookup(services.Tracker.Session)
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConsumeEvents = cfg.NATS.ConsumeEvents
	gatewayConfig.JetStreamConfig.URL = cfg.NATS.URL
	gatewayConfig.JetStreamConfig.StreamName = cfg.NATS.SessionStream
	gatewayConfig.JetStreamConfig.SubjectFilter = cfg.NATS.SessionSubject
	gatewayConfig.JetStreamConfig.ConsumerName = cfg.NATS.ConsumerName

	gatewayService, err := gateway.NewService(gatewayConfig, connections, services.Tracker)
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("gateway: %w", err)
	}
	services.Gateway = gatewayService

	services.Countdown = countdownrpc.NewService(services.Tracker, cfg.Countdown)

	if cfg.Poller.Enabled {
		client := capi.NewCafeApiClient(cfg.API.BaseURL, cfg.API.Token)
		client.SetTimeout(cfg.API.Timeout)
		services.Poller = poller.New(client, services.Tracker, poller.Config{
			Interval: cfg.Poller.Interval,
			CafeIDs:  cfg.Poller.CafeIDs,
		})
	}

	return services, nil
}

// Start launches every background component; they all stop when ctx is cancelled
func (s *Services) Start(ctx context.Context) {
	if restored, err := s.Tracker.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("failed to restore countdowns")
	} else if restored > 0 {
		log.Info().Int("sessions", restored).Msg("countdowns resumed before first poll")
	}

	go func() {
		if err := s.Tracker.Run(ctx); err != nil {
			log.Error().Err(err).Msg("session tracker failed")
		}
	}()

	go func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	if s.Poller != nil {
		go func() {
			if err := s.Poller.Run(ctx); err != nil {
				log.Error().Err(err).Msg("session poller failed")
			}
		}()
	}

	if s.Outbox != nil {
		go func() {
			if err := s.Outbox.Start(ctx); err != nil {
				log.Error().Err(err).Msg("outbox listener failed")
			}
		}()
	}
}

// Close releases connections opened by setupServices
func (s *Services) Close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close outbox publisher")
		}
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
