package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"linkproxy/internal/domain/audit"
	"linkproxy/internal/domain/link"
	"linkproxy/internal/infrastructure/kafka"
	"linkproxy/internal/infrastructure/plaid"
	"linkproxy/internal/infrastructure/postgres"
	httphandlers "linkproxy/internal/interfaces/http"
	"linkproxy/internal/shared/config"
	"linkproxy/internal/shared/logger"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	// Optional audit sinks; nil when disabled.
	DB        *postgres.DB
	Publisher *kafka.Publisher

	Dispatcher  *audit.Dispatcher
	LinkHandler *httphandlers.LinkHandler
}

// NewDependencies initializes all application dependencies. Upstream metrics
// are registered with reg.
func NewDependencies(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Dependencies, error) {
	l := logger.For("main")
	deps := &Dependencies{}

	metrics, err := plaid.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	client := plaid.NewClient(plaid.Config{
		BaseURL: cfg.Plaid.BaseURL,
		Credentials: plaid.Credentials{
			ClientID: cfg.Plaid.ClientID,
			Secret:   cfg.Plaid.Secret,
		},
		Timeout: cfg.Plaid.Timeout,
		Metrics: metrics,
	})
	facade := link.NewFacade(client)

	var sinks []audit.Sink

	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.PoolConfig{})
		if err != nil {
			return nil, err
		}
		deps.DB = db

		repo := postgres.NewAuditRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			deps.Close()
			return nil, err
		}
		sinks = append(sinks, repo)
		l.Info().Str("host", cfg.Database.Host).Str("dbname", cfg.Database.DBName).Msg("Connected to audit database")
	}

	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Publisher = pub
		sinks = append(sinks, pub)
		l.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka audit publisher configured")
	}

	fingerprint, err := audit.NewFingerprinter(cfg.Audit.FingerprintKey)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("invalid audit fingerprint key: %w", err)
	}
	if cfg.Audit.FingerprintKey == "" {
		l.Warn().Msg("AUDIT_FINGERPRINT_KEY not set, item fingerprints are unkeyed")
	}

	deps.Dispatcher = audit.NewDispatcher(cfg.Audit.Workers, cfg.Audit.QueueSize, sinks...)
	deps.Dispatcher.Start()

	deps.LinkHandler = httphandlers.NewLinkHandler(facade, deps.Dispatcher, fingerprint)

	return deps, nil
}

// Close releases the audit sinks. Call after the dispatcher has drained.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Publisher != nil {
		if err := d.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka publisher: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
