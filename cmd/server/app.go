package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	analysisservice "taxlens/internal/analysis/service"
	"taxlens/internal/authz"
	"taxlens/internal/events"
	"taxlens/internal/fhe/local"
	jurisdictionservice "taxlens/internal/jurisdiction/service"
	jurisdictionstore "taxlens/internal/jurisdiction/store"
	ledgerstore "taxlens/internal/ledger/store"
	"taxlens/internal/platform/config"
	"taxlens/internal/platform/kafka"
	"taxlens/internal/platform/metrics"
	"taxlens/internal/platform/postgres"
	redisclient "taxlens/internal/platform/redis"
	profileservice "taxlens/internal/profile/service"
	profilestore "taxlens/internal/profile/store"
	"taxlens/internal/recommend"
	httptransport "taxlens/internal/transport/http"
	"taxlens/pkg/platform/circuit"
	"taxlens/pkg/platform/tx"
)

type app struct {
	Handler http.Handler
	Engine  *local.Engine
	Events  *events.Log
	Kafka   *events.KafkaPublisher

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

type stores struct {
	profiles profileservice.Store
	shadows  analysisservice.ProfileStore
	counters jurisdictionservice.CounterStore
	ledger   ledgerStore
	runner   tx.Runner
}

type ledgerStore interface {
	jurisdictionservice.Ledger
	analysisservice.Ledger
}

// buildApp assembles every service against the configured backends. All
// services share one tx.Runner; with in-memory stores that runner is the
// only thing making a unit of work atomic.
func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var health []func(context.Context) error
	st, err := a.openStores(ctx, cfg, &health)
	if err != nil {
		return nil, err
	}

	seed, err := cfg.SigningSeed()
	if err != nil {
		return nil, err
	}
	a.Engine, err = local.New(seed,
		local.WithLogger(log),
		local.WithDeliveryDelay(cfg.Oracle.CallbackDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("start oracle: %w", err)
	}

	a.Events = events.NewLog(cfg.Events.LogCapacity)
	publisher := events.Fanout{a.Events}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := a.openKafka(ctx, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.Kafka = events.NewKafkaPublisher(producer,
			events.WithKafkaLogger(log),
			events.WithQueueSize(cfg.Kafka.QueueSize),
			events.WithBreaker(circuit.New("kafka",
				circuit.WithFailureThreshold(cfg.Kafka.BreakerThreshold),
				circuit.WithCooldown(cfg.Kafka.BreakerCooldown),
			)),
		)
		publisher = append(publisher, a.Kafka)
	}

	aggregator, err := jurisdictionservice.New(st.counters, st.ledger, a.Engine, a.Engine,
		jurisdictionservice.WithLogger(log),
		jurisdictionservice.WithPublisher(publisher),
		jurisdictionservice.WithMetrics(m),
		jurisdictionservice.WithTxRunner(st.runner),
	)
	if err != nil {
		return nil, err
	}
	profiles, err := profileservice.New(st.profiles, a.Engine,
		profileservice.WithLogger(log),
		profileservice.WithPublisher(publisher),
		profileservice.WithMetrics(m),
		profileservice.WithTxRunner(st.runner),
	)
	if err != nil {
		return nil, err
	}
	var authorizer authz.Authorizer = authz.AllowAll{}
	if cfg.Auth.RequireAdvisor {
		authorizer = authz.NewRoleAuthorizer(cfg.Auth.AdvisorRole)
	}
	analysis, err := analysisservice.New(st.shadows, st.ledger, aggregator, a.Engine,
		analysisservice.WithLogger(log),
		analysisservice.WithPublisher(publisher),
		analysisservice.WithMetrics(m),
		analysisservice.WithTxRunner(st.runner),
		analysisservice.WithAuthorizer(authorizer),
	)
	if err != nil {
		return nil, err
	}
	a.Engine.SetSink(analysisservice.NewRouter(analysis, aggregator, log))

	registrars := []httptransport.Registrar{
		httptransport.NewProfileHandler(profiles, analysis, recommend.AcceptAll{}, log),
		httptransport.NewJurisdictionHandler(aggregator, log),
		httptransport.NewCallbackHandler(analysis, aggregator, log),
		httptransport.NewEventHandler(a.Events),
	}
	if !cfg.IsProduction() && cfg.Server.AdminToken != "" {
		registrars = append(registrars, httptransport.NewDevHandler(a.Engine, cfg.Server.AdminToken, log))
	}
	a.Handler = httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Metrics:        m,
		Gatherer:       reg,
		Tokens:         authz.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer),
		RequestTimeout: cfg.Server.RequestTimeout,
		Health: func(ctx context.Context) error {
			for _, check := range health {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}, registrars...)
	return a, nil
}

func (a *app) openStores(ctx context.Context, cfg config.Config, health *[]func(context.Context) error) (*stores, error) {
	st := &stores{}
	var db *sql.DB
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		if err := postgres.Migrate(ctx, cfg.Database.URL); err != nil {
			return nil, err
		}
		var err error
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		*health = append(*health, db.PingContext)
		ps := profilestore.NewPostgres(db)
		st.profiles, st.shadows = ps, ps
		st.counters = jurisdictionstore.NewPostgres(db)
		st.runner = tx.NewSQLRunner(db)
	default:
		ms := profilestore.NewInMemory()
		st.profiles, st.shadows = ms, ms
		st.counters = jurisdictionstore.NewInMemory()
		st.runner = tx.NewLocalRunner()
	}

	switch cfg.LedgerBackend() {
	case config.BackendPostgres:
		st.ledger = ledgerstore.NewPostgres(db)
	case config.BackendRedis:
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		*health = append(*health, client.Health)
		st.ledger = ledgerstore.NewRedis(client.Client, ledgerstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
	default:
		st.ledger = ledgerstore.NewInMemory()
	}
	return st, nil
}

func (a *app) openKafka(ctx context.Context, cfg config.KafkaConfig) (*kgo.Client, error) {
	kcfg := kafka.Config{
		Brokers:           cfg.Brokers,
		Topic:             cfg.Topic,
		ClientID:          cfg.ClientID,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		DialTimeout:       cfg.DialTimeout,
	}
	client, err := kafka.NewClient(ctx, kcfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		client.Close()
		return nil
	})
	if err := kafka.EnsureTopic(ctx, client, kcfg); err != nil {
		return nil, err
	}
	return client, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return postgres.Open(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}
