package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"herald/internal/admin"
	articlehandler "herald/internal/content/article/handler"
	articleservice "herald/internal/content/article/service"
	articlestore "herald/internal/content/article/store"
	"herald/internal/platform/config"
	platformmetrics "herald/internal/platform/metrics"
	"herald/internal/platform/postgres"
	platformredis "herald/internal/platform/redis"
	"herald/internal/publication/cachebackend"
	pubhandler "herald/internal/publication/handler"
	"herald/internal/publication/invalidation"
	"herald/internal/publication/listing"
	pubmetrics "herald/internal/publication/metrics"
	"herald/internal/publication/registry"
	pubservice "herald/internal/publication/service"
	pubstore "herald/internal/publication/store"
	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/audit/publisher"
	auditmemory "herald/pkg/platform/audit/store/memory"
	auditpostgres "herald/pkg/platform/audit/store/postgres"
	"herald/pkg/platform/circuit"
	"herald/pkg/platform/httputil"
	"herald/pkg/platform/middleware/metadata"
	request "herald/pkg/platform/middleware/request"
	"herald/pkg/platform/middleware/requesttime"
)

type stores struct {
	kind         string
	db           *sql.DB
	publications pubservice.PublicationStore
	articles     articleservice.Store
	audit        audit.Store
	tx           articleservice.Transactor
}

type application struct {
	router    http.Handler
	storeKind string
	closers   []func() error
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	app := &application{}

	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	app.storeKind = st.kind
	if st.db != nil {
		app.closers = append(app.closers, st.db.Close)
	}

	backend, redisClient, err := openCache(ctx, cfg, log)
	if err != nil {
		app.close()
		return nil, err
	}
	if redisClient != nil {
		app.closers = append(app.closers, redisClient.Close)
	}

	reg := registry.New()
	registry.MustRegister(reg, articleservice.Kind(st.articles))

	m := pubmetrics.New()
	invalidationCfg := cfg.Cache.Invalidation().WithKeys(listing.Keys(reg.Tags())...)
	hook := invalidation.New(backend, invalidationCfg, reg,
		invalidation.WithLogger(log),
		invalidation.WithMetrics(m),
	)

	auditor := publisher.NewPublisher(st.audit, publisher.WithLogger(log))
	pubOpts := []pubservice.Option{
		pubservice.WithLogger(log),
		pubservice.WithMetrics(m),
		pubservice.WithAuditPublisher(auditor),
	}
	if st.db != nil {
		pubOpts = append(pubOpts, pubservice.WithTransactor(postgres.NewTransactor(st.db)))
	}
	publications := pubservice.New(st.publications, reg, hook, pubOpts...)
	list := listing.New(backend, publications, cfg.Cache.ListingTTL,
		listing.WithLogger(log),
		listing.WithMetrics(m),
	)
	articles := articleservice.New(st.articles, publications, st.tx,
		articleservice.WithLogger(log),
		articleservice.WithAuditPublisher(auditor),
	)

	httpMetrics := platformmetrics.New(prometheus.DefaultRegisterer)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)

	r.Get("/health", healthHandler(st.db, redisClient))
	r.Handle("/metrics", promhttp.Handler())

	pubhandler.New(publications, list, log, cfg.Server.AdminToken).Register(r)
	articlehandler.New(articles, list, log, cfg.Server.AdminToken).Register(r)
	admin.New(auditor, log, cfg.Server.AdminToken).Register(r)

	if cfg.Server.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is empty; admin routes reject every request")
	}

	app.router = r
	return app, nil
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*stores, error) {
	if cfg.URL == "" {
		log.Info("no database configured, using in-memory stores")
		return &stores{
			kind:         "memory",
			publications: pubstore.NewInMemory(),
			articles:     articlestore.NewInMemory(),
			audit:        auditmemory.NewInMemoryStore(),
			tx:           articleservice.NewLockingTx(),
		}, nil
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &stores{
		kind:         "postgres",
		db:           db,
		publications: pubstore.NewPostgres(db),
		articles:     articlestore.NewPostgres(db),
		audit:        auditpostgres.New(db),
		tx:           postgres.NewTransactor(db),
	}, nil
}

func openCache(ctx context.Context, cfg config.Config, log *slog.Logger) (cachebackend.Backend, *platformredis.Client, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("using redis cache backend")
		breaker := circuit.New("redis")
		return cachebackend.NewGuarded(cachebackend.NewRedis(client.Client), breaker, log), client, nil
	default:
		local, err := cachebackend.NewLocal(cfg.Cache.LocalSize)
		if err != nil {
			return nil, nil, err
		}
		return local, nil, nil
	}
}

func healthHandler(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["status"] = "degraded"
				status["database"] = "unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				// The cache is optional for reads; report it but stay up.
				status["cache"] = "unreachable"
			}
		}
		httputil.WriteJSON(w, code, status)
	}
}
