// Command gateway runs the multi-tenant ad sales gateway: the A2A
// JSON-RPC facade, agent card, admin sync endpoints and Prometheus
// metrics, backed by Postgres, Redis and ClickHouse.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/adapters/gam"
	"github.com/openadsales/gateway/internal/adapters/mock"
	"github.com/openadsales/gateway/internal/analytics"
	"github.com/openadsales/gateway/internal/api"
	"github.com/openadsales/gateway/internal/audit"
	"github.com/openadsales/gateway/internal/auth"
	"github.com/openadsales/gateway/internal/catalog"
	"github.com/openadsales/gateway/internal/config"
	"github.com/openadsales/gateway/internal/conversation"
	"github.com/openadsales/gateway/internal/db"
	"github.com/openadsales/gateway/internal/executor"
	"github.com/openadsales/gateway/internal/notify"
	"github.com/openadsales/gateway/internal/observability"
)

const overdueScanInterval = 10 * time.Minute

func main() {
	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer shutdown()
		}
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.DB.Close()

	redisClient, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, conversation cache disabled", zap.Error(err))
		redisClient = nil
	}
	var cache *db.ConversationCache
	var syncLock *db.SyncLock
	if redisClient != nil {
		defer redisClient.Close()
		cache = db.NewConversationCache(redisClient, cfg.ContextCacheTTL)
		syncLock = db.NewSyncLock(redisClient)
	}

	var delivery analytics.Service
	if svc, err := analytics.NewClickHouseService(cfg.ClickHouseDSN, logger); err != nil {
		logger.Warn("clickhouse unavailable, delivery reports will be empty", zap.Error(err))
		delivery = analytics.NewMockService()
	} else {
		delivery = svc
	}
	defer delivery.Close()

	var geoDB *geoip2.Reader
	if cfg.GeoIPDB != "" {
		if geoDB, err = geoip2.Open(cfg.GeoIPDB); err != nil {
			logger.Warn("geoip database unavailable", zap.Error(err))
			geoDB = nil
		} else {
			defer geoDB.Close()
		}
	}

	metrics := observability.NewPrometheusRegistry()

	registry := adapters.NewRegistry(adapters.Deps{
		Store:           pg,
		Metrics:         metrics,
		Logger:          logger,
		GAMClientID:     cfg.GAMOAuthClientID,
		GAMClientSecret: cfg.GAMOAuthClientSecret,
		DryRun:          cfg.DryRun,
	})
	registry.Register("gam", gam.Factory(nil))
	registry.Register("mock", mock.Factory())

	exec := executor.New(executor.Config{
		Store:    pg,
		Catalog:  catalog.NewDatabaseProvider(pg),
		Convos:   conversation.NewManager(pg, cache, metrics, logger),
		Registry: registry,
		Delivery: delivery,
		Audit:    audit.NewLogger(pg, metrics, logger),
		Notifier: notify.NewWebhookNotifier(metrics, logger, cfg.SlackWebhookURL),
		Metrics:  metrics,
		Logger:   logger,
	})

	server := api.NewServer(api.Options{
		Cfg:      &cfg,
		Store:    pg,
		Postgres: pg,
		Auth:     auth.NewRegistry(pg, logger),
		Executor: exec,
		Registry: registry,
		SyncLock: syncLock,
		Metrics:  metrics,
		GeoIP:    geoDB,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(server.Router, "gateway"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		ticker := time.NewTicker(overdueScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := exec.ScanOverdueTasks(ctx); err != nil {
					logger.Warn("overdue task scan failed", zap.Error(err))
				}
			}
		}
	}()

	go func() {
		logger.Info("gateway listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
}
