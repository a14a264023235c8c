package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/audit"
	"github.com/Skotchmaster/farm_dashboard/internal/backend"
	"github.com/Skotchmaster/farm_dashboard/internal/config"
	"github.com/Skotchmaster/farm_dashboard/internal/db"
	"github.com/Skotchmaster/farm_dashboard/internal/es"
	"github.com/Skotchmaster/farm_dashboard/internal/events"
	"github.com/Skotchmaster/farm_dashboard/internal/httpserver"
	"github.com/Skotchmaster/farm_dashboard/internal/logging"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/csrf"
	"github.com/Skotchmaster/farm_dashboard/internal/middleware/guard"
	"github.com/Skotchmaster/farm_dashboard/internal/mykafka"
	"github.com/Skotchmaster/farm_dashboard/internal/service"
	"github.com/Skotchmaster/farm_dashboard/internal/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()
	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open audit db: %v", err)
	}
	repo := audit.NewRepo(gdb)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("migrate audit db: %v", err)
	}

	var remote events.Multi
	var prod *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod, err = mykafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatal(err)
		}
		remote = append(remote, events.NewKafka(prod))
	}

	var auditSource httpserver.AuditSource = repo
	if cfg.ElasticURL != "" {
		esClient, err := es.NewClient(ctx, es.Config{URL: cfg.ElasticURL, Username: cfg.ElasticUser, Password: cfg.ElasticPassword})
		if err != nil {
			log.Fatal(err)
		}
		index := es.NewEventIndex(esClient, cfg.ElasticIndex)
		if err := index.EnsureIndex(ctx); err != nil {
			log.Fatal(err)
		}
		remote = append(remote, index)
		auditSource = index
	}

	publishers := events.Multi{repo}
	var bg *events.Background
	if len(remote) > 0 {
		bg = events.NewBackground(remote, events.DefaultQueueSize, events.DefaultDeliverTimeout)
		publishers = append(publishers, bg)
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	store := session.NewCookieStore(cfg.CookieSecret, cfg.CookieSecure)
	g := guard.New(store, client, publishers)

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secure = cfg.CookieSecure
	csrfCfg.SkipPaths = []string{"/health/live", "/health/ready"}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	if e.IPExtractor, err = httpserver.ClientIP(cfg.TrustedProxies); err != nil {
		log.Fatal(err)
	}

	if err := httpserver.Register(e, &httpserver.Deps{
		Auth:          &httpserver.AuthHTTP{Svc: service.NewAuthService(client, publishers), Store: store},
		Pages:         &httpserver.PagesHTTP{Store: store, Guard: g, Coops: client, Audit: auditSource},
		Guard:         g,
		BackendURL:    cfg.BackendURL,
		CSRFConfig:    csrfCfg,
		Logger:        logger,
		AuthRateLimit: cfg.AuthRateLimit,
		Ready:         repo.Ping,
	}); err != nil {
		log.Fatal(err)
	}

	go func() {
		logger.Info("server_start", "addr", cfg.ListenAddr, "backend", client.BaseURL())
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if bg != nil {
		if err := bg.Close(shutdownCtx); err != nil {
			logger.Error("event drain error", "error", err)
		}
	}
	if prod != nil {
		if err := prod.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
