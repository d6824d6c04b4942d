package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"carelink/internal/config"
	"carelink/internal/domain"
	"carelink/internal/httpserver"
	"carelink/internal/observability/logging"
	"carelink/internal/observability/metrics"
	"carelink/internal/realtime"
	"carelink/internal/security"
	"carelink/internal/service"
	"carelink/internal/store/postgres"
	"carelink/internal/store/sqlite"
	"carelink/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Env,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	db, convRepo, msgRepo, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Hour)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptionKeys)
	if err != nil {
		logger.Error("failed to initialize encryptor", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(logger.With("component", "hub"))
	conversations := service.NewConversationService(convRepo, logger)
	messages := service.NewMessageService(conversations, msgRepo, hub, encryptor, logger, cfg.MaxMessageLength)
	notifier := service.NewNotificationService(hub, logger)
	calls := service.NewCallService(conversations, messages, notifier, hub, logger.With("component", "calls"),
		cfg.RingTimeout, cfg.StoreTimeout)

	wsHandler := ws.NewHandler(hub, tokenSvc, messages, calls, logger.With("component", "ws"), ws.Options{
		AllowedOrigins: cfg.CORSOrigins,
		StoreTimeout:   cfg.StoreTimeout,
		SendBuffer:     cfg.WSSendBuffer,
	})

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Hub:           hub,
		Verifier:      tokenSvc,
		Conversations: conversations,
		Messages:      messages,
		Notifier:      notifier,
		WS:            wsHandler,
		Log:           logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr(), "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func openStore(cfg *config.Config) (*sql.DB, domain.ConversationRepository, domain.MessageRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, sqlite.NewConversationRepo(db), sqlite.NewMessageRepo(db), nil
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, postgres.NewConversationRepo(db), postgres.NewMessageRepo(db), nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}
