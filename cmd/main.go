package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wayplan/collab-service/config"
	"github.com/wayplan/collab-service/internal/postgres"
	"github.com/wayplan/collab-service/internal/registry"
	"github.com/wayplan/collab-service/internal/service"
	httpx "github.com/wayplan/collab-service/internal/transport/http"
	"github.com/wayplan/collab-service/internal/transport/ws"
	"github.com/wayplan/collab-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting collab-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.PoolConfig{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.ConnLifetime(),
		MaxConnIdleTime: cfg.Postgres.ConnIdleTime(),
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	userRepo := postgres.NewUserRepository(db.Pool)
	tripRepo := postgres.NewTripRepository(db.Pool)
	collabRepo := postgres.NewCollaboratorRepository(db.Pool)

	// --- services ---
	collabSvc := service.NewCollaboratorService(userRepo, tripRepo, collabRepo)

	// --- registry & WS ---
	reg := registry.New()
	wsServer := ws.NewServer(reg, collabSvc)
	wsServer.SetReadLimit(cfg.Collab.ReadLimit)
	wsServer.SetWriteTimeout(cfg.Collab.SendTimeout())

	// --- HTTP ---
	handler := httpx.NewHandler(reg)
	router := httpx.NewRouter(handler, wsServer, cfg.Collab.AllowedOrigins)
	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout не ставим: /collab держит соединение открытым
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
