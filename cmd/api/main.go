package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/pollhub/internal/auth"
	"github.com/geocoder89/pollhub/internal/config"
	"github.com/geocoder89/pollhub/internal/db"
	httpx "github.com/geocoder89/pollhub/internal/http"
	"github.com/geocoder89/pollhub/internal/observability"
	"github.com/geocoder89/pollhub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	// database pool and schema bootstrap
	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	bootCtx, cancelBoot := config.WithTimeout(15 * time.Second)
	defer cancelBoot()

	if err := db.EnsureSchema(bootCtx, pool); err != nil {
		log.Error("schema bootstrap failed", "err", err)
		os.Exit(1)
	}

	if err := db.EnsureAdminUser(bootCtx, pool, cfg); err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	// tracing is opt-in
	if cfg.OtelEnabled {
		shutdownTracer, err := observability.InitTracer(context.Background(), "pollhub", cfg.OtelEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdownTracer(ctx)
			}()
		}
	}

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	usersRepo := postgres.NewUsersRepo(pool, prom)

	deps := httpx.Deps{
		Cfg:     cfg,
		JWT:     jwtManager,
		Users:   usersRepo,
		UserMgr: usersRepo,
		Counter: usersRepo,
		Polls:   postgres.NewPollsRepo(pool, prom),
		Votes:   postgres.NewVotesRepo(pool, prom),
		Refresh: postgres.NewRefreshTokensRepo(pool),
		Prom:    prom,
		Ping:    pool.Ping,
	}

	router := httpx.NewRouter(deps)

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)

		defer cancel()

		err := srv.Shutdown(ctx)

		if err != nil {
			log.Error("graceful shutdown failed", "err", err)

			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
