package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	fxmodules "pet-arena/internal/fx"
	"pet-arena/internal/middleware"
	"pet-arena/internal/scheduler"
	"pet-arena/internal/server"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
		fx.Invoke(runScheduler),
	).Run()
}

// runScheduler is invoked after runServer so its jobs stop before the
// database is closed.
func runScheduler(
	lc fx.Lifecycle,
	sched *scheduler.Scheduler,
	reconcileJob *scheduler.ReconcileJob,
	cacheSyncJob *scheduler.CacheSyncJob,
	cfg *config.Config,
) error {
	if err := sched.AddJob(cfg.ReconcileSchedule, reconcileJob); err != nil {
		return err
	}
	if err := sched.AddJob(cfg.CacheSyncSchedule, cacheSyncJob); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			return nil
		},
	})
	return nil
}

func runServer(
	lc fx.Lifecycle,
	petServer *server.PetServer,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r := chi.NewRouter()
	r.Use(c.Handler)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Recoverer(logger))
	petServer.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
