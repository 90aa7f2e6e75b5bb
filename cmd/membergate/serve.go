// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/membergate/membergate/internal/auth"
	authpg "github.com/membergate/membergate/internal/auth/postgres"
	"github.com/membergate/membergate/internal/config"
	"github.com/membergate/membergate/internal/logging"
	"github.com/membergate/membergate/internal/observability"
	"github.com/membergate/membergate/internal/store"
	"github.com/membergate/membergate/internal/webapp"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web application server",
		Long: `Start the MemberGate web server, serving the landing, signup, login,
and members pages, together with the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	// Flag names mirror the config keys so they merge over file and env.
	// Defaults match config.Default(): posflag merges an unchanged flag's
	// default when no other source provides the key.
	flags := cmd.Flags()
	flags.String("http.addr", ":8000", "web listen address")
	flags.String("metrics.addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.String("log.format", "json", "log format (json or text)")

	return cmd
}

// runServe wires every dependency explicitly and runs until signalled.
func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("membergate", version, cfg.Log.Format)
	logger := slog.Default()

	logger.Info("starting membergate",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"session_ttl", cfg.Session.TTL.String(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Database pool. Blocks until the database answers or retries run out.
	pool, err := store.NewPool(ctx, cfg.Database.URL, cfg.Database.ConnectTimeout, uint64(cfg.Database.MaxAttempts))
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database pool ready")

	// Repositories, hasher, and the auth service.
	users := authpg.NewUserRepository(pool)
	sessions := authpg.NewSessionRepository(pool)
	hasher := auth.NewBcryptHasher()

	svc, err := auth.NewServiceWithLogger(users, sessions, hasher, cfg.Session.TTL, logger)
	if err != nil {
		return err
	}

	// Observability server, optional.
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		metrics = obsServer.Metrics()

		obsErrCh, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		go func() {
			if serveErr := <-obsErrCh; serveErr != nil {
				logger.Error("observability server failed", "error", serveErr)
				cancel()
			}
		}()
	}

	// Web application server.
	webServer, err := webapp.NewServer(webapp.Config{
		Addr:         cfg.HTTP.Addr,
		CookieSecure: cfg.Session.CookieSecure,
	}, svc, metrics, logger)
	if err != nil {
		return err
	}

	webErrCh, err := webServer.Start()
	if err != nil {
		return oops.With("operation", "start web server").Wrap(err)
	}
	go func() {
		if serveErr := <-webErrCh; serveErr != nil {
			logger.Error("web server failed", "error", serveErr)
			cancel()
		}
	}()

	// Session janitor.
	janitor := auth.NewJanitor(sessions, cfg.Session.PurgeInterval)
	janitor.SetLogger(logger)
	if metrics != nil {
		janitor.OnPurge(func(count int64) {
			metrics.SessionsPurgedTotal.Add(float64(count))
		})
	}
	if err := janitor.Start(ctx); err != nil {
		return err
	}

	cmd.Println("MemberGate server started on " + webServer.Addr())

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	janitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
