package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/eventlink/internal/archive"
	"github.com/rickgao/eventlink/internal/auth"
	"github.com/rickgao/eventlink/internal/config"
	"github.com/rickgao/eventlink/internal/connection"
	"github.com/rickgao/eventlink/internal/database"
	"github.com/rickgao/eventlink/internal/metrics"
	"github.com/rickgao/eventlink/internal/version"
)

const shutdownTimeout = 30 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect and print events until interrupted",
		Action: func(c *cli.Context) error {
			return run(c.Context, c.String("config"), c.App.Writer, c.App.ErrWriter)
		},
	}
}

func run(parent context.Context, configPath string, stdout, stderr io.Writer) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	logger.Info("starting eventtail",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := newProvider(cfg.Auth, logger)
	if err != nil {
		return err
	}

	m := metrics.New()

	// Archive is optional
	var sink eventSink
	var writer *archive.Writer
	if cfg.Archive.Enabled {
		db := cfg.Archive.Database
		logger.Info("connecting to database", "host", db.Host, "port", db.Port, "database", db.Name)

		pool, err := database.Connect(ctx, db, cfg.Instance.ID)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := archive.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		writer = archive.NewWriter(archiveConfig(cfg.Archive), pool, m, logger)
		if err := writer.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("start archive writer: %w", err)
		}
		sink = writer
	}

	out := &printer{w: stdout}

	mcfg := managerConfig(cfg.Stream)
	mcfg.Handlers = buildHandlers(cfg.Handlers.Print, out, sink)

	mgr := connection.NewManager(mcfg, provider, logger,
		connection.WithDialer(connection.NewWSDialer(transportConfig(cfg.Stream), logger)),
		connection.WithMetrics(m),
		connection.WithStatusListener(connection.StatusListenerFunc(func(s connection.Status) {
			logger.Info("connection status changed", "status", s)
		})),
	)

	g, gctx := errgroup.WithContext(ctx)

	// Config reload
	watcher, err := config.NewWatcher(configPath, logger)
	if err != nil {
		logger.Warn("config reload disabled", "error", err)
	} else {
		watcher.OnChange(func(path string) {
			reload(path, provider, mgr, out, sink, logger)
		})
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	// Metrics and health
	var server *http.Server
	if cfg.Metrics.Enabled {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           newHTTPHandler(cfg.Metrics.Path, m, mgr, writer),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if err := mgr.Start(gctx); err != nil {
		return fmt.Errorf("start connection manager: %w", err)
	}
	if !mcfg.AutoConnect {
		mgr.Connect()
	}

	logger.Info("eventtail running",
		"stream", cfg.Stream.URL,
		"auth_mode", cfg.Auth.Mode,
		"archive", cfg.Archive.Enabled,
	)

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := mgr.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop connection manager: %w", err))
		}
		if writer != nil {
			if err := writer.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop archive writer: %w", err))
			}
		}
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("eventtail stopped")
	return err
}

// reload applies the live-reloadable sections of a changed config file:
// the print selection and, for session providers, the subject.
func reload(path string, provider connection.CredentialProvider, mgr connection.Manager, out *printer, sink eventSink, logger *slog.Logger) {
	cfg, err := config.LoadAndValidate(path)
	if err != nil {
		logger.Warn("config reload failed, keeping current settings", "error", err)
		return
	}

	mgr.SetHandlers(buildHandlers(cfg.Handlers.Print, out, sink))

	if session, ok := provider.(*auth.Session); ok {
		session.Set(cfg.Auth.Subject)
	}

	logger.Info("config reloaded", "print", cfg.Handlers.Print)
}
