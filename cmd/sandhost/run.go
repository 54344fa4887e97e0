package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/sandtree/internal/backend"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/config"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/server"
	"github.com/GriffinCanCode/sandtree/internal/orchestrator"
	"github.com/GriffinCanCode/sandtree/internal/sandbox"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
	"github.com/GriffinCanCode/sandtree/internal/transport"
)

// run wires the host together and blocks until a signal, a destroy command
// or the end of controller input.
func run(parent context.Context, cfg *config.Config) error {
	if !cfg.Transport.Stdio && !cfg.Transport.HTTPEnabled {
		return errors.New("no controller transport enabled: use --stdio or --http")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Flush()

	metrics := monitoring.NewMetrics()

	pool, err := sandbox.NewPool(sandbox.Config{
		MaxCallStack:  cfg.Sandbox.MaxCallStack,
		Timeout:       cfg.Sandbox.Timeout,
		EnableConsole: cfg.Sandbox.EnableConsole,
	}, cfg.Sandbox.PoolSize)
	if err != nil {
		return fmt.Errorf("failed to create sandbox pool: %w", err)
	}
	defer pool.Close()

	pages, err := buildPages(cfg)
	if err != nil {
		return err
	}

	signals := mailbox.New[backend.Signal]()
	b, err := backend.New(backend.Type(cfg.Engine.Type), signals, backend.Config{
		Sand:    cfg.Engine.Sand,
		Pages:   pages,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	logger.Info("Starting sandhost",
		zap.String("engine", cfg.Engine.Type),
		zap.String("sand", cfg.Engine.Sand),
		zap.Strings("pages", pages.Names()),
		zap.Bool("stdio", cfg.Transport.Stdio),
		zap.Bool("http", cfg.Transport.HTTPEnabled),
	)

	sink := transport.NewFanout()
	orch := orchestrator.New(b, signals, sink,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Transport.HTTPEnabled {
		srv := server.NewServer(cfg, server.Deps{
			Workers:   orch,
			Submitter: orch,
			Pool:      pool,
		}, logger, metrics)
		sink.Add(srv.Hub())
		g.Go(func() error { return srv.Run(gctx) })
	}

	if cfg.Transport.Stdio {
		stdio := transport.NewStdio(os.Stdin, os.Stdout, logger)
		sink.Add(stdio)
		g.Go(func() error {
			if err := stdio.Serve(gctx, orch); err != nil {
				return err
			}
			// End of input means the controller is gone.
			orch.Destroy()
			return nil
		})
	}

	g.Go(func() error { return orch.Run(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, orchestrator.ErrDestroyed) {
		logger.Info("sandhost stopped")
		return nil
	}
	return err
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Development {
		lc = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	lc.File = cfg.File
	lc.FlushInterval = cfg.FlushInterval
	return logging.New(lc)
}
