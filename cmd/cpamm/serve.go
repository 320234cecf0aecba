package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/defistate/cpamm-engine/cmd/cpamm/config"
	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
	"github.com/defistate/cpamm-engine/storage"
	"github.com/defistate/cpamm-engine/storage/postgres"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/server"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/stateops"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the state stream and swap rpc",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8545", "http listen address")
	cmd.Flags().Duration("refresh-interval", 0, "periodic snapshot interval, 0 disables it")
	return cmd
}

// node is the engine with the registries it runs against.
type node struct {
	clock  cpamm.Clock
	mints  *mintregistry.Registry
	engine *cpamm.Engine
}

// newNode seeds pools and mints from cfg into a fresh engine.
func newNode(cfg config.Config, reg prometheus.Registerer, logger *slog.Logger) (*node, error) {
	clock, err := cfg.BuildClock()
	if err != nil {
		return nil, err
	}
	programID, err := cfg.BuildProgramID()
	if err != nil {
		return nil, fmt.Errorf("program-id: %w", err)
	}
	if programID.IsZero() {
		return nil, errors.New("program-id is required")
	}

	mintList, err := cfg.BuildMints()
	if err != nil {
		return nil, err
	}
	mints := mintregistry.NewRegistry(mintList...)

	poolList, err := cfg.BuildPools(clock)
	if err != nil {
		return nil, err
	}
	pools := cpamm.NewRegistry()
	for _, p := range poolList {
		if err := pools.Add(p); err != nil {
			return nil, err
		}
	}

	eng, err := cpamm.NewEngine(&cpamm.Config{
		ProgramID: programID,
		Pools:     pools,
		Mints:     mints,
		Clock:     clock,
		Registry:  reg,
		Logger:    logger.With("component", "engine"),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("engine ready", "pools", pools.Len(), "mints", len(mintList), "clock", cfg.Clock.Mode)
	return &node{clock: clock, mints: mints, engine: eng}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	n, err := newNode(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer n.engine.Close()

	ops, err := stateops.NewStateOps(logger.With("component", "stateops"), reg)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(&server.Config{
		Engine:          n.engine,
		Mints:           n.mints,
		Differ:          ops,
		Clock:           n.clock,
		Cluster:         cfg.Cluster,
		BufferSize:      uint(cfg.BufferSize),
		RefreshInterval: cfg.RefreshInterval,
		Registry:        reg,
		Logger:          logger.With("component", "jsonrpc-server"),
	})
	if err != nil {
		return err
	}
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Postgres.DSN != "" {
		sink, closeStore, err := newPostgresSink(ctx, cfg.Postgres, n.engine, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		g.Go(func() error { return sink.Run(ctx) })
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", srv.Handler(cfg.AllowedOrigins))
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen, "cluster", cfg.Cluster)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("serve stopped", "error", err)
		return err
	}
	logger.Info("serve stopped")
	return nil
}

func newPostgresSink(ctx context.Context, cfg config.PostgresConfig, source storage.SwapSource, logger *slog.Logger) (*storage.Sink, func(), error) {
	pool, err := postgres.NewPool(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	sink, err := storage.NewSink(&storage.SinkConfig{
		Source:        source,
		Store:         postgres.NewSwapEventStore(pool),
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        logger.With("component", "swap-sink"),
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return sink, pool.Close, nil
}
