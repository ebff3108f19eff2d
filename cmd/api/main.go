// Package main implements the routes API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/graph"
	"github.com/WessleyAI/routes-aggregator/engine/gtfsfeed"
	"github.com/WessleyAI/routes-aggregator/engine/provider"
	"github.com/WessleyAI/routes-aggregator/engine/service"
	"github.com/WessleyAI/routes-aggregator/engine/snapshot"
	"github.com/WessleyAI/routes-aggregator/pkg/config"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/logging"
	"github.com/WessleyAI/routes-aggregator/pkg/metrics"
	"github.com/WessleyAI/routes-aggregator/pkg/natsutil"
	"github.com/WessleyAI/routes-aggregator/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, closer := logging.New(cfg.Log, "routes-api")
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(context.Background())

	store := graph.New(driver, cfg.Neo4j.Database,
		graph.WithLanguages(cfg.Graph.Languages...),
		graph.WithBatchSize(cfg.Graph.BatchSize),
		graph.WithLogger(logger),
	)
	if err := store.CreateIndices(ctx); err != nil {
		logger.Warn("graph indices not created", "err", err)
	}

	// --- Snapshots and model builders ---
	snapshots, snapCloser, err := snapshot.Open(ctx, cfg.Snapshot.Backend, cfg.Snapshot.Path)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	defer snapCloser.Close()

	prov, err := provider.New(snapshots, logger, gtfsfeed.FromConfig(cfg.Agents, gtfsfeed.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("model provider: %w", err)
	}

	reg := metrics.New()
	svc := service.New(service.Deps{Store: store, Provider: prov, Metrics: reg, Logger: logger})

	// --- Model updates: over NATS when configured, in process otherwise ---
	var updates updater = localUpdater{svc: svc}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("routes-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		updates = newNATSUpdater(nc, cfg.NATS.UpdateTimeout, reg, logger)
		logger.Info("model updates dispatched over nats", "subject", service.UpdateSubject)
	}

	lister, _ := snapshots.(snapshot.Lister)

	// --- Build HTTP server ---
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      newRouter(cfg.HTTP, &api{svc: svc, updates: updates, snapshots: lister, log: logger}, reg, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port, "agents", prov.AgentTypes())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// updater runs a model update and reports its outcome.
type updater interface {
	Update(ctx context.Context, req service.UpdateRequest) (service.UpdateReply, error)
}

// localUpdater runs updates in this process.
type localUpdater struct {
	svc *service.Service
}

func (u localUpdater) Update(ctx context.Context, req service.UpdateRequest) (service.UpdateReply, error) {
	return u.svc.HandleUpdate(ctx, req), nil
}

// natsUpdater hands updates to the updater workers. While no worker
// answers, the breaker rejects updates without waiting for a timeout.
type natsUpdater struct {
	timeout  time.Duration
	dispatch fn.Stage[service.UpdateRequest, service.UpdateReply]
}

func newNATSUpdater(nc natsutil.Conn, timeout time.Duration, reg *metrics.Registry, logger *slog.Logger) *natsUpdater {
	state := reg.Gauge("routes_update_breaker_state", "Update dispatch breaker state (0 closed, 1 open, 2 half-open)")
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 3,
		Timeout:       30 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			state.Set(int64(to))
			logger.Warn("update dispatch breaker changed state", "from", from.String(), "to", to.String())
		},
	})
	var request fn.Stage[service.UpdateRequest, service.UpdateReply] = func(ctx context.Context, req service.UpdateRequest) fn.Result[service.UpdateReply] {
		return fn.FromPair(natsutil.Request[service.UpdateRequest, service.UpdateReply](ctx, nc, service.UpdateSubject, req))
	}
	return &natsUpdater{
		timeout:  timeout,
		dispatch: fn.TracedStage("model.update.dispatch", resilience.BreakerStage(breaker, request)),
	}
}

func (u *natsUpdater) Update(ctx context.Context, req service.UpdateRequest) (service.UpdateReply, error) {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	return u.dispatch(ctx, req).Unwrap()
}
