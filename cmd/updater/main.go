// Command updater serves model update requests from NATS. Each request
// builds (or loads) one agent type's model and rebuilds its graph; several
// updaters share the work through a queue group.
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
	"github.com/WessleyAI/routes-aggregator/pkg/logging"
	"github.com/WessleyAI/routes-aggregator/pkg/metrics"
	"github.com/WessleyAI/routes-aggregator/pkg/natsutil"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const queueGroup = "updaters"

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
		metricsAddr = flag.String("metrics", ":9091", "metrics listen address, empty to disable")
		warm        = flag.Bool("warm", false, "load the current snapshot of every agent into the graph at startup")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.NATS.URL == "" {
		fmt.Fprintln(os.Stderr, "NATS_URL is required")
		os.Exit(1)
	}
	logger, closer := logging.New(cfg.Log, "routes-updater")
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, *metricsAddr, *warm, logger); err != nil {
		logger.Error("updater exited with error", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, metricsAddr string, warm bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(context.Background())
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j verify: %w", err)
	}

	store := graph.New(driver, cfg.Neo4j.Database,
		graph.WithLanguages(cfg.Graph.Languages...),
		graph.WithBatchSize(cfg.Graph.BatchSize),
		graph.WithLogger(logger),
	)
	if err := store.CreateIndices(ctx); err != nil {
		return fmt.Errorf("graph indices: %w", err)
	}

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

	if warm {
		warmUp(ctx, svc, prov.AgentTypes(), logger)
	}

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("routes-updater"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := serveUpdates(nc, svc, cfg.NATS.UpdateTimeout, logger)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	logger.Info("updater ready", "subject", service.UpdateSubject, "queue", queueGroup, "agents", prov.AgentTypes())

	var srv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", reg.Handler())
		srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}
	return nil
}

// updateHandler runs one update request; *service.Service implements it.
type updateHandler interface {
	HandleUpdate(ctx context.Context, req service.UpdateRequest) service.UpdateReply
}

// serveUpdates answers update requests on service.UpdateSubject. Requests
// without a job id get one before they are handled.
func serveUpdates(nc natsutil.Conn, h updateHandler, timeout time.Duration, logger *slog.Logger) (*nats.Subscription, error) {
	sub, err := natsutil.Serve(nc, service.UpdateSubject, queueGroup, timeout, logger,
		func(ctx context.Context, req service.UpdateRequest) service.UpdateReply {
			if req.JobID == "" {
				req.JobID = uuid.NewString()
			}
			start := time.Now()
			reply := h.HandleUpdate(ctx, req)
			logger.Info("update job finished", "job_id", reply.JobID, "agent_type", req.AgentType,
				"status", reply.Status, "elapsed", time.Since(start))
			return reply
		})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", service.UpdateSubject, err)
	}
	return sub, nil
}

// warmUp loads the current snapshot of each agent type into the graph. A
// missing snapshot is logged and skipped.
func warmUp(ctx context.Context, h updateHandler, agents []string, logger *slog.Logger) {
	for _, agent := range agents {
		reply := h.HandleUpdate(ctx, service.UpdateRequest{JobID: "warm-" + agent, AgentType: agent})
		if reply.Status != service.StatusDone {
			logger.Warn("warm start skipped agent", "agent_type", agent, "err", reply.Error)
		}
	}
}
