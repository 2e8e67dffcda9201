// Package main implements the trip-tracking API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/engine/fleet"
	"github.com/WessleyAI/wessley-trips/engine/graph"
	"github.com/WessleyAI/wessley-trips/engine/memstore"
	"github.com/WessleyAI/wessley-trips/engine/trip"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	GRPCPort      string
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPass     string
	Neo4jDatabase string
	NATSURL       string
	CORSOrigin    string
	StoreBackend  string
	PositionRate  float64
	PositionBurst int
}

func loadConfig() (Config, error) {
	cfg := Config{
		Port:          envOr("PORT", "8080"),
		GRPCPort:      envOr("GRPC_PORT", "9090"),
		Neo4jURL:      envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:     envOr("NEO4J_PASS", "password"),
		Neo4jDatabase: envOr("NEO4J_DATABASE", ""),
		NATSURL:       envOr("NATS_URL", ""),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		StoreBackend:  envOr("STORE_BACKEND", "neo4j"),
	}
	var err error
	if cfg.PositionRate, err = strconv.ParseFloat(envOr("POSITION_RATE", "5"), 64); err != nil || cfg.PositionRate <= 0 {
		return Config{}, fmt.Errorf("POSITION_RATE must be a positive number")
	}
	if cfg.PositionBurst, err = strconv.Atoi(envOr("POSITION_BURST", "10")); err != nil || cfg.PositionBurst <= 0 {
		return Config{}, fmt.Errorf("POSITION_BURST must be a positive integer")
	}
	switch cfg.StoreBackend {
	case "neo4j", "memory":
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND must be neo4j or memory, got %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// backend is everything the server needs from a store.
type backend interface {
	fleet.Store
	trip.Store
	Ping(ctx context.Context) error
	NodeCounts(ctx context.Context) (map[string]int64, error)
	EnsureSchema(ctx context.Context) error
	SeedSequences(ctx context.Context) (map[string]int64, error)
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.EnsureSchema(initCtx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	seeded, err := store.SeedSequences(initCtx)
	if err != nil {
		return fmt.Errorf("seed sequences: %w", err)
	}
	logger.Info("sequences seeded", "client", seeded["client"], "vehicle", seeded["vehicle"])

	// --- Events (optional) ---
	var events trip.EventPublisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("wessley-trips-api"), nats.MaxReconnects(-1))
		if err != nil {
			logger.Warn("nats unavailable, lifecycle events disabled", "err", err)
		} else {
			defer nc.Drain()
			events = &natsEvents{nc: nc}
			logger.Info("publishing lifecycle events", "url", cfg.NATSURL)
		}
	}

	// --- Services ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := trip.DefaultOptions()
	opts.Registerer = reg
	srv := &server{
		fleet:  fleet.New(store, logger),
		trips:  trip.New(store, events, opts, logger),
		store:  store,
		logger: logger,
	}

	// --- gRPC health ---
	healthSrv := health.NewServer()
	grpcSrv := grpc.NewServer()
	registerHealth(grpcSrv, healthSrv)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go watchHealth(ctx, healthSrv, store, 10*time.Second, logger)

	// --- HTTP server ---
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(srv, cfg, reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc health server starting", "port", cfg.GRPCPort)
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "store", cfg.StoreBackend)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	healthSrv.Shutdown()
	grpcSrv.GracefulStop()
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	return httpSrv.Shutdown(shutCtx)
}

// openStore builds the configured backend. For neo4j an unreachable
// database is a fatal startup error.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (backend, func(), error) {
	if cfg.StoreBackend == "memory" {
		logger.Warn("using in-memory store, data is lost on exit")
		return memstore.New(), func() {}, nil
	}

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return nil, nil, fmt.Errorf("neo4j driver: %w", err)
	}
	verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, nil, fmt.Errorf("neo4j connect %s: %w", cfg.Neo4jURL, domain.Unavailable(err))
	}
	logger.Info("neo4j connection established", "url", cfg.Neo4jURL)

	store := graph.NewWithOpener(graph.DriverOpener{Driver: driver, Database: cfg.Neo4jDatabase})
	return store, func() { driver.Close(context.Background()) }, nil
}
