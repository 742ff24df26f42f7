package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/store/memstore"
	"github.com/stemforge/stemforge/internal/store/redisstore"
	"github.com/stemforge/stemforge/internal/store/sqlitestore"
	"github.com/stemforge/stemforge/internal/worker"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/framework"
	"github.com/stemforge/stemforge/pkg/observability"
	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/stages"
	"github.com/stemforge/stemforge/pkg/version"
)

// metricsReadTimeout bounds request reads on the /metrics listener.
const metricsReadTimeout = 10 * time.Second

// NewWorkerCommand creates the queue-consuming worker command.
func NewWorkerCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume jobs from the configured queue",
		Long: `Start the long-running worker. Each slot pops one job at a time,
runs the full stage plan, and publishes status, progress, and artifacts
to the configured store backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			return runWorker(cobraCmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path (default: .stemforge.yaml in CWD or $HOME)")

	return cmd
}

func runWorker(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	providers, err := observability.Init(workerObsConfig(cfg))
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	logger := providers.Logger

	contracts, err := loadContracts(cfg)
	if err != nil {
		return err
	}

	stageReg, err := stages.BuildRegistry(contracts)
	if err != nil {
		return err
	}

	queue, store, closeBackend, err := buildBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	meter := providers.Meter

	if cfg.Worker.MetricsAddr != "" {
		handler, provider, promErr := observability.PrometheusHandler()
		if promErr != nil {
			return promErr
		}

		meter = provider.Meter("stemforge")

		go serveMetrics(cfg.Worker.MetricsAddr, handler, logger)
	}

	metrics, err := observability.NewPipelineMetrics(meter)
	if err != nil {
		return err
	}

	runner := framework.NewRunner(stageReg, ports.NewStoreProgressSink(store), logger)
	orch := framework.NewOrchestrator(
		contracts, stageReg, runner, ports.NewStoreArtifactSink(store), version.Version, logger)

	w := worker.New(queue, store, orch, logger,
		worker.WithSlots(cfg.Worker.Slots),
		worker.WithMediaDir(cfg.Worker.MediaDir),
		worker.WithMetrics(metrics),
	)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting",
		"slots", cfg.Worker.Slots,
		"backend", cfg.Store.Backend,
		"media_dir", cfg.Worker.MediaDir,
	)

	return w.Run(runCtx)
}

func workerObsConfig(cfg *config.Config) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.Mode = observability.ModeWorker
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.LogLevel = parseLogLevel(cfg.Observability.LogLevel)
	obsCfg.LogJSON = true

	return obsCfg
}

func parseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadContracts(cfg *config.Config) (*contract.Registry, error) {
	if cfg.Contracts.Path != "" {
		return contract.LoadFile(cfg.Contracts.Path)
	}

	return contract.Default()
}

// buildBackend constructs the queue and store for the configured backend.
// The sqlite backend persists status and artifacts; its queue stays
// in-process since sqlite offers no blocking pop.
func buildBackend(cfg *config.Config) (ports.JobQueue, ports.JobStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memstore.NewQueue(cfg.Store.QueueSize), memstore.NewStore(), func() {}, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})

		queue := redisstore.NewQueue(client, cfg.Store.Redis.Prefix)
		store := redisstore.NewStore(client, cfg.Store.Redis.Prefix)

		return queue, store, func() { _ = client.Close() }, nil
	case config.BackendSQLite:
		store, err := sqlitestore.Open(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, nil, err
		}

		return memstore.NewQueue(cfg.Store.QueueSize), store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("backend %q: %w", cfg.Store.Backend, config.ErrUnknownBackend)
	}
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: metricsReadTimeout}

	logger.Info("metrics listening", "addr", addr)

	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
