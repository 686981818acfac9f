package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	config "github.com/SyneHQ/backfill"
	"github.com/SyneHQ/backfill/keys"
	"github.com/SyneHQ/backfill/logger"
	"github.com/SyneHQ/backfill/metrics"
	"github.com/SyneHQ/backfill/runner"
	"github.com/SyneHQ/backfill/scheduler"
	"github.com/SyneHQ/backfill/secrets"
	"github.com/SyneHQ/backfill/server"
	"github.com/SyneHQ/backfill/workflow"
)

var (
	serve         = flag.Bool("serve", false, "run the gRPC trigger service instead of a single run")
	executionDate = flag.String("execution-date", workflow.Sentinel, "date to process in yyyymmdd format; NA uses the logical date")
	logicalDate   = flag.String("logical-date", "", "RFC3339 logical date of the run; empty means now")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(
		logger.WithServerName("backfill"),
		logger.WithLevel(cfg.LogLevel),
		logger.WithJSON(cfg.Environment != "development"),
	)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.With(ctx, log)

	if err := run(ctx, cfg); err != nil {
		log.Error("backfill exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.From(ctx)

	vars := secrets.Chain{secrets.EnvVariables{}}
	if cfg.UseInfisical {
		sec, err := keys.LoadInfisicalSecrets(ctx, cfg.Infisical)
		if err != nil {
			return err
		}
		vars = append(secrets.Chain{secrets.NewSecretVariables(sec)}, vars...)
	}

	// configuration errors are fatal before any run starts
	cluster, err := secrets.LoadClusterDetails(ctx, vars)
	if err != nil {
		return fmt.Errorf("load %s: %w", secrets.ClusterDetailsKey, err)
	}
	if cfg.Workflow.Schedule != "" {
		if err := scheduler.Validate(cfg.Workflow.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Workflow.Schedule, err)
		}
	}
	def, err := workflow.New(cluster, workflow.FromConfig(cfg.Workflow)...)
	if err != nil {
		return err
	}

	r, err := newRunner(cfg)
	if err != nil {
		return err
	}

	var store *scheduler.Store
	opts := []workflow.EngineOption{}
	if cfg.Store.Driver != "" && cfg.Store.Path != "" {
		store, err = scheduler.OpenStore(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		opts = append(opts, workflow.WithRecorder(store))
	}
	m := metrics.New()
	opts = append(opts, workflow.WithMetrics(m))
	engine := workflow.NewEngine(def, r, opts...)

	log.Info("workflow loaded",
		zap.String("dag_id", def.DagID),
		zap.String("cluster", cluster.ClusterName),
		zap.String("project_id", cluster.ProjectID),
		zap.String("region", cluster.Region),
		zap.String("runner", cfg.Runner))

	if !*serve {
		req := workflow.TriggerRequest{Params: workflow.Params{workflow.ParamExecutionDate: *executionDate}}
		if *logicalDate != "" {
			t, err := time.Parse(time.RFC3339, *logicalDate)
			if err != nil {
				return fmt.Errorf("logical-date: %w", err)
			}
			req.LogicalDate = t
		}
		_, err := engine.Trigger(ctx, req)
		return err
	}
	return serveAll(ctx, cfg, engine, store, m)
}

func newRunner(cfg *config.Config) (runner.Runner, error) {
	switch cfg.Runner {
	case "dataproc":
		return runner.NewDataprocRunner(), nil
	case "local":
		return runner.NewLocalRunner(cfg.SparkImage), nil
	default:
		return nil, fmt.Errorf("unsupported runner %q", cfg.Runner)
	}
}

func serveAll(ctx context.Context, cfg *config.Config, engine *workflow.Engine, store *scheduler.Store, m *metrics.Metrics) error {
	log := logger.From(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(ctx)
	defer sched.Stop()

	js := server.NewBackfillServer(ctx, engine, store, sched)
	if err := js.Reload(ctx); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	server.RegisterBackfillServiceServer(grpcServer, js)

	errc := make(chan error, 2)
	go func() {
		errc <- grpcServer.Serve(lis)
	}()
	log.Info("server starting", zap.String("port", cfg.Port))

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err = <-errc:
	}
	grpcServer.GracefulStop()
	// in-flight runs fail and record their final state before the store closes
	cancel()
	js.Wait()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}
	return err
}
