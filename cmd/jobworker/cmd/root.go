package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"jobworker/internal/config"
	"jobworker/internal/logger"
	"jobworker/internal/observability"

	"github.com/spf13/cobra"
)

const serviceName = "jobworker"

// Execute runs the jobworker command tree.
func Execute() error {
	return newRootCmd().Execute()
}

// runtimeEnv is what every subcommand needs once flags are parsed.
type runtimeEnv struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "jobworker",
		Short: "jobworker checks job containers for readiness and tears them down",
		Long: `jobworker is the container side of a CI job worker.

Before a job's steps run, every started container (the job container and its
service containers) is asked about its health through the configured engine.
A container passes when its health probe reports "healthy", or when it has no
probe and its exit status is 0. The first container that does not pass fails
the job.

Common workflows:

  Check a job container and a service:
    jobworker check --job 3f2a=node:20 --service 9bc1=postgres:16

  Check, then remove the containers:
    jobworker check --job 3f2a=node:20 --service 9bc1=postgres:16 --teardown

  Remove containers left behind by a job:
    jobworker teardown 3f2a 9bc1

Configuration:
  Settings are read from jobworker.yaml, then the environment, then flags:
    JOBWORKER_ENGINE                 docker, docker-cli, hook or kubernetes
    ACTIONS_RUNNER_CONTAINER_HOOKS   hook script for the hook engine
    JOBWORKER_QUERY_TIMEOUT          bound for a single engine query`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./jobworker.yaml)")
	rootCmd.PersistentFlags().String("engine", "", "container engine (docker, docker-cli, hook, kubernetes)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	load := func(cmd *cobra.Command) (*runtimeEnv, error) {
		cfg, err := config.LoadWithFlags(cfgFile, cmd.Flags())
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		return &runtimeEnv{
			cfg: cfg,
			log: logger.NewWithWriter(cmd.ErrOrStderr(), level),
		}, nil
	}

	rootCmd.AddCommand(newCheckCmd(load))
	rootCmd.AddCommand(newTeardownCmd(load))

	return rootCmd
}

// initObservability starts tracing and the optional metrics server. The
// returned function flushes both.
func initObservability(ctx context.Context, env *runtimeEnv) (func(), error) {
	shutdownTracer, err := observability.InitTracer(ctx, serviceName, env.cfg.OTELEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	shutdownMetrics := func(context.Context) error { return nil }
	if env.cfg.MetricsAddr != "" {
		handler, shutdown, err := observability.InitMetrics(ctx, serviceName)
		if err != nil {
			_ = shutdownTracer(context.Background())
			return nil, fmt.Errorf("failed to init metrics: %w", err)
		}
		shutdownMetrics = shutdown
		observability.ServeMetrics(ctx, env.cfg.MetricsAddr, handler, env.log)
	}

	return func() {
		if err := shutdownTracer(context.Background()); err != nil {
			env.log.Warn("failed to shutdown tracer", "error", err)
		}
		if err := shutdownMetrics(context.Background()); err != nil {
			env.log.Warn("failed to shutdown metrics", "error", err)
		}
	}, nil
}
