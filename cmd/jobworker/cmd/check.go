package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"jobworker/internal/jobctx"
	"jobworker/internal/worker"

	"github.com/spf13/cobra"
)

type loadFunc func(cmd *cobra.Command) (*runtimeEnv, error)

func newCheckCmd(load loadFunc) *cobra.Command {
	var (
		job      string
		services []string
		teardown bool
	)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the job and service containers are ready",
		Long: `Check evaluates the job container first, then each service container in the
order given, and stops at the first container that is not ready.

Containers are given as ID=IMAGE; the image is only used in messages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			containers, err := jobContainers(job, services)
			if err != nil {
				return err
			}
			if len(containers) == 0 {
				return errors.New("at least one --job or --service container is required")
			}

			env, err := load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initObservability(ctx, env)
			if err != nil {
				return err
			}
			defer shutdown()

			eng, err := newEngine(env.cfg)
			if err != nil {
				return err
			}

			ec := jobctx.New(env.log)
			ctx = ec.Attach(ctx)

			provider := worker.NewContainerProvider(eng, eng, worker.ProviderConfig{
				QueryTimeout:        env.cfg.QueryTimeout,
				TeardownTimeout:     env.cfg.TeardownTimeout,
				TeardownConcurrency: env.cfg.TeardownConcurrency,
			}, env.log)

			if teardown {
				err = provider.Run(ctx, ec, containers, nil)
			} else {
				err = provider.RunReadinessCheck(ctx, ec, containers)
			}

			for _, msg := range ec.Diagnostics() {
				cmd.Println(msg)
			}
			if result, ok := ec.Result(); ok {
				cmd.Printf("Job %s: %s\n", ec.ID(), result)
			}
			return err
		},
	}

	checkCmd.Flags().StringVar(&job, "job", "", "job container as ID=IMAGE")
	checkCmd.Flags().StringArrayVar(&services, "service", nil, "service container as ID=IMAGE (repeatable)")
	checkCmd.Flags().BoolVar(&teardown, "teardown", false, "remove the containers after the check")

	return checkCmd
}
