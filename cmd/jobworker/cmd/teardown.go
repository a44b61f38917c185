package cmd

import (
	"os/signal"
	"syscall"

	"jobworker/internal/container"
	"jobworker/internal/worker"

	"github.com/spf13/cobra"
)

func newTeardownCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown [container_id...]",
		Short: "Remove job containers",
		Long: `Teardown force-removes the given containers and their anonymous volumes.
Containers that no longer exist are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			containers := make([]container.Info, 0, len(args))
			for _, id := range args {
				containers = append(containers, container.Info{ID: id, Role: container.RoleService})
			}

			provider := worker.NewContainerProvider(eng, eng, worker.ProviderConfig{
				TeardownTimeout:     env.cfg.TeardownTimeout,
				TeardownConcurrency: env.cfg.TeardownConcurrency,
			}, env.log)

			if err := provider.Teardown(ctx, containers); err != nil {
				return err
			}
			cmd.Printf("Removed %d containers\n", len(containers))
			return nil
		},
	}
}
