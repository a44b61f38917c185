package cmd

import (
	"fmt"

	"jobworker/internal/config"
	"jobworker/internal/engine"
)

// newEngine builds the engine backend selected by cfg.
func newEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case config.EngineDockerCLI:
		return engine.NewDockerCLI(cfg.DockerPath), nil
	case config.EngineHook:
		return engine.NewHook(cfg.HookInterpreter, cfg.HookPath), nil
	case config.EngineKubernetes:
		k8s, err := engine.NewKubernetes(cfg.KubernetesNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes engine: %w", err)
		}
		return k8s, nil
	case config.EngineDocker:
		api, err := engine.NewDockerAPI()
		if err != nil {
			return nil, fmt.Errorf("failed to create docker engine: %w", err)
		}
		return api, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
