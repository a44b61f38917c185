// Package config loads worker configuration from a YAML file, environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"jobworker/internal/logger"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Engine backends.
const (
	EngineDocker     = "docker"
	EngineDockerCLI  = "docker-cli"
	EngineHook       = "hook"
	EngineKubernetes = "kubernetes"
)

// Config holds all configuration values for the worker.
type Config struct {
	// Container engine backend (docker, docker-cli, hook, kubernetes)
	Engine string

	// Path to the docker binary for the docker-cli engine
	DockerPath string

	// Container hook script and the interpreter that runs it
	HookPath        string
	HookInterpreter string

	// Namespace for the kubernetes engine
	KubernetesNamespace string

	// Bound for a single engine status query
	QueryTimeout time.Duration

	// Teardown bounds
	TeardownTimeout     time.Duration
	TeardownConcurrency int

	LogLevel string

	// OTLP gRPC collector address; empty disables tracing
	OTELEndpoint string

	// Listen address for /metrics; empty disables the metrics server
	MetricsAddr string
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"engine":               "JOBWORKER_ENGINE",
	"docker_path":          "JOBWORKER_DOCKER_PATH",
	"hook_path":            "ACTIONS_RUNNER_CONTAINER_HOOKS",
	"hook_interpreter":     "JOBWORKER_HOOK_INTERPRETER",
	"kubernetes_namespace": "JOBWORKER_KUBERNETES_NAMESPACE",
	"query_timeout":        "JOBWORKER_QUERY_TIMEOUT",
	"teardown_timeout":     "JOBWORKER_TEARDOWN_TIMEOUT",
	"teardown_concurrency": "JOBWORKER_TEARDOWN_CONCURRENCY",
	"log_level":            "JOBWORKER_LOG_LEVEL",
	"otel_endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
	"metrics_addr":         "JOBWORKER_METRICS_ADDR",
}

// flagBindings maps config keys to command-line flag names.
var flagBindings = map[string]string{
	"engine":    "engine",
	"log_level": "log-level",
}

// Load reads configuration from the optional config file and environment
// variables. Env overrides file; file overrides defaults.
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with command-line flags taking precedence over env.
// Only flags that were explicitly set override other sources.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("engine", EngineDocker)
	v.SetDefault("docker_path", "docker")
	v.SetDefault("hook_interpreter", "node")
	v.SetDefault("kubernetes_namespace", "default")
	v.SetDefault("query_timeout", 30*time.Second)
	v.SetDefault("teardown_timeout", time.Minute)
	v.SetDefault("teardown_concurrency", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("metrics_addr", "")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("jobworker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Engine:              strings.ToLower(v.GetString("engine")),
		DockerPath:          v.GetString("docker_path"),
		HookPath:            v.GetString("hook_path"),
		HookInterpreter:     v.GetString("hook_interpreter"),
		KubernetesNamespace: v.GetString("kubernetes_namespace"),
		QueryTimeout:        v.GetDuration("query_timeout"),
		TeardownTimeout:     v.GetDuration("teardown_timeout"),
		TeardownConcurrency: v.GetInt("teardown_concurrency"),
		LogLevel:            v.GetString("log_level"),
		OTELEndpoint:        v.GetString("otel_endpoint"),
		MetricsAddr:         v.GetString("metrics_addr"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Engine {
	case EngineDocker, EngineDockerCLI, EngineKubernetes:
	case EngineHook:
		if c.HookPath == "" {
			return errors.New("hook_path is required when engine is hook (env: ACTIONS_RUNNER_CONTAINER_HOOKS)")
		}
	default:
		return fmt.Errorf("invalid engine %q (want docker, docker-cli, hook or kubernetes)", c.Engine)
	}

	if c.QueryTimeout < 0 {
		return fmt.Errorf("invalid query_timeout: %v", c.QueryTimeout)
	}
	if c.TeardownConcurrency < 1 {
		return fmt.Errorf("invalid teardown_concurrency: %d", c.TeardownConcurrency)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
