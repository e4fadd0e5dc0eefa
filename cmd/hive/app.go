package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/blackcoderx/hive/pkg/logging"
	"github.com/blackcoderx/hive/pkg/orchestrator"
	"github.com/blackcoderx/hive/pkg/runner"
	"github.com/blackcoderx/hive/pkg/sandbox"
	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/blackcoderx/hive/pkg/storage/redis"
	"github.com/blackcoderx/hive/pkg/transport"
	"github.com/blackcoderx/hive/pkg/workspace"
)

// hostKeys configure the process itself and never become variables.
var hostKeys = []string{"HIVE_REDIS_ADDR", "HIVE_SSL_VERIFY"}

type variableStore interface {
	orchestrator.VariableStore
	Environment(ctx context.Context, id string) (*storage.Environment, error)
	ListEnvironments(ctx context.Context) ([]storage.Environment, error)
	SaveEnvironment(ctx context.Context, env *storage.Environment) error
	SetGlobal(ctx context.Context, key string, v storage.Variable) error
}

// app holds the components every command shares.
type app struct {
	logger  *slog.Logger
	nodes   *storage.FileStore
	vars    variableStore
	client  *transport.Client
	orch    *orchestrator.Orchestrator
	runner  *runner.Runner
	closers []func() error
}

// setup initializes the workspace and wires the stores, the script sandbox
// and the orchestrator from the loaded configuration.
func setup(ctx context.Context) (*app, error) {
	if _, err := workspace.Initialize(workspace.FolderName, os.Stderr); err != nil {
		return nil, fmt.Errorf("initialize workspace: %w", err)
	}

	// First run creates config.json after the initial read
	_ = viper.ReadInConfig()
	defaults := workspace.DefaultConfig()
	viper.SetDefault("ssl_verify", defaults.SSLVerify)
	viper.SetDefault("script_timeout", defaults.ScriptTimeout)
	viper.SetDefault("request_timeout", defaults.RequestTimeout)
	viper.SetDefault("active_environment", defaults.ActiveEnvironment)
	viper.SetDefault("log_level", defaults.LogLevel)

	level := viper.GetString("log_level")
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(logging.ParseLevel(level))

	a := &app{
		logger: logger,
		nodes:  storage.NewFileStore(workspace.FolderName),
	}

	if addr := viper.GetString("redis.addr"); addr != "" {
		rs := redis.New(addr, viper.GetString("redis.password"), viper.GetInt("redis.db"))
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
		}
		logger.Debug("using redis for environments", "addr", addr)
		a.vars = rs
		a.closers = append(a.closers, rs.Close)
	} else {
		a.vars = a.nodes
	}

	local, err := localOverrides(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load .env file: %v\n", err)
	}

	a.client = transport.NewClient()
	scripts := sandbox.New(a.client,
		sandbox.WithTimeout(duration("script_timeout", sandbox.DefaultTimeout)),
		sandbox.WithLogger(logger.With("component", "sandbox")),
	)
	a.orch = orchestrator.New(a.nodes, a.vars, a.client, scripts,
		orchestrator.WithLocalOverrides(local),
		orchestrator.WithRequestTimeout(duration("request_timeout", transport.DefaultTimeout)),
		orchestrator.WithLogger(logger.With("component", "orchestrator")),
		orchestrator.WithMetrics(orchestrator.NewMetrics(prometheus.DefaultRegisterer)),
	)
	a.runner = runner.New(a.orch, a.nodes, logger.With("component", "runner"))
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// activeEnvironment returns the --env flag value if set, else the configured
// active environment.
func activeEnvironment(flag string) string {
	if flag != "" {
		return flag
	}
	return viper.GetString("active_environment")
}

func sslVerify(insecure bool) bool {
	return viper.GetBool("ssl_verify") && !insecure
}

func duration(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// localOverrides reads the local variable tier from a dotenv file. A
// missing file yields no overrides.
func localOverrides(path string) (storage.Values, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Values{}, nil
		}
		return storage.Values{}, err
	}
	for _, k := range hostKeys {
		delete(env, k)
	}
	values := make(storage.Values, len(env))
	for k, v := range env {
		values[k] = storage.Variable{Value: v, Enabled: true}
	}
	return values, nil
}
