// Package orchestrator runs one send end to end: the pre-script chain,
// variable resolution, the HTTP call, the post-script chain and persistence
// of environment updates.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/blackcoderx/hive/pkg/chain"
	"github.com/blackcoderx/hive/pkg/logging"
	"github.com/blackcoderx/hive/pkg/sandbox"
	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/blackcoderx/hive/pkg/transport"
	"github.com/blackcoderx/hive/pkg/variables"
)

// NodeStore reads the workspace tree.
type NodeStore interface {
	chain.NodeSource
	Node(ctx context.Context, id string) (*storage.Node, error)
}

// VariableStore reads and writes environment and global variables.
type VariableStore interface {
	EnvironmentValues(ctx context.Context, id string) (storage.Values, error)
	GlobalValues(ctx context.Context) (storage.Values, error)
	PersistEnvironmentUpdates(ctx context.Context, id string, updates map[string]string) error
}

// Transport performs the main HTTP call.
type Transport interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// ScriptRunner executes one script.
type ScriptRunner interface {
	Run(ctx context.Context, in sandbox.Input) sandbox.Result
}

// Result is what a send produced. Response is nil only when a pre-script
// aborted the send.
type Result struct {
	Response       *transport.Response `json:"response"`
	Console        []string            `json:"console"`
	ScriptError    string              `json:"script_error,omitempty"`
	TransportError string              `json:"transport_error,omitempty"`
	ChainFault     string              `json:"chain_fault,omitempty"`
	PostErrors     []string            `json:"post_errors,omitempty"` // "[level] msg" per failed post-script
	EnvUpdates     map[string]string   `json:"env_updates,omitempty"`
	Request        *transport.Request  `json:"request,omitempty"`
}

// Orchestrator executes sends.
type Orchestrator struct {
	nodes     NodeStore
	vars      VariableStore
	transport Transport
	scripts   ScriptRunner
	chain     *chain.Resolver

	local          storage.Values
	requestTimeout time.Duration
	logger         *slog.Logger
	metrics        *Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocalOverrides sets the highest-precedence variable tier.
func WithLocalOverrides(values storage.Values) Option {
	return func(o *Orchestrator) { o.local = values }
}

// WithRequestTimeout bounds the main HTTP call.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator.
func New(nodes NodeStore, vars VariableStore, tr Transport, scripts ScriptRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		nodes:          nodes,
		vars:           vars,
		transport:      tr,
		scripts:        scripts,
		chain:          chain.NewResolver(nodes),
		requestTimeout: transport.DefaultTimeout,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	return o
}

// Execute sends nodeID with activeEnvID as the active environment (empty for
// none). Script and transport faults are reported in the Result; the error
// return is reserved for store failures and a missing node. A failure to
// persist environment updates returns the assembled result together with
// the error.
func (o *Orchestrator) Execute(ctx context.Context, nodeID, activeEnvID string, sslVerify bool) (*Result, error) {
	start := time.Now()
	outcome := OutcomeError
	defer func() {
		o.metrics.Sends.WithLabelValues(outcome).Inc()
		o.metrics.SendDuration.Observe(time.Since(start).Seconds())
	}()

	logger := o.logger.With("node_id", nodeID, "environment_id", activeEnvID)

	// Step 1: script chain
	ch, err := o.chain.Resolve(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	node, err := o.nodes.Node(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load node %s: %w", nodeID, err)
	}

	result := &Result{Console: []string{}, EnvUpdates: map[string]string{}}
	if ch.Fault != nil {
		logger.Warn("script chain cut short", "error", ch.Fault)
		result.ChainFault = ch.Fault.Error()
	}

	// Step 2: initial snapshot
	envValues, err := o.vars.EnvironmentValues(ctx, activeEnvID)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	globalValues, err := o.vars.GlobalValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load globals: %w", err)
	}
	snapshot := variables.Merge(o.local, envValues, globalValues)

	// Step 3: pre-scripts, abort on the first fault
	for _, entry := range ch.Entries {
		if entry.Pre == "" {
			continue
		}
		res := o.runScript(ctx, sandbox.PhasePre, entry.Level, sandbox.Input{
			Script:    entry.Pre,
			Env:       snapshot,
			SSLVerify: sslVerify,
		})
		o.fold(result, snapshot, entry.Level, res)
		if res.Failed() {
			logger.Info("pre-request script aborted send", "level", entry.Level, "error", res.Err)
			result.ScriptError = res.Err
			outcome = OutcomePreAbort
			return result, nil
		}
	}

	// Step 4: resolve the request against the final pre-script snapshot
	resolve := func(s string) string { return variables.Substitute(s, snapshot) }
	req := transport.FromNode(node, resolve, sslVerify)
	result.Request = &req

	// Step 5: main HTTP call
	outcome = OutcomeOK
	callCtx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	resp, err := o.transport.Do(callCtx, req)
	cancel()
	if err != nil {
		logger.Warn("request failed", "method", req.Method, "url", req.URL, "error", err)
		result.TransportError = err.Error()
		resp = transport.FaultResponse(err)
		outcome = OutcomeTransportFault
	}
	result.Response = resp

	// Step 6: post-scripts, faults are recorded and skipped
	for _, entry := range ch.Entries {
		if entry.Post == "" {
			continue
		}
		res := o.runScript(ctx, sandbox.PhasePost, entry.Level, sandbox.Input{
			Script:    entry.Post,
			Env:       snapshot,
			Response:  resp,
			SSLVerify: sslVerify,
		})
		o.fold(result, snapshot, entry.Level, res)
		if res.Failed() {
			result.PostErrors = append(result.PostErrors, fmt.Sprintf("[%s] %s", entry.Level, res.Err))
		}
	}

	// Step 7: persist
	if activeEnvID != "" && len(result.EnvUpdates) > 0 {
		if err := o.vars.PersistEnvironmentUpdates(ctx, activeEnvID, result.EnvUpdates); err != nil {
			outcome = OutcomeError
			return result, fmt.Errorf("persist environment updates: %w", err)
		}
		logger.Debug("persisted environment updates", "count", len(result.EnvUpdates))
	}

	logger.Info("send complete", "status", resp.Status, "elapsed_ms", resp.ElapsedMs)
	return result, nil
}

func (o *Orchestrator) runScript(ctx context.Context, phase sandbox.Phase, level storage.Kind, in sandbox.Input) sandbox.Result {
	res := o.scripts.Run(ctx, in)
	status := "ok"
	if res.Failed() {
		status = "error"
	}
	o.metrics.ScriptRuns.WithLabelValues(string(phase), string(level), status).Inc()
	return res
}

// fold appends a script's console lines and applies its updates to the
// working snapshot and the accumulated update set.
func (o *Orchestrator) fold(result *Result, snapshot map[string]string, level storage.Kind, res sandbox.Result) {
	for _, line := range res.Console {
		result.Console = append(result.Console, fmt.Sprintf("[%s] %s", level, line))
	}
	if res.Failed() {
		result.Console = append(result.Console, fmt.Sprintf("[%s][ERROR] %s", level, res.Err))
	}
	maps.Copy(snapshot, res.EnvUpdates)
	maps.Copy(result.EnvUpdates, res.EnvUpdates)
}
