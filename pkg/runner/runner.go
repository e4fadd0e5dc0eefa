// Package runner executes every request below a collection or folder in
// tree order, the way a collection run does in the UI.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/blackcoderx/hive/pkg/logging"
	"github.com/blackcoderx/hive/pkg/orchestrator"
	"github.com/blackcoderx/hive/pkg/storage"
)

// Executor sends one request node.
type Executor interface {
	Execute(ctx context.Context, nodeID, activeEnvID string, sslVerify bool) (*orchestrator.Result, error)
}

// Tree reads the workspace tree.
type Tree interface {
	Node(ctx context.Context, id string) (*storage.Node, error)
	Children(ctx context.Context, parentID string) ([]storage.Node, error)
}

// Params defines one run.
type Params struct {
	RootID            string
	EnvironmentID     string
	SSLVerify         bool
	StopOnFailure     bool
	RequestsPerSecond int // 0 means unlimited
}

// RequestResult is the outcome of one request in a run.
type RequestResult struct {
	NodeID     string        `json:"node_id"`
	Name       string        `json:"name"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Console    []string      `json:"console,omitempty"`
}

// RunResult summarises a run.
type RunResult struct {
	Name      string          `json:"name"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Total     int             `json:"total"`
	Passed    int             `json:"passed"`
	Failed    int             `json:"failed"`
	Requests  []RequestResult `json:"requests"`
}

// Runner runs collections.
type Runner struct {
	exec   Executor
	tree   Tree
	logger *slog.Logger
}

// New creates a runner.
func New(exec Executor, tree Tree, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{exec: exec, tree: tree, logger: logger}
}

// Run executes the requests below params.RootID depth-first in sibling
// order. Request failures are recorded in the result; the error return is
// for tree reads and context cancellation.
func (r *Runner) Run(ctx context.Context, params Params) (*RunResult, error) {
	root, err := r.tree.Node(ctx, params.RootID)
	if err != nil {
		return nil, fmt.Errorf("load run root: %w", err)
	}

	requests, err := r.collect(ctx, root)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if params.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(params.RequestsPerSecond), 1)
	}

	result := &RunResult{
		Name:      root.Name,
		StartTime: time.Now(),
		Total:     len(requests),
		Requests:  make([]RequestResult, 0, len(requests)),
	}

	for _, node := range requests {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		rr := r.runOne(ctx, node, params)
		result.Requests = append(result.Requests, rr)
		if rr.Passed {
			result.Passed++
			continue
		}
		result.Failed++
		if params.StopOnFailure {
			r.logger.Info("run stopped on failure", "node_id", node.ID)
			break
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result, nil
}

func (r *Runner) runOne(ctx context.Context, node storage.Node, params Params) RequestResult {
	start := time.Now()
	rr := RequestResult{NodeID: node.ID, Name: node.Name, Passed: true}

	res, err := r.exec.Execute(ctx, node.ID, params.EnvironmentID, params.SSLVerify)
	rr.Duration = time.Since(start)
	if res != nil {
		rr.Console = res.Console
		if res.Response != nil {
			rr.StatusCode = res.Response.Status
		}
	}

	switch {
	case err != nil:
		rr.Passed = false
		rr.Error = err.Error()
	case res.ScriptError != "":
		rr.Passed = false
		rr.Error = "pre-request script: " + res.ScriptError
	case res.TransportError != "":
		rr.Passed = false
		rr.Error = "request failed: " + res.TransportError
	case len(res.PostErrors) > 0:
		rr.Passed = false
		rr.Error = "post-request script: " + strings.Join(res.PostErrors, "; ")
	}
	return rr
}

// collect lists request nodes below root depth-first.
func (r *Runner) collect(ctx context.Context, root *storage.Node) ([]storage.Node, error) {
	if root.Kind == storage.KindRequest {
		return []storage.Node{*root}, nil
	}

	var out []storage.Node
	seen := map[string]bool{root.ID: true}
	var walk func(parentID string, depth int) error
	walk = func(parentID string, depth int) error {
		if depth > 64 {
			return errors.New("collection tree too deep")
		}
		children, err := r.tree.Children(ctx, parentID)
		if err != nil {
			return fmt.Errorf("list children of %s: %w", parentID, err)
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			if child.Kind == storage.KindRequest {
				out = append(out, child)
				continue
			}
			if err := walk(child.ID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root.ID, 1); err != nil {
		return nil, err
	}
	return out, nil
}

// Format renders a run summary for display.
func Format(result *RunResult) string {
	var sb strings.Builder

	if result.Failed == 0 {
		sb.WriteString(fmt.Sprintf("✓ Run: %s - ALL PASSED\n", result.Name))
	} else {
		sb.WriteString(fmt.Sprintf("✗ Run: %s - FAILURES DETECTED\n", result.Name))
	}
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	sb.WriteString(fmt.Sprintf("Total: %d requests\n", result.Total))
	sb.WriteString(fmt.Sprintf("Passed: %d\n", result.Passed))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", result.Failed))
	if skipped := result.Total - result.Passed - result.Failed; skipped > 0 {
		sb.WriteString(fmt.Sprintf("Skipped: %d\n", skipped))
	}
	sb.WriteString(fmt.Sprintf("Duration: %v\n\n", result.Duration.Round(time.Millisecond)))

	for i, req := range result.Requests {
		mark := "✓"
		if !req.Passed {
			mark = "✗"
		}
		sb.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, mark, req.Name))
		sb.WriteString(fmt.Sprintf("   Status: %d | Duration: %v\n", req.StatusCode, req.Duration.Round(time.Millisecond)))
		if req.Error != "" {
			sb.WriteString(fmt.Sprintf("   Error: %s\n", req.Error))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// Save writes result as JSON under dir and returns the file path.
func Save(dir string, result *RunResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	timestamp := result.StartTime.Format("2006-01-02-15-04-05")
	safeName := strings.ToLower(strings.NewReplacer(" ", "-", "/", "-", "\\", "-").Replace(result.Name))
	if safeName == "" {
		safeName = "run"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", safeName, timestamp))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0644)
}
