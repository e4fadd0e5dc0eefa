// Package sandbox runs user pre/post-request scripts in an isolated goja
// runtime. Scripts see a pm capability object and a console; nothing else
// from the host is reachable.
//
// pm.sendRequest is synchronous from the script's point of view. A script
// that calls it is executed twice: a detection run records the calls, the
// host performs them, and a replay run receives the real responses. Only the
// replay's effects are returned, though a non-idempotent computation made
// before the call still runs twice.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/blackcoderx/hive/pkg/logging"
	"github.com/blackcoderx/hive/pkg/transport"
)

// DefaultTimeout is the ceiling for script execution. A script that issues
// nested requests runs twice; both runs share the one budget, while the
// nested requests between them are bounded by the caller's context.
const DefaultTimeout = 5 * time.Second

// Phase is the side of the send a script runs on.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Sender performs nested HTTP calls for pm.sendRequest.
type Sender interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Input is one script invocation.
type Input struct {
	Script string
	// Env is the variable snapshot visible through pm.environment.get.
	Env map[string]string
	// Response is exposed as pm.response. It must be nil for the pre phase.
	Response *transport.Response
	// SSLVerify applies to nested calls.
	SSLVerify bool
}

// Result is what a script produced. A script fault is reported in Err along
// with whatever updates and console lines were recorded before it.
type Result struct {
	EnvUpdates  map[string]string
	Console     []string
	Err         string
	NestedCalls int
}

// Failed reports whether the script ended with an error.
func (r Result) Failed() bool { return r.Err != "" }

// Sandbox executes scripts.
type Sandbox struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithTimeout sets the per-phase execution ceiling.
func WithTimeout(d time.Duration) Option {
	return func(s *Sandbox) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used for bridge diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) { s.logger = l }
}

// New creates a sandbox whose nested calls go through sender.
func New(sender Sender, opts ...Option) *Sandbox {
	s := &Sandbox{
		sender:  sender,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var awaitToken = regexp.MustCompile(`\bawait\s+`)

// Run executes in.Script. It never panics and never returns a Go error:
// every failure ends up in Result.Err.
func (s *Sandbox) Run(ctx context.Context, in Input) Result {
	if strings.TrimSpace(in.Script) == "" {
		return Result{EnvUpdates: map[string]string{}}
	}

	// Top-level await is not supported by the engine and sendRequest is
	// synchronous anyway.
	src := awaitToken.ReplaceAllString(in.Script, "")

	prog, err := goja.Compile("script", src, false)
	if err != nil {
		return Result{EnvUpdates: map[string]string{}, Err: err.Error()}
	}

	capture := &capturer{}
	start := time.Now()
	detection := s.execute(ctx, prog, in, capture, s.timeout)
	if len(capture.calls) == 0 {
		return detection
	}
	remaining := s.timeout - time.Since(start)
	if remaining <= 0 {
		return detection
	}

	s.logger.Debug("script issued nested requests", "count", len(capture.calls))
	responses := s.bridge(ctx, capture.calls, in.SSLVerify)

	replay := s.execute(ctx, prog, in, &replayer{calls: capture.calls, responses: responses}, remaining)
	replay.NestedCalls = len(capture.calls)
	return replay
}

func (s *Sandbox) execute(ctx context.Context, prog *goja.Program, in Input, sr sendHandler, budget time.Duration) (out Result) {
	out.EnvUpdates = map[string]string{}

	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				out.Err = scriptError(err)
				return
			}
			out.Err = fmt.Sprintf("internal script error: %v", r)
		}
	}()

	vm := goja.New()

	env := newScope(vm, in, sr, &out)
	if err := env.install(); err != nil {
		out.Err = err.Error()
		return out
	}

	timer := time.AfterFunc(budget, func() {
		vm.Interrupt(fmt.Sprintf("script timed out after %s", s.timeout))
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err().Error())
	})
	defer stop()

	if _, err := vm.RunProgram(prog); err != nil {
		out.Err = scriptError(err)
	}
	return out
}

func scriptError(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	return err.Error()
}
