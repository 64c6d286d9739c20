//go:build unix

// Package shpipe runs a shell command while simultaneously feeding its
// stdin from a byte slice and draining its stdout into a buffer, from
// a single poll(2)-driven readiness loop. The call returns once the
// child closes stdout and has been reaped.
//
//	out, ok := shpipe.Run(ctx, "tr a-z A-Z", []byte("hello\n"), nil)
//
// A child that forks descendants inheriting the pipes can keep the
// stdout read end open after exiting; such an invocation blocks until
// the last inheritor closes it. That is a known limitation, not
// handled here.
package shpipe

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pkt.systems/shpipe/adapters/shelllauncher"
	"pkt.systems/shpipe/port"
)

// Run executes command under the configured interpreter (from
// WithConfig on the context, else /bin/bash -c), feeding input to the
// child's stdin and returning its captured stdout. A nil input leaves
// the child's stdin on the null device. ok is true iff the child
// exited zero and no unrecoverable read failure occurred; the captured
// output is returned either way.
func Run(ctx context.Context, command string, input []byte, env map[string]string) ([]byte, bool) {
	res := RunResult(ctx, command, input, env)
	return res.Output, res.Success()
}

// RunResult is Run returning the full Result.
func RunResult(ctx context.Context, command string, input []byte, env map[string]string) Result {
	return RunWith(ctx, shelllauncher.Default, configFromContext(ctx), command, input, env)
}

// RunWith executes command through launcher using cfg. env is merged
// over cfg.Env, both merged over the parent environment by the
// launcher. The write side streams input chunk by chunk, surviving
// broken pipes; the read side drains stdout until the child closes it;
// the child is then reaped and its exit code folded into the Result.
func RunWith(ctx context.Context, launcher port.Launcher, cfg Config, command string, input []byte, env map[string]string) Result {
	if launcher == nil {
		return Result{ExitCode: -1, Error: ERR_NIL_LAUNCHER}
	}
	if command == "" {
		return Result{ExitCode: -1, Error: ERR_EMPTY_COMMAND}
	}
	cfg = cfg.withDefaults()
	logger := cfg.traceLogger().With(zap.String("run", uuid.NewString()))

	proc, err := launcher.Spawn(ctx, port.Spec{
		Interpreter: cfg.Interpreter,
		Command:     command,
		Env:         mergeEnv(cfg.Env, env),
		WantStdin:   input != nil,
	})
	if err != nil {
		return Result{ExitCode: -1, Error: fmt.Errorf("spawn: %w", err)}
	}
	logger.Debug("spawned", zap.String("command", command), zap.Int("input", len(input)))

	var res Result
	res.Output, res.Error = pump(proc.Stdin(), proc.Stdout(), input, logger)

	// Reap unconditionally; no zombie is left even on a read failure.
	code, waitErr := proc.Wait()
	res.ExitCode = code
	if res.Error == nil && waitErr != nil {
		res.Error = fmt.Errorf("wait: %w", waitErr)
	}
	logger.Debug("done", zap.Int("exit", code), zap.Int("output", len(res.Output)), zap.Error(res.Error))
	return res
}

// Start launches command and runs the pump on a background goroutine,
// reporting completion through the returned handle's Done channel.
// Cancelling the handle (or parentCtx) kills the child, which closes
// both pipes and unblocks the pump.
func Start(parentCtx context.Context, launcher port.Launcher, cfg Config, command string, input []byte, env map[string]string) (*Background, error) {
	if launcher == nil {
		return nil, ERR_NIL_LAUNCHER
	}
	if command == "" {
		return nil, ERR_EMPTY_COMMAND
	}
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	done := make(chan Result, 1)
	go func() {
		done <- RunWith(ctx, launcher, cfg, command, input, env)
		close(done)
		cancel()
	}()
	return &Background{
		Context: ctx,
		Cancel:  cancel,
		Done:    done,
	}, nil
}

func mergeEnv(base, overrides map[string]string) map[string]string {
	if len(base) == 0 {
		return overrides
	}
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
