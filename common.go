package shpipe

import "context"

// Result carries the outcome of one invocation: the child's full
// stdout, its exit code, and any unrecoverable capture or lifecycle
// error. Output always holds whatever was captured, even on failure.
type Result struct {
	Output   []byte
	ExitCode int
	Error    error
}

// Success reports whether the child exited zero and output capture
// completed without an unrecoverable read failure.
func (r Result) Success() bool {
	return r.Error == nil && r.ExitCode == 0
}

// Background is a handle to an invocation pumping on its own
// goroutine. Done receives exactly one Result. Cancel kills the child,
// which closes both pipes and unblocks the readiness wait.
type Background struct {
	Context context.Context
	Cancel  context.CancelFunc
	Done    <-chan Result
}

// Wait blocks until the background invocation finishes or the stored
// context is cancelled. It returns the underlying Result; if the
// stored context is nil it behaves like WaitWithContext(context.Background()).
func (bg *Background) Wait() Result {
	if bg == nil {
		return Result{}
	}
	ctx := bg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return bg.WaitWithContext(ctx)
}

// WaitWithContext blocks until the background invocation completes or
// ctx is cancelled. Cancellation returns a Result whose Error is
// ctx.Err().
func (bg *Background) WaitWithContext(ctx context.Context) Result {
	if bg == nil {
		return Result{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if bg.Done == nil {
		return Result{}
	}
	select {
	case res, ok := <-bg.Done:
		if !ok {
			return Result{}
		}
		return res
	case <-ctx.Done():
		return Result{Error: ctx.Err()}
	}
}
