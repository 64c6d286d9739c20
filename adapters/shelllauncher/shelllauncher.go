//go:build unix

// Package shelllauncher starts children through os/exec with explicit
// os.Pipe ends, so callers get real file descriptors in blocking mode
// rather than exec.Cmd's copying goroutines.
package shelllauncher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sort"

	"pkt.systems/shpipe/port"
)

// Launcher implements port.Launcher on os/exec.
type Launcher struct{}

// Default is a shared instance of Launcher.
var Default port.Launcher = Launcher{}

var _ port.Launcher = Launcher{}

type process struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
}

func (p *process) Stdin() *os.File  { return p.stdin }
func (p *process) Stdout() *os.File { return p.stdout }

// Wait blocks until the child exits and reaps it. A non-zero exit is
// reported through the code, not the error.
func (p *process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return p.cmd.ProcessState.ExitCode(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ProcessState != nil {
		return exitErr.ProcessState.ExitCode(), nil
	}
	return -1, err
}

// Spawn starts spec.Command under spec.Interpreter with spec.Env
// merged over the parent environment. The child's stderr is inherited;
// stdout is always piped; stdin is piped only when spec.WantStdin,
// otherwise it stays on the null device.
func (Launcher) Spawn(ctx context.Context, spec port.Spec) (port.Process, error) {
	if len(spec.Interpreter) == 0 {
		return nil, fmt.Errorf("interpreter argv is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	argv := append(slices.Clone(spec.Interpreter), spec.Command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = mergedEnviron(spec.Env)
	cmd.Stderr = os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	var stdinR, stdinW *os.File
	if spec.WantStdin {
		stdinR, stdinW, err = os.Pipe()
		if err != nil {
			stdoutR.Close()
			stdoutW.Close()
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		cmd.Stdin = stdinR
	}

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		if spec.WantStdin {
			stdinR.Close()
			stdinW.Close()
		}
		return nil, err
	}
	// The child inherited its ends; drop our copies so EOF and broken
	// pipe propagate.
	stdoutW.Close()
	if stdinR != nil {
		stdinR.Close()
	}
	return &process{cmd: cmd, stdin: stdinW, stdout: stdoutR}, nil
}

// mergedEnviron appends overrides to os.Environ in sorted key order;
// for duplicate keys the appended entry wins.
func mergedEnviron(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
