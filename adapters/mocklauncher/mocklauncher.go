// Package mocklauncher provides a scripted, in-process port.Launcher
// so drivers can be tested without spawning real children.
package mocklauncher

import (
	"context"
	"errors"
	"os"
	"sync"

	"pkt.systems/shpipe/port"
)

// Script is the body of a fake child. It receives the read end of the
// stdin pipe (nil when the Spec did not request stdin) and the write
// end of the stdout pipe; the harness closes both when the script
// returns, which is what makes the pump terminate.
type Script func(stdin *os.File, stdout *os.File)

type scripted struct {
	script Script
	exit   int
}

// Launcher is a thread-safe mock implementation of port.Launcher.
// Each Spawn consumes the next queued child and records the Spec.
type Launcher struct {
	mu      sync.Mutex
	scripts []scripted
	Calls   int
	Specs   []port.Spec
}

var _ port.Launcher = (*Launcher)(nil)

// New constructs a Launcher with no scripted children.
func New() *Launcher {
	return &Launcher{}
}

// Expect queues one fake child that runs script and then reports exit
// code. Returns the launcher for chaining.
func (l *Launcher) Expect(code int, script Script) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scripts = append(l.scripts, scripted{script: script, exit: code})
	return l
}

// Remaining returns the number of queued children not yet consumed.
func (l *Launcher) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.scripts)
}

// Spawn records the call and starts the next scripted child on a
// goroutine over real pipe pairs.
func (l *Launcher) Spawn(_ context.Context, spec port.Spec) (port.Process, error) {
	l.mu.Lock()
	l.Calls++
	l.Specs = append(l.Specs, spec)
	if len(l.scripts) == 0 {
		l.mu.Unlock()
		return nil, errors.New("mocklauncher: no scripted child queued")
	}
	next := l.scripts[0]
	l.scripts = l.scripts[1:]
	l.mu.Unlock()

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	var stdinR, stdinW *os.File
	if spec.WantStdin {
		stdinR, stdinW, err = os.Pipe()
		if err != nil {
			stdoutR.Close()
			stdoutW.Close()
			return nil, err
		}
	}
	p := &process{
		stdin:  stdinW,
		stdout: stdoutR,
		exit:   next.exit,
		done:   make(chan struct{}),
	}
	go func() {
		next.script(stdinR, stdoutW)
		stdoutW.Close()
		if stdinR != nil {
			stdinR.Close()
		}
		close(p.done)
	}()
	return p, nil
}

type process struct {
	stdin  *os.File
	stdout *os.File
	exit   int
	done   chan struct{}
}

func (p *process) Stdin() *os.File  { return p.stdin }
func (p *process) Stdout() *os.File { return p.stdout }

// Wait blocks until the script returns, then reports the canned exit
// code.
func (p *process) Wait() (int, error) {
	<-p.done
	return p.exit, nil
}
