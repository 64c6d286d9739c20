package port

import (
	"context"
	"os"
)

// Spec describes a single child invocation. Interpreter is the argv
// prefix the command text is appended to (e.g. {"/bin/bash", "-c"}).
// Env entries are merged over the parent environment, later entries
// winning. WantStdin requests a stdin pipe; when false Spawn leaves
// the child's stdin on the null device and Process.Stdin returns nil.
type Spec struct {
	Interpreter []string
	Command     string
	Env         map[string]string
	WantStdin   bool
}

// Process is a started child. The pipe ends are returned in blocking
// mode and are owned by the caller after Spawn; Wait blocks until the
// child exits and reaps it.
type Process interface {
	Stdin() *os.File
	Stdout() *os.File
	Wait() (int, error)
}

// Launcher abstracts child process creation so runners can be plugged
// in across packages without depending on a specific adapter
// implementation.
type Launcher interface {
	Spawn(ctx context.Context, spec Spec) (Process, error)
}
