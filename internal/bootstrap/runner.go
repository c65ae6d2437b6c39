package bootstrap

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Runner runs an external program to completion.
type Runner interface {
	Run(ctx context.Context, env []string, name string, args ...string) error
}

// ExecRunner runs programs with os/exec, inheriting the environment plus env.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
}

func (r ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Dir = r.Dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

// ExitCode returns the exit status carried by err: 0 for nil, the process
// status for a finished command and -1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
