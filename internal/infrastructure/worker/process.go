package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Process is a running worker with piped standard streams.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code. It must
	// only be called after Stdout and Stderr have been drained.
	Wait() (int, error)
	Kill() error
}

// Launcher starts one worker process.
type Launcher func(ctx context.Context) (Process, error)

// CommandLauncher runs name with args in dir. The process is not bound to ctx;
// the supervisor decides when to kill it.
func CommandLauncher(name string, args []string, dir string) Launcher {
	return func(ctx context.Context) (Process, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmd := exec.Command(name, args...)
		cmd.Dir = dir

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", name, err)
		}
		return &commandProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
	}
}

type commandProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *commandProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *commandProcess) Stdout() io.Reader     { return p.stdout }
func (p *commandProcess) Stderr() io.Reader     { return p.stderr }

func (p *commandProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return -1, err
	}
	if p.cmd.ProcessState == nil {
		return -1, nil
	}
	return p.cmd.ProcessState.ExitCode(), nil
}

func (p *commandProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
