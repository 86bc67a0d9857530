package subtree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a git command outlives its deadline.
var ErrTimeout = errors.New("subtree: git command timed out")

// Runner executes git with args in dir and returns trimmed stdout.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// RunError carries the output of a failed git command.
type RunError struct {
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *RunError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if msg == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *RunError) Unwrap() error { return e.Err }

// output returns the combined stdout and stderr of a failed command, or ""
// when err is not a RunError.
func output(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return re.Stdout + "\n" + re.Stderr
	}
	return ""
}

// ExecRunner runs the git binary through os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner returns an ExecRunner with a per-command timeout. Subtree
// splits on large histories are slow, so zero means no limit.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: git %s", ErrTimeout, strings.Join(args, " "))
		}
		return "", &RunError{Args: args, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}
