package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Runner runs a host command and returns its stdout.
type Runner interface {
	Output(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as local processes.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

// Output runs name with args, feeding stdin if it is not nil.
func (ExecRunner) Output(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		c := name
		if len(args) > 0 {
			c += " " + strings.Join(args, " ")
		}
		if ctx.Err() != nil {
			return nil, pkgerrors.Wrapf(ctx.Err(), "command %q interrupted", c)
		}
		return nil, &CommandError{Command: c, Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	return stdout.Bytes(), nil
}

// CommandError is a command that ran and failed.
type CommandError struct {
	Command string
	Err     error
	Stderr  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("failed to run command %q: %v: %s", e.Command, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }
