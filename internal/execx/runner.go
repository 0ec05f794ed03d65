// Package execx runs the external helper programs the restore depends on,
// such as checksum tools and the dpkg query command.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner provides an abstraction for running external commands.
type Runner interface {
	// Run executes name with args, feeding stdin when non-nil, and returns
	// standard output. A non-zero exit status is returned as an error.
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// ExecRunner implements Runner using os/exec.
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and captures its output.
func (r *ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Call is one invocation recorded by FakeRunner.
type Call struct {
	Name  string
	Args  []string
	Stdin string
}

// FakeRunner implements Runner with canned responses for testing.
type FakeRunner struct {
	// Outputs maps a command line ("name arg1 arg2") to its stdout.
	Outputs map[string]string

	// Errors maps a command line to the error it returns.
	Errors map[string]error

	// Calls records every invocation in order.
	Calls []Call
}

// NewFakeRunner creates a new FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Outputs: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

// Run returns the canned output for the command line.
func (r *FakeRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	r.Calls = append(r.Calls, Call{Name: name, Args: args, Stdin: string(stdin)})
	key := strings.Join(append([]string{name}, args...), " ")
	if err, ok := r.Errors[key]; ok {
		return nil, err
	}
	return []byte(r.Outputs[key]), nil
}
