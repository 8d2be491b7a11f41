package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/steward-sh/steward/internal/logging"
)

// Runner abstracts host command execution so provisioning steps can be
// exercised in tests without touching the system.
type Runner interface {
	// Run executes a command, streaming nothing; returns an error including
	// captured stderr on failure.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a command and returns trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
	// LookPath reports whether a binary is on PATH.
	LookPath(name string) bool
}

// Exec runs commands on the real host.
type Exec struct {
	log *logging.Logger
}

// NewExec creates a host command runner.
func NewExec(log *logging.Logger) *Exec {
	return &Exec{log: log}
}

func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	e.log.Debug("exec", "cmd", name, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

func (e *Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	e.log.Debug("exec", "cmd", name, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (e *Exec) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
