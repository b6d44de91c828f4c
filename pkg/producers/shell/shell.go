// Package shell runs the external tools that CLI-backed producers (toggles,
// lock keys, GPU temperature, volume) query and drive.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Commander runs external commands. Producers depend on this interface so
// tests can substitute canned output.
type Commander interface {
	// Output runs argv and returns its standard output.
	Output(ctx context.Context, argv []string) (string, error)

	// Run executes cmdline through /bin/sh, discarding its output.
	Run(ctx context.Context, cmdline string) error
}

// Exec is the os/exec backed Commander.
type Exec struct{}

// Output runs argv[0] with the remaining arguments.
func (Exec) Output(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", argv[0], err)
	}
	return string(out), nil
}

// Run executes cmdline with sh -c.
func (Exec) Run(ctx context.Context, cmdline string) error {
	if strings.TrimSpace(cmdline) == "" {
		return errors.New("empty command")
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("sh -c %q: %w: %s", cmdline, err, msg)
		}
		return fmt.Errorf("sh -c %q: %w", cmdline, err)
	}
	return nil
}

// Fields splits a command line on whitespace into argv. It does not handle
// quoting; use Run for anything that needs a shell.
func Fields(cmdline string) []string {
	return strings.Fields(cmdline)
}
