package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes an external command in dir, streaming its stdout.
type Runner interface {
	Run(ctx context.Context, dir, name string, args []string, stdout io.Writer) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args []string, stdout io.Writer) error {
	cmdPath, err := exec.LookPath(name)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := lastLines(stderr.String(), 10); msg != "" {
			return fmt.Errorf("command '%s' failed: %w\nstderr: %s", name, err, msg)
		}
		return fmt.Errorf("command '%s' failed: %w", name, err)
	}
	return nil
}

// lastLines keeps the tail of ffmpeg's stderr, where the actual error is.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
