// Package command runs external storage tools with a deadline.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotInstalled is returned when the tool is not on PATH.
var ErrNotInstalled = errors.New("not found in PATH")

// ErrTimeout is returned when the command outlives its deadline.
var ErrTimeout = errors.New("command timed out")

// lookPath and commandContext are replaced in tests.
var (
	lookPath       = exec.LookPath
	commandContext = exec.CommandContext
)

// Run executes name with args and returns stdout. A positive timeout bounds
// the run; ctx cancellation also stops it.
func Run(ctx context.Context, log logrus.FieldLogger, timeout time.Duration, name string, args ...string) (string, error) {
	if _, err := lookPath(name); err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if log != nil {
		log.WithFields(logrus.Fields{"command": name, "args": strings.Join(args, " ")}).Debug("command run")
	}

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stdout.String(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ErrTimeout)
		}
		return stdout.String(), fmt.Errorf("command: %s %s - stderr: %s - error: %w",
			name, strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}

	return stdout.String(), nil
}
