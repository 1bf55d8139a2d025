package command

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/prashantv/gostub"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(script string) func(context.Context, string, ...string) *exec.Cmd {
	return func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
}

func found(string) (string, error) { return "/usr/bin/tool", nil }

func TestRun(t *testing.T) {
	stubs := gostub.Stub(&lookPath, found)
	defer stubs.Reset()
	stubs.Stub(&commandContext, shell("echo out; echo err >&2"))

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	out, err := Run(context.Background(), log, time.Second, "tool", "-a", "b")
	require.NoError(t, err)
	assert.Equal(t, "out\n", out)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "tool", entry.Data["command"])
	assert.Equal(t, "-a b", entry.Data["args"])
}

func TestRunFailure(t *testing.T) {
	stubs := gostub.Stub(&lookPath, found)
	defer stubs.Reset()
	stubs.Stub(&commandContext, shell("echo partial; echo broken >&2; exit 3"))

	out, err := Run(context.Background(), nil, 0, "tool")
	require.Error(t, err)
	assert.Equal(t, "partial\n", out)
	assert.Contains(t, err.Error(), "broken")

	var exitErr *exec.ExitError
	assert.True(t, errors.As(err, &exitErr))
}

func TestRunTimeout(t *testing.T) {
	stubs := gostub.Stub(&lookPath, found)
	defer stubs.Reset()
	stubs.Stub(&commandContext, shell("exec sleep 5"))

	_, err := Run(context.Background(), nil, 50*time.Millisecond, "tool")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRunNotInstalled(t *testing.T) {
	stubs := gostub.Stub(&lookPath, func(string) (string, error) { return "", exec.ErrNotFound })
	defer stubs.Reset()

	_, err := Run(context.Background(), nil, 0, "storcli")
	assert.ErrorIs(t, err, ErrNotInstalled)
}
