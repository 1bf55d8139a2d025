// Package localdisk acts on a disk through its OS device node: it reads the
// disk's VPD-83 identifier from sysfs and drives its enclosure slot's locate
// LED, either through the kernel enclosure class or through sg_ses.
package localdisk

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/command"
)

// Common errors
var (
	ErrNoIdentifier = errors.New("disk reports no vpd83 identifier")
	ErrNoEnclosure  = errors.New("disk is not in an enclosure slot")
	ErrNoSGDevice   = errors.New("sg device for enclosure not found")
)

// runSgSes is replaced in tests.
var runSgSes = func(ctx context.Context, log logrus.FieldLogger, timeout time.Duration, args ...string) (string, error) {
	return command.Run(ctx, log, timeout, "sg_ses", args...)
}

// Manager performs local disk operations against the device tree under Root.
type Manager struct {
	Root     string
	Fs       afero.Fs
	Resolver *blkdev.Resolver
	Log      logrus.FieldLogger
	Timeout  time.Duration
}

// New returns a Manager over the host filesystem rooted at root.
func New(root string, log logrus.FieldLogger) *Manager {
	fs := afero.NewOsFs()
	return &Manager{
		Root:     root,
		Fs:       fs,
		Resolver: &blkdev.Resolver{Root: root, Fs: fs},
		Log:      log,
	}
}

func (m *Manager) devicePath(base string, elem ...string) string {
	return filepath.Join(append([]string{m.Root, "/", "sys/block", base, "device"}, elem...)...)
}

func (m *Manager) logger() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}

// slot is an enclosure slot holding a disk.
type slot struct {
	entry  string // enclosure_device:<component> link under the disk's device dir
	number int
}
