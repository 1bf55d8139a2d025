//go:build !linux

package localdisk

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/sigreer/blkdevctl/internal/lsm"
)

func (m *Manager) VPD83(context.Context, string) (string, error) {
	return "", unix.EOPNOTSUPP
}

func (m *Manager) SDPath(string) (string, error) {
	return "", unix.EOPNOTSUPP
}

func (m *Manager) IdentLEDOn(context.Context, string) error {
	return unix.EOPNOTSUPP
}

func (m *Manager) IdentLEDOff(context.Context, string) error {
	return unix.EOPNOTSUPP
}

func (m *Manager) IdentLEDStatus(context.Context, string) (lsm.LEDStatus, error) {
	return lsm.LEDUnknown, unix.EOPNOTSUPP
}
