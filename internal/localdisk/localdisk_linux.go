//go:build linux

package localdisk

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/lsm"
)

// VPD83 returns the SCSI page 0x83 identifier of the disk holding devPath,
// as the kernel reports it in device/wwid without the naa. prefix.
func (m *Manager) VPD83(_ context.Context, devPath string) (string, error) {
	base, err := m.Resolver.BaseDevice(devPath)
	if err != nil {
		return "", err
	}

	data, err := afero.ReadFile(m.Fs, m.devicePath(base, "wwid"))
	if err != nil {
		return "", err
	}

	wwid := strings.TrimPrefix(strings.TrimSpace(string(data)), "naa.")
	if wwid == "" {
		return "", fmt.Errorf("%s: %w: %w", base, ErrNoIdentifier, unix.ENODATA)
	}
	return wwid, nil
}

// SDPath returns the whole-disk device node of devPath.
func (m *Manager) SDPath(devPath string) (string, error) {
	base, err := m.Resolver.BaseDevice(devPath)
	if err != nil {
		return "", err
	}
	return blkdev.DevPrefix + blkdev.DisplayName(base), nil
}

func (m *Manager) IdentLEDOn(ctx context.Context, devPath string) error {
	return m.setIdent(ctx, devPath, true)
}

func (m *Manager) IdentLEDOff(ctx context.Context, devPath string) error {
	return m.setIdent(ctx, devPath, false)
}

func (m *Manager) setIdent(ctx context.Context, devPath string, on bool) error {
	base, s, err := m.findSlot(devPath)
	if err != nil {
		return err
	}
	log := m.logger().WithFields(logrus.Fields{"device": devPath, "slot": s.number, "on": on})

	value := "0"
	if on {
		value = "1"
	}
	err = m.writeLocate(base, s, value)
	if err == nil {
		log.Debug("locate led set through enclosure class")
		return nil
	}
	log.WithError(err).Debug("enclosure locate attribute not writable, trying sg_ses")

	sg, err := m.sgDevice(base, s)
	if err != nil {
		return err
	}

	action := "--clear=ident"
	if on {
		action = "--set=ident"
	}
	out, err := runSgSes(ctx, log, m.Timeout, fmt.Sprintf("--dev-slot-num=%d", s.number), action, sg)
	if err != nil {
		return sgSesError(out, err)
	}
	log.WithField("sg_device", sg).Info("locate led set through sg_ses")
	return nil
}

// IdentLEDStatus reports the locate LED of the slot holding devPath.
func (m *Manager) IdentLEDStatus(ctx context.Context, devPath string) (lsm.LEDStatus, error) {
	base, s, err := m.findSlot(devPath)
	if err != nil {
		return lsm.LEDUnknown, err
	}

	if data, err := afero.ReadFile(m.Fs, m.devicePath(base, s.entry, "locate")); err == nil {
		return parseLED(string(data)), nil
	}

	sg, err := m.sgDevice(base, s)
	if err != nil {
		return lsm.LEDUnknown, err
	}
	out, err := runSgSes(ctx, m.logger(), m.Timeout, fmt.Sprintf("--dev-slot-num=%d", s.number), "--get=ident", sg)
	if err != nil {
		return lsm.LEDUnknown, sgSesError(out, err)
	}
	return parseLED(out), nil
}

// findSlot returns the base device of devPath and the enclosure slot it sits in.
func (m *Manager) findSlot(devPath string) (string, slot, error) {
	base, err := m.Resolver.BaseDevice(devPath)
	if err != nil {
		return "", slot{}, err
	}

	entries, err := afero.ReadDir(m.Fs, m.devicePath(base))
	if err != nil {
		return "", slot{}, err
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "enclosure_device:") {
			continue
		}
		s := slot{entry: entry.Name(), number: -1}

		// Newer kernels expose the slot number directly
		if data, err := afero.ReadFile(m.Fs, m.devicePath(base, entry.Name(), "slot")); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				s.number = n
			}
		}
		if s.number < 0 {
			s.number = trailingNumber(strings.TrimPrefix(entry.Name(), "enclosure_device:"))
		}
		if s.number < 0 {
			continue
		}
		return base, s, nil
	}

	return "", slot{}, fmt.Errorf("%s: %w: %w", base, ErrNoEnclosure, unix.EOPNOTSUPP)
}

func (m *Manager) writeLocate(base string, s slot, value string) error {
	f, err := m.Fs.OpenFile(m.devicePath(base, s.entry, "locate"), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// sgDevice finds the generic SCSI node of the enclosure that owns slot s.
// The path is built by concatenation so the OS resolves ".." after following
// the enclosure_device link rather than lexically.
func (m *Manager) sgDevice(base string, s slot) (string, error) {
	dir := m.devicePath(base) + "/" + s.entry + "/../device/scsi_generic"
	entries, err := afero.ReadDir(m.Fs, dir)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", base, ErrNoSGDevice, err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "sg") {
			return "/dev/" + entry.Name(), nil
		}
	}
	return "", fmt.Errorf("%s: %w", base, ErrNoSGDevice)
}

func sgSesError(out string, err error) error {
	lower := strings.ToLower(out + " " + err.Error())
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "operation not permitted") {
		return fmt.Errorf("sg_ses: %w", unix.EACCES)
	}
	return fmt.Errorf("sg_ses failed: %w", err)
}

func parseLED(s string) lsm.LEDStatus {
	switch strings.TrimSpace(s) {
	case "1":
		return lsm.LEDOn
	case "0":
		return lsm.LEDOff
	}
	return lsm.LEDUnknown
}

// trailingNumber returns the decimal suffix of name ("Slot03" -> 3), or -1.
func trailingNumber(name string) int {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return -1
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return -1
	}
	return n
}
