// Package ledctl finds the managed volume or disk behind a block device and
// drives its locate LED.
//
// Every system reachable through the endpoint is scanned in order. A system
// must report the system-mode capability or the whole call aborts. Systems in
// an unsupported mode are skipped. RAID systems are searched by volume and
// lit through the session; HBA systems are searched by disk and lit through
// the local device node. The first match receives the operation.
package ledctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/lsm"
)

// Operation is a locate LED transition or query.
type Operation string

const (
	OpLocateEnable  Operation = "locate_enable"
	OpLocateDisable Operation = "locate_disable"
	OpLocateStatus  Operation = "locate_status"
)

// Common errors
var (
	ErrInvalidOperation = errors.New("invalid locate operation")
	ErrNoModeQuery      = errors.New("system cannot report its mode")
	ErrNoListing        = errors.New("system cannot list its volumes or disks")
	ErrUnsupportedMode  = errors.New("no system in a supported mode holds the device")
	ErrNoMatch          = errors.New("no volume or disk matches the device")
)

// ParseOperation validates s.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpLocateEnable, OpLocateDisable, OpLocateStatus:
		return op, nil
	}
	return "", fmt.Errorf("%w %q: %w", ErrInvalidOperation, s, unix.EINVAL)
}

// Connector opens management sessions; *lsm.Registry satisfies it.
type Connector interface {
	Connect(ctx context.Context, uri, password string, timeout time.Duration) (lsm.Session, error)
}

// Controller runs locate LED operations.
type Controller struct {
	Connector Connector
	Local     lsm.LocalDisk
	Resolver  *blkdev.Resolver
	Timeout   time.Duration
	Log       logrus.FieldLogger
}

// UpdateLocateLED applies operation to the LED of devPath, matching managed
// volumes and disks by VPD-83. An empty uri acts on the local disk directly.
// The returned status is the LED state after the call.
func (c *Controller) UpdateLocateLED(ctx context.Context, uri, password, operation, devPath string) (lsm.LEDStatus, error) {
	op, err := ParseOperation(operation)
	if err != nil {
		return lsm.LEDUnknown, err
	}

	if uri == "" {
		c.logger().WithFields(logrus.Fields{"device": devPath, "op": op}).Debug("no endpoint, acting on local disk")
		return c.applyLocal(ctx, op, devPath)
	}

	return c.run(ctx, uri, password, op, devPath, func(ctx context.Context) (matcher, error) {
		vpd, err := c.Local.VPD83(ctx, devPath)
		if err != nil {
			return nil, fmt.Errorf("vpd83 of %s: %w", devPath, err)
		}
		return vpdMatcher{vpd: vpd}, nil
	})
}

// EnableLocateLED turns on the LED of devPath, matching candidates by the
// base device of their reported SD path.
func (c *Controller) EnableLocateLED(ctx context.Context, uri, devPath string) error {
	_, err := c.run(ctx, uri, "", OpLocateEnable, devPath, c.pathMatcher(devPath))
	return err
}

// DisableLocateLED turns off the LED of devPath, matching as EnableLocateLED.
func (c *Controller) DisableLocateLED(ctx context.Context, uri, devPath string) error {
	_, err := c.run(ctx, uri, "", OpLocateDisable, devPath, c.pathMatcher(devPath))
	return err
}

func (c *Controller) pathMatcher(devPath string) func(context.Context) (matcher, error) {
	return func(context.Context) (matcher, error) {
		r := c.resolver()
		base, err := r.BaseDevice(devPath)
		if err != nil {
			return nil, err
		}
		return pathMatcher{resolver: r, base: base}, nil
	}
}

func (c *Controller) run(ctx context.Context, uri, password string, op Operation, devPath string, newMatcher func(context.Context) (matcher, error)) (lsm.LEDStatus, error) {
	log := c.logger().WithFields(logrus.Fields{"uri": uri, "device": devPath, "op": op})

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = lsm.DefaultTimeout
	}

	sess, err := c.Connector.Connect(ctx, uri, password, timeout)
	if err != nil {
		return lsm.LEDUnknown, fmt.Errorf("connect %s: %w", uri, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.WithError(err).Warn("failed to close management session")
		}
	}()

	systems, err := sess.Systems(ctx)
	if err != nil {
		return lsm.LEDUnknown, fmt.Errorf("list systems: %w", err)
	}

	m, err := newMatcher(ctx)
	if err != nil {
		return lsm.LEDUnknown, err
	}

	unsupported := false
	for _, sys := range systems {
		sysLog := log.WithFields(logrus.Fields{"system": sys.ID, "mode": sys.Mode})

		caps, err := sess.Capabilities(ctx, sys)
		if err != nil {
			return lsm.LEDUnknown, fmt.Errorf("capabilities of system %s: %w", sys.ID, err)
		}
		if !caps.Supported(lsm.CapSysModeGet) {
			return lsm.LEDUnknown, fmt.Errorf("system %s: %w: %w", sys.ID, ErrNoModeQuery, unix.EOPNOTSUPP)
		}

		switch sys.Mode {
		case lsm.ModeHardwareRAID:
			if !caps.Supported(lsm.CapVolumes) {
				return lsm.LEDUnknown, fmt.Errorf("system %s: %w: %w", sys.ID, ErrNoListing, unix.EOPNOTSUPP)
			}
			vols, err := sess.Volumes(ctx, sys.ID)
			if err != nil {
				return lsm.LEDUnknown, fmt.Errorf("volumes of system %s: %w", sys.ID, err)
			}
			if !caps.Supported(m.volumeCap(), lsm.CapVolumeLED) {
				sysLog.Debug("system lacks volume identifier or led capability, skipping")
				continue
			}
			for _, vol := range vols {
				if m.matchVolume(vol) {
					sysLog.WithField("volume", vol.ID).Info("device matched volume")
					return c.applyVolume(ctx, sess, op, vol)
				}
			}

		case lsm.ModeHBA:
			if !caps.Supported(lsm.CapDisks) {
				return lsm.LEDUnknown, fmt.Errorf("system %s: %w: %w", sys.ID, ErrNoListing, unix.EOPNOTSUPP)
			}
			disks, err := sess.Disks(ctx, sys.ID)
			if err != nil {
				return lsm.LEDUnknown, fmt.Errorf("disks of system %s: %w", sys.ID, err)
			}
			if !caps.Supported(m.diskCap(), lsm.CapDiskLED) {
				sysLog.Debug("system lacks disk identifier or led capability, skipping")
				continue
			}
			for _, disk := range disks {
				if m.matchDisk(disk) {
					sysLog.WithField("disk", disk.ID).Info("device matched disk")
					return c.applyLocal(ctx, op, devPath)
				}
			}

		default:
			sysLog.Debug("system mode not supported, skipping")
			unsupported = true
		}
	}

	if unsupported {
		return lsm.LEDUnknown, fmt.Errorf("%s: %w: %w", devPath, ErrUnsupportedMode, unix.EOPNOTSUPP)
	}
	return lsm.LEDUnknown, fmt.Errorf("%s: %w: %w", devPath, ErrNoMatch, unix.ENODEV)
}

func (c *Controller) applyVolume(ctx context.Context, sess lsm.Session, op Operation, vol lsm.Volume) (lsm.LEDStatus, error) {
	switch op {
	case OpLocateEnable:
		return settled(lsm.LEDOn, sess.VolumeIdentLEDOn(ctx, vol))
	case OpLocateDisable:
		return settled(lsm.LEDOff, sess.VolumeIdentLEDOff(ctx, vol))
	}
	return sess.VolumeIdentLEDStatus(ctx, vol)
}

func (c *Controller) applyLocal(ctx context.Context, op Operation, devPath string) (lsm.LEDStatus, error) {
	switch op {
	case OpLocateEnable:
		return settled(lsm.LEDOn, c.Local.IdentLEDOn(ctx, devPath))
	case OpLocateDisable:
		return settled(lsm.LEDOff, c.Local.IdentLEDOff(ctx, devPath))
	}
	return c.Local.IdentLEDStatus(ctx, devPath)
}

// settled is the LED state after a transition that returned err.
func settled(status lsm.LEDStatus, err error) (lsm.LEDStatus, error) {
	if err != nil {
		return lsm.LEDUnknown, err
	}
	return status, nil
}

// resolver defaults to the live system.
func (c *Controller) resolver() *blkdev.Resolver {
	if c.Resolver == nil {
		return blkdev.NewResolver("")
	}
	return c.Resolver
}

func (c *Controller) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}
