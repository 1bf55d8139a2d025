//go:build linux

package ledctl

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/lsm"
)

func pathController(t *testing.T, sess *fakeSession) (*Controller, *fakeConnector, *fakeLocal) {
	t.Helper()

	fs := afero.NewMemMapFs()
	for _, dir := range []string{"/sys/block/sda/sda1", "/sys/block/sda/sda2", "/sys/block/sdb"} {
		require.NoError(t, fs.MkdirAll(dir, 0o755))
	}

	c, conn, local := newController(sess)
	c.Resolver = &blkdev.Resolver{Fs: fs}
	return c, conn, local
}

func TestEnableDisableBySDPath(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}},
		caps: map[string]lsm.CapabilitySet{
			"r": lsm.NewCapabilitySet(lsm.CapSysModeGet, lsm.CapVolumes, lsm.CapVolumeLED, lsm.CapVolumeSDPathGet),
		},
		volumes: map[string][]lsm.Volume{
			"r": {
				{ID: "v0", SystemID: "r"},
				{ID: "v1", SystemID: "r", SDPath: "/dev/sdb"},
				{ID: "v2", SystemID: "r", SDPath: "/dev/sda"},
			},
		},
	}
	c, conn, _ := pathController(t, sess)
	ctx := context.Background()

	require.NoError(t, c.EnableLocateLED(ctx, "sim://", "/dev/sda2"))
	require.NoError(t, c.DisableLocateLED(ctx, "sim://", "/dev/sda"))

	assert.Equal(t, []string{"v2"}, sess.ledOn)
	assert.Equal(t, []string{"v2"}, sess.ledOff)
	assert.Empty(t, conn.password)
	assert.Equal(t, 2, sess.closes)
}

func TestEnableBySDPathHBA(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{{ID: "h", Mode: lsm.ModeHBA}},
		caps: map[string]lsm.CapabilitySet{
			"h": lsm.NewCapabilitySet(lsm.CapSysModeGet, lsm.CapDisks, lsm.CapDiskLED, lsm.CapDiskSDPathGet),
		},
		disks: map[string][]lsm.Disk{"h": {{ID: "0:1", SDPath: "/dev/sdb"}}},
	}
	c, _, local := pathController(t, sess)

	require.NoError(t, c.EnableLocateLED(context.Background(), "sim://", "/dev/sdb"))
	assert.Equal(t, []string{"/dev/sdb"}, local.on)
}

func TestEnableBySDPathNeedsPathCapability(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}},
		caps:    map[string]lsm.CapabilitySet{"r": raidCaps},
		volumes: map[string][]lsm.Volume{"r": {{ID: "v0", SDPath: "/dev/sda"}}},
	}
	c, _, _ := pathController(t, sess)

	err := c.EnableLocateLED(context.Background(), "sim://", "/dev/sda")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Empty(t, sess.ledOn)
	assert.Equal(t, 1, sess.closes)
}

func TestEnableUnknownDevice(t *testing.T) {
	sess := &fakeSession{systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}}}
	c, _, _ := pathController(t, sess)
	log, _ := test.NewNullLogger()
	c.Log = log

	err := c.EnableLocateLED(context.Background(), "sim://", "/dev/nvme0n1")
	assert.ErrorIs(t, err, unix.ENOENT)
	assert.Equal(t, 1, sess.closes)
}

func TestEnableWithoutResolver(t *testing.T) {
	sess := &fakeSession{systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}}}
	c, _, _ := newController(sess)
	require.Nil(t, c.Resolver)

	var err error
	require.NotPanics(t, func() {
		err = c.EnableLocateLED(context.Background(), "sim://", "/dev/.")
	})
	assert.ErrorIs(t, err, unix.EINVAL)
	assert.Equal(t, 1, sess.closes)
}
