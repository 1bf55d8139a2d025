package ledctl

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sigreer/blkdevctl/internal/lsm"
	"github.com/sigreer/blkdevctl/internal/lsm/sim"
)

type fakeSession struct {
	systems []lsm.System
	caps    map[string]lsm.CapabilitySet
	volumes map[string][]lsm.Volume
	disks   map[string][]lsm.Disk

	systemsErr error
	capsErr    error
	volumesErr error
	disksErr   error

	ledOn  []string
	ledOff []string
	status lsm.LEDStatus
	closes int
}

func (s *fakeSession) Systems(context.Context) ([]lsm.System, error) {
	return s.systems, s.systemsErr
}

func (s *fakeSession) Capabilities(_ context.Context, sys lsm.System) (lsm.CapabilitySet, error) {
	if s.capsErr != nil {
		return nil, s.capsErr
	}
	return s.caps[sys.ID], nil
}

func (s *fakeSession) Volumes(_ context.Context, id string) ([]lsm.Volume, error) {
	return s.volumes[id], s.volumesErr
}

func (s *fakeSession) Disks(_ context.Context, id string) ([]lsm.Disk, error) {
	return s.disks[id], s.disksErr
}

func (s *fakeSession) VolumeIdentLEDOn(_ context.Context, v lsm.Volume) error {
	s.ledOn = append(s.ledOn, v.ID)
	return nil
}

func (s *fakeSession) VolumeIdentLEDOff(_ context.Context, v lsm.Volume) error {
	s.ledOff = append(s.ledOff, v.ID)
	return nil
}

func (s *fakeSession) VolumeIdentLEDStatus(context.Context, lsm.Volume) (lsm.LEDStatus, error) {
	return s.status, nil
}

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

type fakeConnector struct {
	sess     *fakeSession
	err      error
	calls    int
	password string
	timeout  time.Duration
}

func (c *fakeConnector) Connect(_ context.Context, _, password string, timeout time.Duration) (lsm.Session, error) {
	c.calls++
	c.password, c.timeout = password, timeout
	if c.err != nil {
		return nil, c.err
	}
	return c.sess, nil
}

type fakeLocal struct {
	vpd    map[string]string
	vpdErr error
	on     []string
	off    []string
	status lsm.LEDStatus
}

func (l *fakeLocal) VPD83(_ context.Context, dev string) (string, error) {
	if l.vpdErr != nil {
		return "", l.vpdErr
	}
	return l.vpd[dev], nil
}

func (l *fakeLocal) IdentLEDOn(_ context.Context, dev string) error {
	l.on = append(l.on, dev)
	return nil
}

func (l *fakeLocal) IdentLEDOff(_ context.Context, dev string) error {
	l.off = append(l.off, dev)
	return nil
}

func (l *fakeLocal) IdentLEDStatus(context.Context, string) (lsm.LEDStatus, error) {
	return l.status, nil
}

var (
	raidCaps = lsm.NewCapabilitySet(lsm.CapSysModeGet, lsm.CapVolumes, lsm.CapVolumeLED, lsm.CapVolumeVPD83Get)
	hbaCaps  = lsm.NewCapabilitySet(lsm.CapSysModeGet, lsm.CapDisks, lsm.CapDiskLED, lsm.CapDiskVPD83Get)
)

func newController(sess *fakeSession) (*Controller, *fakeConnector, *fakeLocal) {
	conn := &fakeConnector{sess: sess}
	local := &fakeLocal{vpd: map[string]string{"/dev/sdb": "5000c500a1b2c3d4", "/dev/sda": "600508b1001c5e0b"}}
	log, _ := test.NewNullLogger()
	return &Controller{Connector: conn, Local: local, Log: log}, conn, local
}

func TestParseOperation(t *testing.T) {
	for _, s := range []string{"locate_enable", "locate_disable", "locate_status"} {
		op, err := ParseOperation(s)
		require.NoError(t, err)
		assert.Equal(t, Operation(s), op)
	}

	_, err := ParseOperation("blink")
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.ErrorIs(t, err, unix.EINVAL)
}

func TestUpdateInvalidOperation(t *testing.T) {
	c, conn, local := newController(&fakeSession{})

	_, err := c.UpdateLocateLED(context.Background(), "sim://", "", "flash", "/dev/sdb")
	assert.ErrorIs(t, err, unix.EINVAL)
	assert.Zero(t, conn.calls)
	assert.Empty(t, local.on)

	_, err = c.UpdateLocateLED(context.Background(), "", "", "flash", "/dev/sdb")
	assert.ErrorIs(t, err, unix.EINVAL)
	assert.Empty(t, local.on)
}

func TestUpdateWithoutEndpoint(t *testing.T) {
	c, conn, local := newController(&fakeSession{})
	ctx := context.Background()

	status, err := c.UpdateLocateLED(ctx, "", "", "locate_enable", "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOn, status)

	status, err = c.UpdateLocateLED(ctx, "", "", "locate_disable", "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOff, status)

	local.status = lsm.LEDOn
	status, err = c.UpdateLocateLED(ctx, "", "", "locate_status", "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOn, status)

	assert.Equal(t, []string{"/dev/sdb"}, local.on)
	assert.Equal(t, []string{"/dev/sdb"}, local.off)
	assert.Zero(t, conn.calls)
}

func TestUnsupportedSystemThenHBA(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{
			{ID: "s1", Mode: lsm.ModeNoSupport},
			{ID: "s2", Mode: lsm.ModeHBA},
		},
		caps: map[string]lsm.CapabilitySet{
			"s1": lsm.NewCapabilitySet(lsm.CapSysModeGet),
			"s2": hbaCaps,
		},
		disks: map[string][]lsm.Disk{
			"s2": {
				{ID: "2:0", SystemID: "s2", VPD83: "5000c500ffffffff"},
				{ID: "2:1", SystemID: "s2", VPD83: "5000c500a1b2c3d4"},
			},
		},
	}
	c, conn, local := newController(sess)

	status, err := c.UpdateLocateLED(context.Background(), "sim://", "pw", "locate_enable", "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOn, status)
	assert.Equal(t, []string{"/dev/sdb"}, local.on)
	assert.Empty(t, sess.ledOn)
	assert.Equal(t, "pw", conn.password)
	assert.Equal(t, lsm.DefaultTimeout, conn.timeout)
	assert.Equal(t, 1, sess.closes)
}

func TestRAIDVolume(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{{ID: "r1", Mode: lsm.ModeHardwareRAID}},
		caps:    map[string]lsm.CapabilitySet{"r1": raidCaps},
		volumes: map[string][]lsm.Volume{
			"r1": {
				{ID: "v0", SystemID: "r1", VPD83: "600508b1001c0000"},
				{ID: "v1", SystemID: "r1", VPD83: "600508b1001c5e0b"},
				{ID: "v2", SystemID: "r1", VPD83: "600508b1001c5e0b"},
			},
		},
		status: lsm.LEDOn,
	}
	c, _, local := newController(sess)
	ctx := context.Background()

	status, err := c.UpdateLocateLED(ctx, "sim://", "", "locate_enable", "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOn, status)

	status, err = c.UpdateLocateLED(ctx, "sim://", "", "locate_disable", "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOff, status)

	status, err = c.UpdateLocateLED(ctx, "sim://", "", "locate_status", "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOn, status)

	// duplicates resolve to the first volume in enumeration order
	assert.Equal(t, []string{"v1"}, sess.ledOn)
	assert.Equal(t, []string{"v1"}, sess.ledOff)
	assert.Empty(t, local.on)
	assert.Equal(t, 3, sess.closes)
}

func TestMissingModeQueryAborts(t *testing.T) {
	tests := []struct {
		name    string
		systems []lsm.System
		caps    map[string]lsm.CapabilitySet
	}{
		{
			name:    "first system",
			systems: []lsm.System{{ID: "a", Mode: lsm.ModeHBA}, {ID: "b", Mode: lsm.ModeHBA}},
			caps: map[string]lsm.CapabilitySet{
				"a": lsm.NewCapabilitySet(lsm.CapDisks, lsm.CapDiskLED, lsm.CapDiskVPD83Get),
				"b": hbaCaps,
			},
		},
		{
			name:    "after unsupported system",
			systems: []lsm.System{{ID: "a", Mode: lsm.ModeNoSupport}, {ID: "b", Mode: lsm.ModeHBA}},
			caps: map[string]lsm.CapabilitySet{
				"a": lsm.NewCapabilitySet(lsm.CapSysModeGet),
				"b": lsm.NewCapabilitySet(lsm.CapDisks),
			},
		},
		{
			name:    "after non-matching system",
			systems: []lsm.System{{ID: "a", Mode: lsm.ModeHardwareRAID}, {ID: "b", Mode: lsm.ModeHBA}},
			caps: map[string]lsm.CapabilitySet{
				"a": raidCaps,
				"b": lsm.CapabilitySet{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{
				systems: tt.systems,
				caps:    tt.caps,
				disks:   map[string][]lsm.Disk{"a": {{ID: "0", VPD83: "5000c500a1b2c3d4"}}},
			}
			c, _, local := newController(sess)

			_, err := c.UpdateLocateLED(context.Background(), "sim://", "", "locate_enable", "/dev/sdb")
			assert.ErrorIs(t, err, ErrNoModeQuery)
			assert.ErrorIs(t, err, unix.EOPNOTSUPP)
			assert.Empty(t, local.on)
			assert.Equal(t, 1, sess.closes)
		})
	}
}

func TestMissingListingAborts(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}, {ID: "h", Mode: lsm.ModeHBA}},
		caps: map[string]lsm.CapabilitySet{
			"r": lsm.NewCapabilitySet(lsm.CapSysModeGet, lsm.CapVolumeLED),
			"h": hbaCaps,
		},
		disks: map[string][]lsm.Disk{"h": {{ID: "0", VPD83: "5000c500a1b2c3d4"}}},
	}
	c, _, local := newController(sess)

	_, err := c.UpdateLocateLED(context.Background(), "sim://", "", "locate_enable", "/dev/sdb")
	assert.ErrorIs(t, err, ErrNoListing)
	assert.ErrorIs(t, err, unix.EOPNOTSUPP)
	assert.Empty(t, local.on)
}

func TestSkipSystemWithoutLEDCapability(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}, {ID: "h", Mode: lsm.ModeHBA}},
		caps: map[string]lsm.CapabilitySet{
			"r": lsm.NewCapabilitySet(lsm.CapSysModeGet, lsm.CapVolumes, lsm.CapVolumeVPD83Get),
			"h": hbaCaps,
		},
		volumes: map[string][]lsm.Volume{"r": {{ID: "v0", VPD83: "5000c500a1b2c3d4"}}},
		disks:   map[string][]lsm.Disk{"h": {{ID: "0", VPD83: "5000c500a1b2c3d4"}}},
	}
	c, _, local := newController(sess)

	status, err := c.UpdateLocateLED(context.Background(), "sim://", "", "locate_disable", "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOff, status)
	assert.Empty(t, sess.ledOff)
	assert.Equal(t, []string{"/dev/sdb"}, local.off)
}

func TestNoMatch(t *testing.T) {
	sess := &fakeSession{
		systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}},
		caps:    map[string]lsm.CapabilitySet{"r": raidCaps},
		volumes: map[string][]lsm.Volume{"r": {{ID: "v0", VPD83: "600508b1001c0000"}, {ID: "v1"}}},
	}
	c, _, _ := newController(sess)

	_, err := c.UpdateLocateLED(context.Background(), "sim://", "", "locate_enable", "/dev/sdb")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.ErrorIs(t, err, unix.ENODEV)
	assert.Equal(t, -int(unix.ENODEV), codeOf(err))

	sess.systems = append(sess.systems, lsm.System{ID: "x", Mode: lsm.ModeNoSupport})
	sess.caps["x"] = lsm.NewCapabilitySet(lsm.CapSysModeGet)
	_, err = c.UpdateLocateLED(context.Background(), "sim://", "", "locate_enable", "/dev/sdb")
	assert.ErrorIs(t, err, ErrUnsupportedMode)
	assert.ErrorIs(t, err, unix.EOPNOTSUPP)

	sess.systems = nil
	_, err = c.UpdateLocateLED(context.Background(), "sim://", "", "locate_enable", "/dev/sdb")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func codeOf(err error) int {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return 0
}

func TestSessionClosedOnce(t *testing.T) {
	boom := errors.New("boom")
	base := func() *fakeSession {
		return &fakeSession{
			systems: []lsm.System{{ID: "r", Mode: lsm.ModeHardwareRAID}, {ID: "h", Mode: lsm.ModeHBA}},
			caps:    map[string]lsm.CapabilitySet{"r": raidCaps, "h": hbaCaps},
			volumes: map[string][]lsm.Volume{"r": {{ID: "v0", VPD83: "600508b1001c0000"}}},
			disks:   map[string][]lsm.Disk{"h": {{ID: "0", VPD83: "5000c500a1b2c3d4"}}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*fakeSession, *fakeLocal)
		wantErr error
	}{
		{"success", func(*fakeSession, *fakeLocal) {}, nil},
		{"systems fail", func(s *fakeSession, _ *fakeLocal) { s.systemsErr = boom }, boom},
		{"capabilities fail", func(s *fakeSession, _ *fakeLocal) { s.capsErr = boom }, boom},
		{"volumes fail", func(s *fakeSession, _ *fakeLocal) { s.volumesErr = boom }, boom},
		{"disks fail", func(s *fakeSession, _ *fakeLocal) { s.disksErr = boom }, boom},
		{"vpd fail", func(_ *fakeSession, l *fakeLocal) { l.vpdErr = boom }, boom},
		{"mode query missing", func(s *fakeSession, _ *fakeLocal) { s.caps["h"] = lsm.CapabilitySet{} }, ErrNoModeQuery},
		{"no match", func(s *fakeSession, _ *fakeLocal) { s.disks = nil }, ErrNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := base()
			c, _, local := newController(sess)
			tt.mutate(sess, local)

			_, err := c.UpdateLocateLED(context.Background(), "sim://", "", "locate_enable", "/dev/sdb")
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 1, sess.closes)
		})
	}
}

func TestConnectFailure(t *testing.T) {
	sess := &fakeSession{}
	c, conn, _ := newController(sess)
	conn.err = lsm.Errorf(lsm.ErrPluginNotExist, "no plugin")
	c.Timeout = 500 * time.Millisecond

	_, err := c.UpdateLocateLED(context.Background(), "nope://", "", "locate_enable", "/dev/sdb")
	assert.True(t, lsm.IsCode(err, lsm.ErrPluginNotExist))
	assert.Equal(t, 500*time.Millisecond, conn.timeout)
	assert.Zero(t, sess.closes)
}

const simSeed = `
systems:
  - id: jbod
    name: unmanaged shelf
    mode: no_support
    capabilities: [sys_mode_get]
  - id: raid
    name: Simulated RAID
    mode: hardware_raid
    capabilities: [sys_mode_get, volumes, volume_led, volume_vpd83_get]
    volumes:
      - id: v0
        name: data
        vpd83: 600508b1001c5e0b
        sd_path: /dev/sda
`

func TestUpdateAgainstSimulator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	seed, err := sim.ParseSeed(strings.NewReader(simSeed))
	require.NoError(t, err)
	store, err := sim.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Load(context.Background(), seed))
	require.NoError(t, store.Close())

	reg := lsm.NewRegistry()
	reg.Register(sim.Scheme, &sim.Connector{})

	log, _ := test.NewNullLogger()
	local := &fakeLocal{vpd: map[string]string{"/dev/sda": "600508b1001c5e0b"}}
	c := &Controller{Connector: reg, Local: local, Log: log}
	ctx := context.Background()
	uri := "sim://?statefile=" + path

	status, err := c.UpdateLocateLED(ctx, uri, "", "locate_status", "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOff, status)

	_, err = c.UpdateLocateLED(ctx, uri, "", "locate_enable", "/dev/sda")
	require.NoError(t, err)

	status, err = c.UpdateLocateLED(ctx, uri, "", "locate_status", "/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, lsm.LEDOn, status)

	local.vpd["/dev/sdz"] = "5000c500deadbeef"
	_, err = c.UpdateLocateLED(ctx, uri, "", "locate_enable", "/dev/sdz")
	assert.ErrorIs(t, err, ErrUnsupportedMode)
	assert.Empty(t, local.on)
}
