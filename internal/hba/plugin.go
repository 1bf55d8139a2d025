package hba

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sigreer/blkdevctl/internal/cache"
	"github.com/sigreer/blkdevctl/internal/lsm"
)

// URI schemes served by this package.
const (
	MegaRAIDScheme = "megaraid"
	SAS3IRCUScheme = "sas3ircu"
)

// MegaRAIDConnector opens storcli-backed sessions. Root and Fs locate the
// /dev/disk/by-id links used to name each disk's device node.
type MegaRAIDConnector struct {
	Root string
	Fs   afero.Fs
	Log  logrus.FieldLogger
}

func (c *MegaRAIDConnector) Connect(_ context.Context, _ *url.URL, _ string, timeout time.Duration) (lsm.Session, error) {
	return &megaraidSession{base: newBase("storcli", c.Root, c.Fs, c.Log, timeout)}, nil
}

// SAS3IRCUConnector opens sas3ircu-backed sessions.
type SAS3IRCUConnector struct {
	Root string
	Fs   afero.Fs
	Log  logrus.FieldLogger
}

func (c *SAS3IRCUConnector) Connect(_ context.Context, _ *url.URL, _ string, timeout time.Duration) (lsm.Session, error) {
	return &sas3ircuSession{base: newBase("sas3ircu", c.Root, c.Fs, c.Log, timeout)}, nil
}

// base holds what both tool-backed sessions share. The inventory cache
// lives and dies with the session.
type base struct {
	log     logrus.FieldLogger
	timeout time.Duration
	tool    string
	root    string
	fs      afero.Fs
	cache   *cache.Cache[string]
	closed  bool
}

func newBase(tool, root string, fs afero.Fs, log logrus.FieldLogger, timeout time.Duration) base {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return base{
		log:     loggerOrStandard(log),
		timeout: timeout,
		tool:    tool,
		root:    root,
		fs:      fs,
		cache:   cache.New[string](),
	}
}

// query runs an inventory command once per session.
func (b *base) query(ctx context.Context, args ...string) (string, error) {
	if b.closed {
		return "", ErrSessionClosed
	}
	key := b.tool + " " + strings.Join(args, " ")
	return b.cache.GetOrFetch(key, cache.TTLTopology, func() (string, error) {
		return b.run(ctx, args...)
	})
}

func (b *base) run(ctx context.Context, args ...string) (string, error) {
	if b.closed {
		return "", ErrSessionClosed
	}
	out, err := runTool(ctx, b.log, b.timeout, b.tool, args...)
	if err != nil {
		return "", toolError(b.tool, err)
	}
	return out, nil
}

func (b *base) Close() error {
	if b.closed {
		return ErrSessionClosed
	}
	b.closed = true
	b.cache.Clear()
	return nil
}

// diskNode returns the device node the kernel links from
// /dev/disk/by-id/wwn-0x<wwn>, or "" when there is none.
func (b *base) diskNode(wwn string) string {
	if wwn == "" {
		return ""
	}
	lr, ok := b.fs.(afero.LinkReader)
	if !ok {
		return ""
	}

	link := filepath.Join(b.root, "/dev/disk/by-id", "wwn-0x"+strings.ToLower(wwn))
	target, err := lr.ReadlinkIfPossible(link)
	if err != nil {
		return ""
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	if r := filepath.Clean(b.root); r != "/" && r != "." {
		target = strings.TrimPrefix(target, r)
	}
	if !strings.HasPrefix(target, "/dev/") {
		return ""
	}
	return target
}

// controllerIndex parses a "c<N>" system ID.
func controllerIndex(systemID string) (int, error) {
	if !strings.HasPrefix(systemID, "c") {
		return 0, lsm.Errorf(lsm.ErrNotFoundSystem, "system %s", systemID)
	}
	n, err := strconv.Atoi(systemID[1:])
	if err != nil || n < 0 {
		return 0, lsm.Errorf(lsm.ErrNotFoundSystem, "system %s", systemID)
	}
	return n, nil
}

func systemName(ctrl *ControllerInfo) string {
	name := ctrl.Model
	if name == "" {
		name = ctrl.Type
	}
	if ctrl.Serial != "" {
		name += " " + ctrl.Serial
	}
	return strings.TrimSpace(name)
}

func diskName(d PhysicalDevice) string {
	return strings.TrimSpace(d.Model + " " + d.Serial)
}

type megaraidSession struct {
	base
}

func (s *megaraidSession) controller(ctx context.Context, index int) (*ControllerInfo, error) {
	out, err := s.query(ctx, fmt.Sprintf("/c%d", index), "show", "all")
	if err != nil {
		return nil, err
	}
	return parseStorcliOutput(out, index), nil
}

func (s *megaraidSession) Systems(ctx context.Context) ([]lsm.System, error) {
	out, err := s.query(ctx, "show", "ctrlcount")
	if err != nil {
		return nil, err
	}

	count := parseStorcliCount(out)
	systems := make([]lsm.System, 0, count)
	for i := 0; i < count; i++ {
		ctrl, err := s.controller(ctx, i)
		if err != nil {
			return nil, err
		}
		systems = append(systems, lsm.System{
			ID:   "c" + strconv.Itoa(i),
			Name: systemName(ctrl),
			Mode: storcliMode(ctrl),
		})
	}
	return systems, nil
}

func (s *megaraidSession) Capabilities(_ context.Context, sys lsm.System) (lsm.CapabilitySet, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	switch sys.Mode {
	case lsm.ModeHBA:
		return lsm.NewCapabilitySet(
			lsm.CapSysModeGet, lsm.CapDisks, lsm.CapDiskLED, lsm.CapDiskVPD83Get, lsm.CapDiskSDPathGet,
		), nil
	case lsm.ModeHardwareRAID:
		return lsm.NewCapabilitySet(
			lsm.CapSysModeGet, lsm.CapVolumes, lsm.CapVolumeLED, lsm.CapVolumeVPD83Get, lsm.CapVolumeSDPathGet,
			lsm.CapDisks, lsm.CapDiskVPD83Get,
		), nil
	}
	return lsm.NewCapabilitySet(lsm.CapSysModeGet), nil
}

func (s *megaraidSession) Volumes(ctx context.Context, systemID string) ([]lsm.Volume, error) {
	index, err := controllerIndex(systemID)
	if err != nil {
		return nil, err
	}
	out, err := s.query(ctx, fmt.Sprintf("/c%d/vall", index), "show", "all")
	if err != nil {
		return nil, err
	}

	var vols []lsm.Volume
	for _, vd := range parseStorcliVirtualDrives(out) {
		vols = append(vols, lsm.Volume{
			ID:       "v" + strconv.Itoa(vd.ID),
			Name:     vd.Name,
			SystemID: systemID,
			VPD83:    vd.NAAID,
			SDPath:   vd.OSDrive,
		})
	}
	return vols, nil
}

func (s *megaraidSession) Disks(ctx context.Context, systemID string) ([]lsm.Disk, error) {
	index, err := controllerIndex(systemID)
	if err != nil {
		return nil, err
	}
	out, err := s.query(ctx, fmt.Sprintf("/c%d/eall/sall", index), "show", "all")
	if err != nil {
		return nil, err
	}

	var disks []lsm.Disk
	for _, d := range parseStorcliPhysicalDrives(out) {
		disks = append(disks, lsm.Disk{
			ID:       deviceID(d.EnclosureID, d.Slot),
			Name:     diskName(d),
			SystemID: systemID,
			VPD83:    d.WWN,
			SDPath:   s.diskNode(d.WWN),
		})
	}
	return disks, nil
}

func (s *megaraidSession) VolumeIdentLEDOn(ctx context.Context, vol lsm.Volume) error {
	return s.locate(ctx, vol, "start")
}

func (s *megaraidSession) VolumeIdentLEDOff(ctx context.Context, vol lsm.Volume) error {
	return s.locate(ctx, vol, "stop")
}

// locate starts or stops locate on every member drive of vol.
func (s *megaraidSession) locate(ctx context.Context, vol lsm.Volume, action string) error {
	index, err := controllerIndex(vol.SystemID)
	if err != nil {
		return err
	}
	vd, err := strconv.Atoi(strings.TrimPrefix(vol.ID, "v"))
	if err != nil {
		return lsm.Errorf(lsm.ErrNotFoundVolume, "volume %s", vol.ID)
	}

	out, err := s.query(ctx, fmt.Sprintf("/c%d/v%d", index, vd), "show", "all")
	if err != nil {
		return err
	}
	vds := parseStorcliVirtualDrives(out)
	if len(vds) == 0 || len(vds[0].Members) == 0 {
		return lsm.Errorf(lsm.ErrNotFoundVolume, "volume %s/%s has no member drives", vol.SystemID, vol.ID)
	}

	for _, member := range vds[0].Members {
		path, ok := storcliSlotPath(index, member)
		if !ok {
			continue
		}
		if _, err := s.run(ctx, path, action, "locate"); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"system": vol.SystemID, "volume": vol.ID, "drive": path}).Debugf("%s locate", action)
	}
	return nil
}

func (s *megaraidSession) VolumeIdentLEDStatus(context.Context, lsm.Volume) (lsm.LEDStatus, error) {
	return lsm.LEDUnknown, lsm.Errorf(lsm.ErrNoSupport, "storcli does not report locate state")
}

type sas3ircuSession struct {
	base
}

func (s *sas3ircuSession) Systems(ctx context.Context) ([]lsm.System, error) {
	out, err := s.query(ctx, "list")
	if err != nil {
		return nil, err
	}

	var systems []lsm.System
	for _, index := range parseSas3ircuList(out) {
		display, err := s.query(ctx, strconv.Itoa(index), "display")
		if err != nil {
			return nil, err
		}
		ctrl, _ := parseSas3ircuDisplay(display, index)
		systems = append(systems, lsm.System{
			ID:   "c" + strconv.Itoa(index),
			Name: systemName(ctrl),
			Mode: lsm.ModeHBA,
		})
	}
	return systems, nil
}

func (s *sas3ircuSession) Capabilities(context.Context, lsm.System) (lsm.CapabilitySet, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return lsm.NewCapabilitySet(lsm.CapSysModeGet, lsm.CapDisks, lsm.CapDiskLED, lsm.CapDiskVPD83Get, lsm.CapDiskSDPathGet), nil
}

func (s *sas3ircuSession) Volumes(context.Context, string) ([]lsm.Volume, error) {
	return nil, lsm.Errorf(lsm.ErrNoSupport, "sas3ircu systems present no volumes")
}

func (s *sas3ircuSession) Disks(ctx context.Context, systemID string) ([]lsm.Disk, error) {
	index, err := controllerIndex(systemID)
	if err != nil {
		return nil, err
	}
	out, err := s.query(ctx, strconv.Itoa(index), "display")
	if err != nil {
		return nil, err
	}

	_, devices := parseSas3ircuDisplay(out, index)
	disks := make([]lsm.Disk, 0, len(devices))
	for _, d := range devices {
		disks = append(disks, lsm.Disk{
			ID:       deviceID(d.EnclosureID, d.Slot),
			Name:     diskName(d),
			SystemID: systemID,
			VPD83:    d.GUID,
			SDPath:   s.diskNode(d.GUID),
		})
	}
	return disks, nil
}

func (s *sas3ircuSession) VolumeIdentLEDOn(context.Context, lsm.Volume) error {
	return lsm.Errorf(lsm.ErrNoSupport, "sas3ircu systems present no volumes")
}

func (s *sas3ircuSession) VolumeIdentLEDOff(context.Context, lsm.Volume) error {
	return lsm.Errorf(lsm.ErrNoSupport, "sas3ircu systems present no volumes")
}

func (s *sas3ircuSession) VolumeIdentLEDStatus(context.Context, lsm.Volume) (lsm.LEDStatus, error) {
	return lsm.LEDUnknown, lsm.Errorf(lsm.ErrNoSupport, "sas3ircu systems present no volumes")
}

// Register installs both connectors in reg, resolving device nodes under root.
func Register(reg *lsm.Registry, root string, log logrus.FieldLogger) {
	reg.Register(MegaRAIDScheme, &MegaRAIDConnector{Root: root, Log: log})
	reg.Register(SAS3IRCUScheme, &SAS3IRCUConnector{Root: root, Log: log})
}
