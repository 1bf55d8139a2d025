package ledctl

import (
	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/lsm"
)

// matcher decides which volume or disk is the target device, and names the
// capability a system needs to report the identifier it compares.
type matcher interface {
	volumeCap() lsm.Capability
	diskCap() lsm.Capability
	matchVolume(lsm.Volume) bool
	matchDisk(lsm.Disk) bool
}

// vpdMatcher compares VPD-83 identifiers.
type vpdMatcher struct {
	vpd string
}

func (m vpdMatcher) volumeCap() lsm.Capability { return lsm.CapVolumeVPD83Get }
func (m vpdMatcher) diskCap() lsm.Capability   { return lsm.CapDiskVPD83Get }

func (m vpdMatcher) matchVolume(v lsm.Volume) bool {
	return v.VPD83 != "" && v.VPD83 == m.vpd
}

func (m vpdMatcher) matchDisk(d lsm.Disk) bool {
	return d.VPD83 != "" && d.VPD83 == m.vpd
}

// pathMatcher compares the base device of a candidate's SD path with the
// target's base device.
type pathMatcher struct {
	resolver *blkdev.Resolver
	base     string
}

func (m pathMatcher) volumeCap() lsm.Capability { return lsm.CapVolumeSDPathGet }
func (m pathMatcher) diskCap() lsm.Capability   { return lsm.CapDiskSDPathGet }

func (m pathMatcher) matchVolume(v lsm.Volume) bool {
	return m.matchPath(v.SDPath)
}

func (m pathMatcher) matchDisk(d lsm.Disk) bool {
	return m.matchPath(d.SDPath)
}

func (m pathMatcher) matchPath(sdPath string) bool {
	if sdPath == "" {
		return false
	}
	base, err := m.resolver.BaseDevice(sdPath)
	return err == nil && base == m.base
}
