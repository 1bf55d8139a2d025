// Package lsm models a storage management endpoint: the systems it manages,
// their volumes and disks, and the per-system capability set that gates each
// operation. Plugins register a Connector per URI scheme.
package lsm

import (
	"context"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout is the request timeout handed to every plugin connection.
const DefaultTimeout = 3000 * time.Millisecond

// SystemMode is how a controller presents its storage.
type SystemMode int

const (
	ModeNoSupport SystemMode = iota
	ModeHardwareRAID
	ModeHBA
)

func (m SystemMode) String() string {
	switch m {
	case ModeHardwareRAID:
		return "hardware_raid"
	case ModeHBA:
		return "hba"
	}
	return "no_support"
}

// ParseSystemMode is the inverse of SystemMode.String. Unknown names map to
// ModeNoSupport.
func ParseSystemMode(s string) SystemMode {
	switch strings.ToLower(s) {
	case "hardware_raid", "raid":
		return ModeHardwareRAID
	case "hba":
		return ModeHBA
	}
	return ModeNoSupport
}

// Capability names one operation a system may support.
type Capability string

const (
	CapSysModeGet      Capability = "sys_mode_get"
	CapVolumes         Capability = "volumes"
	CapVolumeLED       Capability = "volume_led"
	CapVolumeVPD83Get  Capability = "volume_vpd83_get"
	CapVolumeSDPathGet Capability = "volume_sd_path_get"
	CapDisks           Capability = "disks"
	CapDiskLED         Capability = "disk_led"
	CapDiskVPD83Get    Capability = "disk_vpd83_get"
	CapDiskSDPathGet   Capability = "disk_sd_path_get"
)

// CapabilitySet is the named boolean set a system reports.
type CapabilitySet map[Capability]bool

// NewCapabilitySet returns a set with caps enabled.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// Supported reports whether every cap is in the set.
func (s CapabilitySet) Supported(caps ...Capability) bool {
	for _, c := range caps {
		if !s[c] {
			return false
		}
	}
	return true
}

// Names returns the enabled capabilities, sorted.
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(s))
	for c, ok := range s {
		if ok {
			names = append(names, string(c))
		}
	}
	sort.Strings(names)
	return names
}

// System is one managed controller.
type System struct {
	ID   string     `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`
	Mode SystemMode `json:"mode" yaml:"-"`
}

// Volume is a virtual drive exported by a hardware-RAID system.
type Volume struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	SystemID string `json:"system_id" yaml:"-"`
	VPD83    string `json:"vpd83" yaml:"vpd83"`
	SDPath   string `json:"sd_path,omitempty" yaml:"sd_path,omitempty"`
}

// Disk is a physical drive behind an HBA-mode system.
type Disk struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	SystemID string `json:"system_id" yaml:"-"`
	VPD83    string `json:"vpd83" yaml:"vpd83"`
	SDPath   string `json:"sd_path,omitempty" yaml:"sd_path,omitempty"`
}

// LEDStatus is the state of a locate LED.
type LEDStatus int

const (
	LEDUnknown LEDStatus = iota
	LEDOn
	LEDOff
)

func (s LEDStatus) String() string {
	switch s {
	case LEDOn:
		return "on"
	case LEDOff:
		return "off"
	}
	return "unknown"
}

// Session is one authenticated connection to a management endpoint. It is
// not safe for concurrent use.
type Session interface {
	Systems(ctx context.Context) ([]System, error)
	Capabilities(ctx context.Context, sys System) (CapabilitySet, error)
	Volumes(ctx context.Context, systemID string) ([]Volume, error)
	Disks(ctx context.Context, systemID string) ([]Disk, error)

	VolumeIdentLEDOn(ctx context.Context, vol Volume) error
	VolumeIdentLEDOff(ctx context.Context, vol Volume) error
	VolumeIdentLEDStatus(ctx context.Context, vol Volume) (LEDStatus, error)

	Close() error
}

// LocalDisk acts on a disk through its OS device node rather than through a
// management session.
type LocalDisk interface {
	VPD83(ctx context.Context, devPath string) (string, error)
	IdentLEDOn(ctx context.Context, devPath string) error
	IdentLEDOff(ctx context.Context, devPath string) error
	IdentLEDStatus(ctx context.Context, devPath string) (LEDStatus, error)
}
