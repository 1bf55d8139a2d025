// Package hba exposes LSI/Broadcom controllers as management endpoints:
// storcli-managed MegaRAID controllers under megaraid:// and SAS3 HBAs under
// sas3ircu://.
package hba

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/blkdevctl/internal/command"
	"github.com/sigreer/blkdevctl/internal/lsm"
)

// ErrSessionClosed is returned by calls on a closed session.
var ErrSessionClosed = errors.New("hba session closed")

// ControllerInfo contains HBA/RAID controller information
type ControllerInfo struct {
	Index       int    `json:"index"`       // storcli /cN, sas3ircu N
	Type        string `json:"type"`        // SAS3008, etc.
	Model       string `json:"model"`       // Dell HBA330 Adp
	Serial      string `json:"serial"`      // Controller serial
	SASAddress  string `json:"sas_address"` // SAS WWN
	Personality string `json:"personality"` // RAID-Mode, HBA-Mode, JBOD-Mode

	FirmwareVersion string `json:"firmware_version"`
	BIOSVersion     string `json:"bios_version"`
	DriverName      string `json:"driver_name"`
	DriverVersion   string `json:"driver_version"`

	RAIDSupport bool `json:"raid_support"`
}

// PhysicalDevice contains per-drive information from the controller
type PhysicalDevice struct {
	EnclosureID int    `json:"enclosure_id"`
	Slot        int    `json:"slot"`
	SASAddress  string `json:"sas_address"`
	GUID        string `json:"guid"`
	WWN         string `json:"wwn"`

	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`

	Protocol  string `json:"protocol"`   // SAS, SATA
	DriveType string `json:"drive_type"` // SAS_HDD, SATA_SSD, etc.
	State     string `json:"state"`      // Ready, Onln, JBOD, etc.
}

// VirtualDrive is a RAID volume exported by a MegaRAID controller
type VirtualDrive struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	RAID    string   `json:"raid"`
	State   string   `json:"state"`
	NAAID   string   `json:"naa_id"`   // SCSI NAA Id, the volume's VPD-83
	OSDrive string   `json:"os_drive"` // OS Drive Name
	Members []string `json:"members"`  // EID:Slt
}

// runTool is replaced in tests.
var runTool = func(ctx context.Context, log logrus.FieldLogger, timeout time.Duration, name string, args ...string) (string, error) {
	return command.Run(ctx, log, timeout, name, args...)
}

// toolError converts a tool failure into a protocol error.
func toolError(name string, err error) error {
	switch {
	case errors.Is(err, command.ErrNotInstalled):
		return &lsm.Error{Code: lsm.ErrPluginNotExist, Message: name, Err: err}
	case errors.Is(err, command.ErrTimeout):
		return &lsm.Error{Code: lsm.ErrTimeout, Message: name, Err: err}
	}
	return &lsm.Error{Code: lsm.ErrPluginBug, Message: name, Err: err}
}

func loggerOrStandard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}

// deviceID is the EID:Slt form both tools use for physical drives.
func deviceID(enclosure, slot int) string {
	return strconv.Itoa(enclosure) + ":" + strconv.Itoa(slot)
}
