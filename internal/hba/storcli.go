package hba

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sigreer/blkdevctl/internal/lsm"
)

var (
	storcliCountRe  = regexp.MustCompile(`Controller Count = (\d+)`)
	storcliVDRe     = regexp.MustCompile(`^/c\d+/v(\d+) :$`)
	storcliVDPropRe = regexp.MustCompile(`^VD(\d+) Properties :$`)
	storcliPDsRe    = regexp.MustCompile(`^PDs for VD (\d+) :$`)
	storcliDGVDRe   = regexp.MustCompile(`^\d+/\d+$`)
	storcliDriveRe  = regexp.MustCompile(`^Drive /c\d+(?:/e(\d+))?/s(\d+) :$`)
	storcliSlotRe   = regexp.MustCompile(`^(\d*):(\d+)$`)
)

// parseStorcliOutput parses output from 'storcli /cX show all'
func parseStorcliOutput(output string, index int) *ControllerInfo {
	ctrl := &ControllerInfo{
		Index: index,
	}

	lines := strings.Split(output, "\n")
	section := ""

	for _, line := range lines {
		line = strings.TrimSpace(line)

		// Detect section headers
		if strings.HasPrefix(line, "Basics :") {
			section = "basics"
			continue
		} else if strings.HasPrefix(line, "Version :") {
			section = "version"
			continue
		} else if strings.HasPrefix(line, "Capabilities :") {
			section = "capabilities"
			continue
		} else if strings.HasSuffix(line, " :") {
			section = "other"
			continue
		} else if strings.HasPrefix(line, "===") || strings.HasPrefix(line, "---") {
			continue
		}

		key, val, ok := splitField(line, "=")
		if !ok {
			continue
		}

		// Personality moves between sections across firmware generations
		if key == "Current Personality" {
			ctrl.Personality = val
			continue
		}

		switch section {
		case "basics":
			parseStorcliBasics(key, val, ctrl)
		case "version":
			parseStorcliVersion(key, val, ctrl)
		case "capabilities":
			parseStorcliCapabilities(key, val, ctrl)
		}
	}

	return ctrl
}

func parseStorcliBasics(key, val string, ctrl *ControllerInfo) {
	switch key {
	case "Adapter Type":
		ctrl.Type = val
	case "Model":
		ctrl.Model = val
	case "Serial Number":
		ctrl.Serial = val
	case "SAS Address":
		ctrl.SASAddress = val
	}
}

func parseStorcliVersion(key, val string, ctrl *ControllerInfo) {
	switch key {
	case "Firmware Version":
		ctrl.FirmwareVersion = val
	case "Bios Version":
		ctrl.BIOSVersion = val
	case "Driver Name":
		ctrl.DriverName = val
	case "Driver Version":
		ctrl.DriverVersion = val
	}
}

func parseStorcliCapabilities(key, val string, ctrl *ControllerInfo) {
	switch key {
	case "RAID Level Supported":
		ctrl.RAIDSupport = val != "" && val != "NA"
	}
}

// parseStorcliCount parses 'storcli show ctrlcount'
func parseStorcliCount(output string) int {
	if m := storcliCountRe.FindStringSubmatch(output); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// parseStorcliVirtualDrives parses output from 'storcli /cX/vall show all'
// or 'storcli /cX/vN show all'
func parseStorcliVirtualDrives(output string) []VirtualDrive {
	var vds []VirtualDrive
	byID := make(map[int]int)

	get := func(id int) *VirtualDrive {
		if i, ok := byID[id]; ok {
			return &vds[i]
		}
		byID[id] = len(vds)
		vds = append(vds, VirtualDrive{ID: id})
		return &vds[len(vds)-1]
	}

	section := ""
	current := -1

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if m := storcliVDRe.FindStringSubmatch(line); m != nil {
			current, _ = strconv.Atoi(m[1])
			section = "vd"
			continue
		}
		if m := storcliPDsRe.FindStringSubmatch(line); m != nil {
			current, _ = strconv.Atoi(m[1])
			section = "pds"
			continue
		}
		if m := storcliVDPropRe.FindStringSubmatch(line); m != nil {
			current, _ = strconv.Atoi(m[1])
			section = "props"
			continue
		}
		if current < 0 || line == "" || strings.HasPrefix(line, "===") || strings.HasPrefix(line, "---") {
			continue
		}

		switch section {
		case "vd":
			// DG/VD TYPE State Access Consist Cache Cac sCC Size Unit Name
			fields := strings.Fields(line)
			if len(fields) < 10 || !storcliDGVDRe.MatchString(fields[0]) {
				continue
			}
			vd := get(current)
			vd.RAID = fields[1]
			vd.State = fields[2]
			if len(fields) > 10 {
				vd.Name = strings.Join(fields[10:], " ")
			}
		case "pds":
			fields := strings.Fields(line)
			if len(fields) == 0 || !storcliSlotRe.MatchString(fields[0]) {
				continue
			}
			vd := get(current)
			vd.Members = append(vd.Members, fields[0])
		case "props":
			key, val, ok := splitField(line, "=")
			if !ok {
				continue
			}
			vd := get(current)
			switch key {
			case "OS Drive Name":
				vd.OSDrive = val
			case "SCSI NAA Id":
				vd.NAAID = strings.ToLower(val)
			}
		}
	}

	return vds
}

// parseStorcliPhysicalDrives parses output from 'storcli /cX/eall/sall show all'
func parseStorcliPhysicalDrives(output string) []PhysicalDevice {
	var devices []PhysicalDevice
	var current *PhysicalDevice

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if m := storcliDriveRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				devices = append(devices, *current)
			}
			current = &PhysicalDevice{}
			current.EnclosureID, _ = strconv.Atoi(m[1])
			current.Slot, _ = strconv.Atoi(m[2])
			continue
		}
		if current == nil {
			continue
		}

		// EID:Slt DID State DG Size Unit Intf Med ...
		if fields := strings.Fields(line); len(fields) >= 8 && storcliSlotRe.MatchString(fields[0]) {
			current.State = fields[2]
			current.Protocol = fields[6]
			current.DriveType = fields[6] + "_" + fields[7]
			continue
		}

		key, val, ok := splitField(line, "=")
		if !ok {
			continue
		}

		switch key {
		case "SN":
			current.Serial = val
		case "WWN":
			current.WWN = strings.ToLower(val)
		case "Manufacturer Id":
			current.Manufacturer = val
		case "Model Number":
			current.Model = val
		case "Firmware Revision":
			current.Firmware = val
		}
	}

	if current != nil {
		devices = append(devices, *current)
	}
	return devices
}

// storcliMode maps a controller personality to a system mode. Controllers
// that report no personality are MegaRAID firmware and present volumes.
func storcliMode(ctrl *ControllerInfo) lsm.SystemMode {
	p := strings.ToLower(ctrl.Personality)
	switch {
	case strings.Contains(p, "hba"), strings.Contains(p, "jbod"):
		return lsm.ModeHBA
	case p == "", strings.Contains(p, "raid"):
		return lsm.ModeHardwareRAID
	}
	return lsm.ModeNoSupport
}

// storcliSlotPath converts "32:4" to "/c0/e32/s4"; drives without an
// enclosure (":4") become "/c0/s4".
func storcliSlotPath(index int, member string) (string, bool) {
	m := storcliSlotRe.FindStringSubmatch(member)
	if m == nil {
		return "", false
	}
	path := "/c" + strconv.Itoa(index)
	if m[1] != "" {
		path += "/e" + m[1]
	}
	return path + "/s" + m[2], true
}
