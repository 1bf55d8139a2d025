package hba

import (
	"regexp"
	"strconv"
	"strings"
)

// 'sas3ircu list' adapter rows: index, type, vendor ID (hex with h suffix)
var sas3ircuListRe = regexp.MustCompile(`^\s*(\d+)\s+\S+\s+[0-9a-fA-F]+h\s+`)

// Section headers of 'sas3ircu <n> display'
var sas3ircuSections = []struct {
	prefix string
	name   string
}{
	{"Controller information", "controller"},
	{"IR Volume information", "volumes"},
	{"Physical device information", "devices"},
	{"Enclosure information", "enclosures"},
}

var sas3ircuControllerFields = map[string]func(*ControllerInfo, string){
	"Controller type":  func(c *ControllerInfo, v string) { c.Type = v },
	"BIOS version":     func(c *ControllerInfo, v string) { c.BIOSVersion = v },
	"Firmware version": func(c *ControllerInfo, v string) { c.FirmwareVersion = v },
	"RAID Support":     func(c *ControllerInfo, v string) { c.RAIDSupport = strings.EqualFold(v, "yes") },
}

var sas3ircuDeviceFields = map[string]func(*PhysicalDevice, string){
	"Enclosure #":       func(d *PhysicalDevice, v string) { d.EnclosureID, _ = strconv.Atoi(v) },
	"Slot #":            func(d *PhysicalDevice, v string) { d.Slot, _ = strconv.Atoi(v) },
	"SAS Address":       func(d *PhysicalDevice, v string) { d.SASAddress = strings.ToLower(strings.ReplaceAll(v, "-", "")) },
	"State":             func(d *PhysicalDevice, v string) { d.State = stateName(v) },
	"Manufacturer":      func(d *PhysicalDevice, v string) { d.Manufacturer = v },
	"Model Number":      func(d *PhysicalDevice, v string) { d.Model = v },
	"Firmware Revision": func(d *PhysicalDevice, v string) { d.Firmware = v },
	"Serial No":         func(d *PhysicalDevice, v string) { d.Serial = v },
	"Protocol":          func(d *PhysicalDevice, v string) { d.Protocol = v },
	"Drive Type":        func(d *PhysicalDevice, v string) { d.DriveType = v },
	"GUID": func(d *PhysicalDevice, v string) {
		if v != "N/A" {
			d.GUID = strings.ToLower(v)
		}
	},
}

// parseSas3ircuDisplay reads the controller and its physical disks from
// 'sas3ircu <index> display'. Enclosure services devices and entries without
// a serial number are dropped.
func parseSas3ircuDisplay(output string, index int) (*ControllerInfo, []PhysicalDevice) {
	ctrl := &ControllerInfo{Index: index}
	var devices []PhysicalDevice
	var cur *PhysicalDevice

	keep := func() {
		if cur != nil && cur.Serial != "" && cur.DriveType != "Enclosure" {
			devices = append(devices, *cur)
		}
		cur = nil
	}

	section := ""
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		if s, ok := sas3ircuSection(line); ok {
			keep()
			section = s
			continue
		}

		switch section {
		case "controller":
			if key, val, ok := splitField(line, ":"); ok {
				if set := sas3ircuControllerFields[key]; set != nil {
					set(ctrl, val)
				}
			}
		case "devices":
			if strings.HasPrefix(line, "Device is a") {
				keep()
				cur = &PhysicalDevice{}
				if strings.Contains(line, "Enclosure services") {
					cur.DriveType = "Enclosure"
				}
				continue
			}
			if cur == nil {
				continue
			}
			if key, val, ok := splitField(line, ":"); ok {
				if set := sas3ircuDeviceFields[key]; set != nil {
					set(cur, val)
				}
			}
		}
	}
	keep()

	return ctrl, devices
}

func sas3ircuSection(line string) (string, bool) {
	for _, s := range sas3ircuSections {
		if strings.HasPrefix(line, s.prefix) {
			return s.name, true
		}
	}
	return "", false
}

// splitField splits "key <sep> value" and trims both halves.
func splitField(line, sep string) (string, string, bool) {
	key, val, ok := strings.Cut(line, sep)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(val), true
}

// stateName drops the abbreviation from "Ready (RDY)".
func stateName(v string) string {
	if i := strings.Index(v, "("); i > 0 {
		return strings.TrimSpace(v[:i])
	}
	return v
}

// parseSas3ircuList returns the adapter indexes from 'sas3ircu list'.
func parseSas3ircuList(output string) []int {
	var indexes []int
	for _, line := range strings.Split(output, "\n") {
		m := sas3ircuListRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			indexes = append(indexes, n)
		}
	}
	return indexes
}
