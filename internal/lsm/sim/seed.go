package sim

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sigreer/blkdevctl/internal/lsm"
)

// Seed is the YAML description of a simulated endpoint.
//
//	password: secret
//	systems:
//	  - id: sim-raid
//	    name: Simulated RAID
//	    mode: hardware_raid
//	    capabilities: [sys_mode_get, volumes, volume_led, volume_vpd83_get]
//	    volumes:
//	      - id: v0
//	        name: data
//	        vpd83: 600508b1001c5e0b
//	        sd_path: /dev/sdb
type Seed struct {
	Password string       `json:"password,omitempty" yaml:"password,omitempty"`
	Systems  []SeedSystem `json:"systems" yaml:"systems"`
}

// SeedSystem is one system entry of a Seed.
type SeedSystem struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Mode         string       `json:"mode" yaml:"mode"`
	Capabilities []string     `json:"capabilities" yaml:"capabilities"`
	Volumes      []lsm.Volume `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Disks        []lsm.Disk   `json:"disks,omitempty" yaml:"disks,omitempty"`
	LEDs         []string     `json:"leds_on,omitempty" yaml:"leds_on,omitempty"`
}

// ParseSeed decodes a YAML seed from r.
func ParseSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	for i, sys := range seed.Systems {
		if sys.ID == "" {
			return nil, fmt.Errorf("system %d has no id", i)
		}
	}
	return &seed, nil
}

// Load replaces the stored endpoint with seed in one transaction.
func (s *Store) Load(ctx context.Context, seed *Seed) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM volumes",
		"DELETE FROM disks",
		"DELETE FROM systems",
		"DELETE FROM settings",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear state: %w", err)
		}
	}

	if seed.Password != "" {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO settings (key, value) VALUES ('password', ?)", seed.Password); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
	}

	for i, sys := range seed.Systems {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO systems (id, seq, name, mode, capabilities) VALUES (?, ?, ?, ?, ?)",
			sys.ID, i, sys.Name, lsm.ParseSystemMode(sys.Mode).String(), strings.Join(sys.Capabilities, ","),
		); err != nil {
			return fmt.Errorf("failed to insert system %s: %w", sys.ID, err)
		}

		lit := make(map[string]bool, len(sys.LEDs))
		for _, id := range sys.LEDs {
			lit[id] = true
		}
		for j, v := range sys.Volumes {
			led := 0
			if lit[v.ID] {
				led = 1
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO volumes (id, system_id, seq, name, vpd83, sd_path, led) VALUES (?, ?, ?, ?, ?, ?, ?)",
				v.ID, sys.ID, j, v.Name, v.VPD83, v.SDPath, led,
			); err != nil {
				return fmt.Errorf("failed to insert volume %s/%s: %w", sys.ID, v.ID, err)
			}
		}
		for j, d := range sys.Disks {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO disks (id, system_id, seq, name, vpd83, sd_path) VALUES (?, ?, ?, ?, ?, ?)",
				d.ID, sys.ID, j, d.Name, d.VPD83, d.SDPath,
			); err != nil {
				return fmt.Errorf("failed to insert disk %s/%s: %w", sys.ID, d.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Dump reads the stored endpoint back as a Seed.
func (s *Store) Dump(ctx context.Context) (*Seed, error) {
	pw, err := s.password(ctx)
	if err != nil {
		return nil, err
	}
	seed := &Seed{Password: pw}

	systems, err := s.Systems(ctx)
	if err != nil {
		return nil, err
	}
	for _, sys := range systems {
		caps, err := s.Capabilities(ctx, sys.ID)
		if err != nil {
			return nil, err
		}
		vols, err := s.Volumes(ctx, sys.ID)
		if err != nil {
			return nil, err
		}
		disks, err := s.Disks(ctx, sys.ID)
		if err != nil {
			return nil, err
		}

		entry := SeedSystem{
			ID:           sys.ID,
			Name:         sys.Name,
			Mode:         sys.Mode.String(),
			Capabilities: caps.Names(),
			Volumes:      vols,
			Disks:        disks,
		}
		for _, v := range vols {
			status, err := s.VolumeLED(ctx, v)
			if err != nil {
				return nil, err
			}
			if status == lsm.LEDOn {
				entry.LEDs = append(entry.LEDs, v.ID)
			}
		}
		seed.Systems = append(seed.Systems, entry)
	}
	return seed, nil
}
