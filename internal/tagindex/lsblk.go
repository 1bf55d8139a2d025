package tagindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sigreer/blkdevctl/internal/command"
)

// lsblkOutput represents the JSON output from lsblk
type lsblkOutput struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Path      string        `json:"path"`
	UUID      string        `json:"uuid"`
	PartUUID  string        `json:"partuuid"`
	Label     string        `json:"label"`
	PartLabel string        `json:"partlabel"`
	Children  []lsblkDevice `json:"children,omitempty"`
}

// runLsblk is replaced in tests.
var runLsblk = func(ctx context.Context) ([]byte, error) {
	out, err := command.Run(ctx, nil, 0, "lsblk", "-J", "-o", "PATH,UUID,PARTUUID,LABEL,PARTLABEL")
	return []byte(out), err
}

// Lsblk indexes tags reported by lsblk, which reads the blkid probe cache.
type Lsblk struct{}

// Open runs lsblk once and snapshots its output.
func (l *Lsblk) Open(ctx context.Context) (Cache, error) {
	out, err := runLsblk(ctx)
	if err != nil {
		return nil, fmt.Errorf("lsblk failed: %w", err)
	}

	var output lsblkOutput
	if err := json.Unmarshal(out, &output); err != nil {
		return nil, fmt.Errorf("parse lsblk output: %w", err)
	}

	snap := newSnapshot()
	for _, dev := range output.Blockdevices {
		addLsblkDevice(snap, dev)
	}
	return snap, nil
}

func addLsblkDevice(snap *snapshot, dev lsblkDevice) {
	snap.add(TagUUID, dev.UUID, dev.Path)
	snap.add(TagPartUUID, dev.PartUUID, dev.Path)
	snap.add(TagLabel, dev.Label, dev.Path)
	snap.add(TagPartLabel, dev.PartLabel, dev.Path)

	for _, child := range dev.Children {
		addLsblkDevice(snap, child)
	}
}
