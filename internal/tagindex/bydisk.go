package tagindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// byDiskDirs maps each tag to the udev symlink directory that carries it.
var byDiskDirs = map[string]string{
	TagUUID:      "dev/disk/by-uuid",
	TagPartUUID:  "dev/disk/by-partuuid",
	TagLabel:     "dev/disk/by-label",
	TagPartLabel: "dev/disk/by-partlabel",
}

// ByDisk indexes the /dev/disk/by-* symlinks maintained by udev.
type ByDisk struct {
	Root string
	Fs   afero.Fs
}

// NewByDisk returns a ByDisk index over the host filesystem under root.
func NewByDisk(root string) *ByDisk {
	return &ByDisk{Root: root, Fs: afero.NewOsFs()}
}

// Open scans every by-* directory. Missing directories are skipped.
func (b *ByDisk) Open(ctx context.Context) (Cache, error) {
	snap := newSnapshot()
	for tag, dir := range byDiskDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for name, target := range b.readSymlinks(filepath.Join(b.Root, "/", dir)) {
			snap.add(tag, unescape(name), target)
		}
	}
	return snap, nil
}

// readSymlinks returns link name -> device path for every symlink in dir.
func (b *ByDisk) readSymlinks(dir string) map[string]string {
	result := make(map[string]string)

	lr, ok := b.Fs.(afero.LinkReader)
	if !ok {
		return result
	}

	entries, err := afero.ReadDir(b.Fs, dir)
	if err != nil {
		return result
	}

	for _, entry := range entries {
		if entry.Mode()&os.ModeSymlink == 0 {
			continue
		}

		target, err := lr.ReadlinkIfPossible(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		result[entry.Name()] = b.devicePath(target)
	}

	return result
}

// devicePath strips Root so the result names the host device node.
func (b *ByDisk) devicePath(target string) string {
	target = filepath.Clean(target)
	if b.Root == "" {
		return target
	}
	rel, err := filepath.Rel(b.Root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return target
	}
	return "/" + rel
}
