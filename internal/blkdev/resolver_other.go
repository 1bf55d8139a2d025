//go:build !linux

package blkdev

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sigreer/blkdevctl/internal/tagindex"
)

func (r *Resolver) BaseDevice(dev string) (string, error) {
	return "", unix.EOPNOTSUPP
}

func (r *Resolver) BaseDeviceInto(dev string, out []byte) (int, error) {
	return 0, unix.EOPNOTSUPP
}

func (r *Resolver) IntProperty(dev, property string) (int64, error) {
	return 0, unix.EOPNOTSUPP
}

func (r *Resolver) SupportsDiscard(dev string) bool {
	return false
}

func (r *Resolver) IsRotational(dev string) bool {
	return false
}

func (r *Resolver) DeviceByUUID(ctx context.Context, idx tagindex.Index, id uuid.UUID, label string) (string, string, error) {
	return "", "", unix.EOPNOTSUPP
}

func (r *Resolver) DeviceBySymlink(link string) (string, error) {
	return "", unix.EOPNOTSUPP
}
