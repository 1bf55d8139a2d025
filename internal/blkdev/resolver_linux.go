//go:build linux

package blkdev

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/sigreer/blkdevctl/internal/tagindex"
)

// maxLinkHops bounds symlink chains followed by DeviceBySymlink.
const maxLinkHops = 40

// BaseDevice returns the whole-disk base device name for dev, which is either
// a /dev/ path or a symlink whose target is one. Nested names use '!' in place
// of '/' (see DisplayName).
//
//	/dev/sda3         -> sda
//	/dev/cciss/c0d1p2 -> cciss!c0d1
func (r *Resolver) BaseDevice(dev string) (string, error) {
	if !strings.HasPrefix(dev, DevPrefix) {
		target, err := r.readlink(dev)
		if err != nil || !strings.HasPrefix(target, DevPrefix) {
			return "", errnof(unix.EINVAL, "%s is not a device path", dev)
		}
		dev = target
	}

	leaf := flatten(dev)
	switch leaf {
	case "", ".", "..":
		return "", errnof(unix.EINVAL, "%s names no device", dev)
	}

	if _, err := r.Fs.Stat(r.blockPath(leaf)); err == nil {
		return leaf, nil
	}

	entries, err := afero.ReadDir(r.Fs, r.blockPath())
	if err != nil {
		return "", err
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := r.Fs.Stat(r.blockPath(entry.Name(), leaf)); err == nil {
			return entry.Name(), nil
		}
	}

	return "", errnof(unix.ENOENT, "no base device for %s", dev)
}

// BaseDeviceInto writes the base device name of dev into out followed by a NUL
// byte and returns the name length. If out cannot hold the name and its
// terminator, nothing is written and ERANGE is returned.
func (r *Resolver) BaseDeviceInto(dev string, out []byte) (int, error) {
	base, err := r.BaseDevice(dev)
	if err != nil {
		return 0, err
	}
	if len(base)+1 > len(out) {
		return 0, errnof(unix.ERANGE, "base device %s needs %d bytes, have %d", base, len(base)+1, len(out))
	}
	n := copy(out, base)
	out[n] = 0
	return n, nil
}

// IntProperty reads the integer queue attribute property of dev's base device.
// A blank value yields 0; anything other than digits is EINVAL.
func (r *Resolver) IntProperty(dev, property string) (int64, error) {
	base, err := r.BaseDevice(dev)
	if err != nil {
		return 0, err
	}

	f, err := r.Fs.Open(r.blockPath(base, "queue", property))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	end := 0
	for end < len(line) && line[end] >= '0' && line[end] <= '9' {
		end++
	}
	if strings.TrimSpace(line[end:]) != "" {
		return 0, errnof(unix.EINVAL, "%s/%s: malformed value %q", base, property, line)
	}
	if end == 0 {
		return 0, nil
	}

	v, err := strconv.ParseInt(line[:end], 10, 64)
	if err != nil {
		return 0, errnof(unix.EINVAL, "%s/%s: %v", base, property, err)
	}
	return v, nil
}

// SupportsDiscard reports whether dev advertises a non-zero discard granularity.
func (r *Resolver) SupportsDiscard(dev string) bool {
	v, err := r.IntProperty(dev, "discard_granularity")
	return err == nil && v > 0
}

// IsRotational reports whether dev is backed by rotational media.
func (r *Resolver) IsRotational(dev string) bool {
	v, err := r.IntProperty(dev, "rotational")
	return err == nil && v > 0
}

// DeviceByUUID finds the partition tagged label=id in idx and reduces it to
// its base device. The index cache is released before returning.
func (r *Resolver) DeviceByUUID(ctx context.Context, idx tagindex.Index, id uuid.UUID, label string) (partition, device string, err error) {
	cache, err := idx.Open(ctx)
	if err != nil {
		return "", "", errnof(unix.EINVAL, "open tag index: %v", err)
	}
	defer cache.Close()

	partition, err = cache.FindDevice(ctx, label, id.String())
	if err != nil {
		return "", "", errnof(unix.EINVAL, "%s=%s: %v", label, id, err)
	}

	device, err = r.BaseDevice(partition)
	if err != nil {
		return partition, "", errnof(unix.ENODEV, "%s: %v", partition, err)
	}
	return partition, device, nil
}

// DeviceBySymlink follows link until it reaches a /dev/ path and returns that
// path's base device.
func (r *Resolver) DeviceBySymlink(link string) (string, error) {
	target := link
	for hops := 0; !strings.HasPrefix(target, DevPrefix) || r.isLink(target); hops++ {
		if hops == maxLinkHops {
			return "", errnof(unix.ELOOP, "%s", link)
		}
		next, err := r.readlink(target)
		if err != nil {
			return "", errnof(unix.EINVAL, "%s is not a device symlink: %v", link, err)
		}
		target = next
	}
	return r.BaseDevice(target)
}

// readlink returns the target of name, made absolute against name's directory.
func (r *Resolver) readlink(name string) (string, error) {
	lr, ok := r.Fs.(afero.LinkReader)
	if !ok {
		return "", afero.ErrNoReadlink
	}
	target, err := lr.ReadlinkIfPossible(name)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(name), target)
	}
	return target, nil
}

func (r *Resolver) isLink(name string) bool {
	lstater, ok := r.Fs.(afero.Lstater)
	if !ok {
		return false
	}
	fi, _, err := lstater.LstatIfPossible(name)
	return err == nil && fi.Mode()&os.ModeSymlink != 0
}
