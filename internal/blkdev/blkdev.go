// Package blkdev resolves block device paths to their whole-disk base device
// and reads integer attributes from the kernel device tree.
package blkdev

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

const (
	// DevPrefix is the prefix every resolvable device node path carries.
	DevPrefix = "/dev/"

	// sysBlock is the device tree root, relative to Resolver.Root.
	sysBlock = "sys/block"

	// sentinel replaces '/' in nested device names (cciss/c0d1 -> cciss!c0d1).
	sentinel = "!"
)

// Resolver walks the device tree under Root. An empty Root means the live
// system; tests point it at a synthetic tree.
type Resolver struct {
	Root string
	Fs   afero.Fs
}

// NewResolver returns a Resolver over the host filesystem rooted at root.
func NewResolver(root string) *Resolver {
	return &Resolver{Root: root, Fs: afero.NewOsFs()}
}

// blockPath joins elements under <root>/sys/block.
func (r *Resolver) blockPath(elem ...string) string {
	return filepath.Join(append([]string{r.Root, "/", sysBlock}, elem...)...)
}

// DisplayName converts a base device name back to its consumer-facing form.
func DisplayName(base string) string {
	return strings.ReplaceAll(base, sentinel, "/")
}

// flatten strips the /dev/ prefix and substitutes path separators.
func flatten(devPath string) string {
	return strings.ReplaceAll(strings.TrimPrefix(devPath, DevPrefix), "/", sentinel)
}

// errnof wraps errno with context; errors.Is(err, errno) holds for the result.
func errnof(errno unix.Errno, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errno)
}

// errnoer is implemented by typed errors that carry their own errno, such
// as plugin protocol errors.
type errnoer interface {
	Errno() unix.Errno
}

// Code maps err to the negative errno reported by the upward surface.
// A nil error is 0. An errno in the chain wins over a typed error's own.
func Code(err error) int {
	if err == nil {
		return 0
	}

	var errno unix.Errno
	var typed errnoer
	switch {
	case errors.As(err, &errno):
		return -int(errno)
	case errors.As(err, &typed) && typed.Errno() != 0:
		return -int(typed.Errno())
	case errors.Is(err, fs.ErrNotExist):
		return -int(unix.ENOENT)
	case errors.Is(err, fs.ErrPermission):
		return -int(unix.EACCES)
	case errors.Is(err, fs.ErrInvalid):
		return -int(unix.EINVAL)
	}
	return -int(unix.EIO)
}
