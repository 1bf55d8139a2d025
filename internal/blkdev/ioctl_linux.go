//go:build linux

package blkdev

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Size returns the size in bytes of the block device open as f.
func Size(f *os.File) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil
}

// Discard issues BLKDISCARD for length bytes at offset.
func Discard(f *os.File, offset, length int64) error {
	r := [2]uint64{uint64(offset), uint64(length)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&r[0])))
	if errno != 0 {
		return errno
	}
	return nil
}
