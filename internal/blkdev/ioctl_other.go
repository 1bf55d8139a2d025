//go:build !linux

package blkdev

import (
	"os"

	"golang.org/x/sys/unix"
)

func Size(f *os.File) (int64, error) {
	return 0, unix.EOPNOTSUPP
}

func Discard(f *os.File, offset, length int64) error {
	return unix.EOPNOTSUPP
}
