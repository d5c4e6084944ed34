//go:build linux

package storage

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func creationTime(path string) (time.Time, error) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME|unix.STATX_MTIME, &stx)
	if err != nil {
		if err == unix.ENOSYS {
			return modTime(path)
		}
		return time.Time{}, fmt.Errorf("failed to statx %s: %w", path, err)
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		// Filesystem doesn't record birth time.
		return time.Unix(stx.Mtime.Sec, int64(stx.Mtime.Nsec)), nil
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}
