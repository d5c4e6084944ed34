//go:build linux || darwin || freebsd || netbsd || openbsd

package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// OSVersion returns the kernel name and release from uname(2).
func OSVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return runtime.GOOS
	}
	return unix.ByteSliceToString(uts.Sysname[:]) + " " + unix.ByteSliceToString(uts.Release[:])
}

// DeviceModel returns the machine hardware name from uname(2).
func DeviceModel() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return runtime.GOARCH
	}
	return unix.ByteSliceToString(uts.Machine[:])
}
