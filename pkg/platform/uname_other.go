//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package platform

import "runtime"

// OSVersion returns the operating system name.
func OSVersion() string {
	return runtime.GOOS
}

// DeviceModel returns the processor architecture.
func DeviceModel() string {
	return runtime.GOARCH
}
