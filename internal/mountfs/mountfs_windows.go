//go:build windows

package mountfs

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isMountPoint checks whether path resolves to a reparse point / mapped
// drive root. Windows FUSE-style agents (WinFsp/Dokan) register a volume
// rather than appearing in a mount table, so a reparse-point/attrib check
// stands in for Unix's mountinfo scan.
func isMountPoint(path string) (bool, error) {
	attrs, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, err
	}
	a, err := windows.GetFileAttributes(attrs)
	if err != nil {
		return false, err
	}
	return a&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0, nil
}

// isBrokenEndpoint matches the Windows equivalents of a dead network/FUSE
// endpoint (spec.md §4.4: "Windows equivalents").
func isBrokenEndpoint(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, windows.ERROR_BAD_NETPATH) ||
		errors.Is(err, windows.ERROR_NETNAME_DELETED) ||
		errors.Is(err, windows.ERROR_DEVICE_NOT_CONNECTED)
}
