//go:build !windows

package mountfs

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const procMountsPath = "/proc/self/mountinfo"

// isMountPoint checks whether path is listed as a mount point in the
// kernel mount table (spec.md §4.4: LIVE_MOUNT/STALE_MOUNT condition).
func isMountPoint(path string) (bool, error) {
	data, err := os.ReadFile(procMountsPath)
	if err != nil {
		return false, err
	}

	clean := strings.TrimRight(path, "/")
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// /proc/self/mountinfo field 5 (0-indexed 4) is the mount point.
		if len(fields) < 5 {
			continue
		}
		if strings.TrimRight(fields[4], "/") == clean {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// isBrokenEndpoint matches Unix's "transport endpoint is not connected"
// (ENOTCONN), "stale file handle" (ESTALE) and I/O error (EIO), each of
// which is taken to indicate a dead FUSE mount (spec.md §4.4).
func isBrokenEndpoint(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, unix.ENOTCONN) || errors.Is(err, unix.ESTALE) || errors.Is(err, unix.EIO)
}
