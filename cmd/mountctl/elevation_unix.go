//go:build !windows

package main

import "github.com/haio/mountctl/internal/persistence"

func elevationHelper() persistence.PrivilegeHelper {
	return persistence.PolkitHelper{}
}
