// Package cache contains functions for working with the VFS cache root the
// mount agent writes into (spec.md §6 "--cache-dir", config.Config.CacheDir).
package cache

import "os"

// Clear removes everything under root, the mount agent's VFS cache
// directory. Safe to call while no mounts are active; callers are
// responsible for unmounting first.
func Clear(root string) error {
	return os.RemoveAll(root)
}
