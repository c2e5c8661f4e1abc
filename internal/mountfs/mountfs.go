// Package mountfs implements C4, the mount point inspector: classifying a
// path's filesystem state and discovering orphaned mounts left behind by a
// crashed or previous-session agent. The mount-table parsing is grounded on
// other_examples/aff79393_awslabs-mountpoint-s3-csi-driver's ProcMountLister.
package mountfs

import (
	"context"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/martinlindhe/base36"
	"github.com/rs/zerolog"
)

// Classification is the exhaustive result of classify() (spec.md §4.4).
type Classification int

const (
	Absent Classification = iota
	NonDir
	EmptyDir
	NonEmptyDir
	LiveMount
	StaleMount
)

func (c Classification) String() string {
	switch c {
	case Absent:
		return "ABSENT"
	case NonDir:
		return "NON_DIR"
	case EmptyDir:
		return "EMPTY_DIR"
	case NonEmptyDir:
		return "NON_EMPTY_DIR"
	case LiveMount:
		return "LIVE_MOUNT"
	case StaleMount:
		return "STALE_MOUNT"
	default:
		return "UNKNOWN"
	}
}

// watchdog bounds a single classify probe (spec.md §4.4: 2s).
const defaultWatchdog = 2 * time.Second

// classifyCacheTTL bounds how long a classify() result is reused across
// callers that probe the same path within the same reconciliation tick
// (the health monitor and the reconciler's orphan scan both do), avoiding
// duplicate /proc/self/mountinfo reads.
const classifyCacheTTL = 3 * time.Second

type cachedClassification struct {
	c        Classification
	cachedAt time.Time
}

// Inspector classifies filesystem paths against the kernel mount table.
type Inspector struct {
	logger   zerolog.Logger
	watchdog time.Duration

	cacheMu sync.Mutex
	cache   *lru.Cache
}

func New(logger zerolog.Logger, watchdog time.Duration) *Inspector {
	if watchdog <= 0 {
		watchdog = defaultWatchdog
	}
	return &Inspector{logger: logger, watchdog: watchdog, cache: lru.New(256)}
}

// cacheKey hashes a path to a short, filesystem-safe base36 string, the
// same keying scheme the teacher uses for its TLS cert-info memoization.
func cacheKey(path string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return base36.EncodeBytes(h.Sum(nil))
}

// Classify returns exactly one Classification for path, degrading to
// StaleMount if the probe does not complete within the watchdog (spec.md
// §4.4). Tie-break: STALE_MOUNT wins over NON_DIR.
func (in *Inspector) Classify(path string) Classification {
	key := cacheKey(path)

	in.cacheMu.Lock()
	if v, ok := in.cache.Get(key); ok {
		entry := v.(cachedClassification)
		if time.Since(entry.cachedAt) < classifyCacheTTL {
			in.cacheMu.Unlock()
			return entry.c
		}
	}
	in.cacheMu.Unlock()

	type result struct {
		c Classification
	}
	done := make(chan result, 1)

	go func() {
		done <- result{c: in.classifyNow(path)}
	}()

	var c Classification
	select {
	case r := <-done:
		c = r.c
	case <-time.After(in.watchdog):
		in.logger.Warn().Str("path", path).Msg("classify watchdog fired, degrading to STALE_MOUNT")
		c = StaleMount
	}

	in.cacheMu.Lock()
	in.cache.Add(key, cachedClassification{c: c, cachedAt: time.Now()})
	in.cacheMu.Unlock()

	return c
}

func (in *Inspector) classifyNow(path string) Classification {
	mounted, err := isMountPoint(path)
	if err != nil {
		// Statfs/stat failing with a broken-endpoint error is itself a
		// STALE_MOUNT signal, independent of the mount table.
		if isBrokenEndpoint(err) {
			return StaleMount
		}
	}

	fi, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			if mounted {
				// Listed in the mount table but the path itself can't be
				// stat'd: classic stale/dangling FUSE mount.
				return StaleMount
			}
			return Absent
		}
		if isBrokenEndpoint(statErr) {
			return StaleMount
		}
		return Absent
	}

	if mounted {
		if _, rdErr := os.ReadDir(path); rdErr != nil {
			return StaleMount
		}
		return LiveMount
	}

	if !fi.IsDir() {
		return NonDir
	}

	entries, rdErr := os.ReadDir(path)
	if rdErr != nil {
		if isBrokenEndpoint(rdErr) {
			return StaleMount
		}
		return NonDir
	}
	if len(entries) == 0 {
		return EmptyDir
	}
	return NonEmptyDir
}

// homeMountPrefix matches the naming convention from spec.md §6:
// haio-<username>-<container>.
const homeMountPrefix = "haio-"

// FindOrphanMounts scans the user's home for entries matching the naming
// convention whose classification is LiveMount or StaleMount but are not
// present in knownMountPoints (spec.md §4.4).
func (in *Inspector) FindOrphanMounts(ctx context.Context, username string, knownMountPoints map[string]bool) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(home)
	if err != nil {
		return nil, err
	}

	prefix := homeMountPrefix + username + "-"
	var orphans []string
	for _, e := range entries {
		if !hasPrefix(e.Name(), prefix) {
			continue
		}
		full := joinHome(home, e.Name())
		if knownMountPoints[full] {
			continue
		}
		switch in.Classify(full) {
		case LiveMount, StaleMount:
			orphans = append(orphans, full)
		}
	}
	return orphans, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func joinHome(home, name string) string {
	if home == "" {
		return name
	}
	return home + string(os.PathSeparator) + name
}
