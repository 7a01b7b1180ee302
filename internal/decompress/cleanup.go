package decompress

import (
	"log/slog"
	"os"
)

// cleanupGuard implements the partial-write policy from §4.6: every path
// created during one Extract call is tracked, and removed if the call
// returns before disarm() is reached. A successful extraction calls
// disarm() just before returning, cancelling the cleanup.
type cleanupGuard struct {
	paths    []string
	disarmed bool
}

func newCleanupGuard() *cleanupGuard {
	return &cleanupGuard{}
}

func (g *cleanupGuard) track(path string) {
	g.paths = append(g.paths, path)
}

func (g *cleanupGuard) disarm() {
	g.disarmed = true
}

func (g *cleanupGuard) cleanupUnlessDisarmed() {
	if g.disarmed {
		return
	}
	for i := len(g.paths) - 1; i >= 0; i-- {
		if err := os.RemoveAll(g.paths[i]); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to clean up partial extraction output", "path", g.paths[i], "error", err)
		}
	}
}
