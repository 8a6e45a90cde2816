//go:build windows

package pipeline

import "time"

// processCPUTime has no portable implementation on Windows via the
// standard library alone; CPU% stays unavailable on this platform.
func processCPUTime() (time.Duration, bool) { return 0, false }
