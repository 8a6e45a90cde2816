//go:build !windows

package pipeline

import (
	"syscall"
	"time"
)

// processCPUTime returns the total user+system CPU time this process has
// consumed so far, sampled across ticks to derive a CPU% (spec §4.8,
// "system-wide stats: CPU %").
func processCPUTime() (time.Duration, bool) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	user := time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond
	sys := time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond
	return user + sys, true
}
