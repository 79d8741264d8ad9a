//go:build !linux && !darwin

package timestamp

import "time"

// processStart anchors a process-relative monotonic reading. Sensor timestamps
// only come from the Pi camera stack on Linux, so this is for development builds.
var processStart = time.Now()

func monotonicNow() (time.Duration, error) {
	return time.Since(processStart), nil
}
