//go:build purego
// +build purego

package clock

import "time"

var nanoBase = time.Now()

// nanotime reads the runtime monotonic clock through time.Since when linkname
// is unavailable.
func nanotime() int64 {
	return int64(time.Since(nanoBase))
}
