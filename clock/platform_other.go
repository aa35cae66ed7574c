//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly && !windows && !(js && wasm)
// +build !linux,!darwin,!freebsd,!netbsd,!openbsd,!dragonfly,!windows
// +build !js !wasm

package clock

// Platform falls back to the runtime counter where no native facility is
// wired up.
func Platform() Source {
	return Runtime()
}
