//go:build linux

package worker

import "golang.org/x/sys/unix"

// pinToCore pins the calling OS thread to a single CPU core. The caller
// must already hold the OS thread via runtime.LockOSThread.
func pinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
