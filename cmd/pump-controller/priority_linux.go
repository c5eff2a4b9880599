//go:build linux

package main

import "golang.org/x/sys/unix"

// setPriority sets the nice value of the whole process. 0 leaves it alone.
func setPriority(nice int) error {
	if nice == 0 {
		return nil
	}
	return unix.Setpriority(unix.PRIO_PROCESS, 0, nice)
}
