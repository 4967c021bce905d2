//go:build linux || darwin || freebsd

package kms

import "golang.org/x/sys/unix"

// LockMemory pins key material so it cannot be swapped to disk.
func LockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

// UnlockMemory releases a previous LockMemory pin.
func UnlockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
