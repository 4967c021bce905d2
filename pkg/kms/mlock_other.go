//go:build !linux && !darwin && !freebsd

package kms

// LockMemory is a no-op on platforms without mlock support.
func LockMemory(b []byte) error { return nil }

// UnlockMemory is a no-op on platforms without mlock support.
func UnlockMemory(b []byte) error { return nil }
