package kms

import "errors"

// ErrNoKey is returned when a provider is asked to operate without key
// material configured.
var ErrNoKey = errors.New("kms: no key material configured")

// Provider defines the operations the store expects from the encryption
// layer. The ciphertext format is provider-specific and opaque to callers.
type Provider interface {
	// Enabled reports whether the provider is available and should be used.
	Enabled() bool

	// Encrypt encrypts plaintext with optional associated data.
	Encrypt(plaintext, aad []byte) (ciphertext []byte, err error)

	// Decrypt returns the plaintext for the given ciphertext and AAD.
	// Authentication failure (corrupt or tampered data) is an error.
	Decrypt(ciphertext, aad []byte) (plaintext []byte, err error)

	// Close releases any resources held by the provider.
	Close() error
}
