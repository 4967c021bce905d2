package kms

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	"vaultgram/pkg/logger"
)

// argon2id parameters; changing these invalidates existing datastores, so
// they are fixed rather than configurable.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 2
	keyLen       = 32
	saltLen      = 16
)

// DeriveKey derives a 32-byte key from the configured passphrase and salt
// using argon2id. The passphrase itself is never persisted.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	if len(salt) != saltLen {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", saltLen, len(salt))
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLen)
	if err := LockMemory(key); err != nil {
		// mlock is best-effort; a locked-down container may forbid it
		logger.Warn("key_mlock_failed", "error", err)
	}
	return key, nil
}

// LoadOrCreateSalt reads the key-derivation salt stored beside the
// datastore, creating a fresh random one on first start. The salt is not
// secret; it only prevents passphrase-table attacks.
func LoadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, "kdf.salt")
	if b, err := os.ReadFile(path); err == nil {
		if len(b) != saltLen {
			return nil, fmt.Errorf("corrupt salt file %s: %d bytes", path, len(b))
		}
		return b, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt file: %w", err)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create salt dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write salt file: %w", err)
	}
	logger.Info("kdf_salt_created", "path", path)
	return salt, nil
}

// Zeroize overwrites key material in place and releases any memory lock.
func Zeroize(key []byte) {
	_ = UnlockMemory(key)
	for i := range key {
		key[i] = 0
	}
}
