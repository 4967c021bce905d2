package kms

import (
	"bytes"
	"context"
	"testing"
)

// TestDeriveKeyDeterministic verifies the same passphrase and salt always
// derive the same key, and differing salts do not.
func TestDeriveKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x11}, 16)
	k1, err := DeriveKey("correct horse", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := DeriveKey("correct horse", salt)
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("derivation not deterministic")
	}
	other, err := DeriveKey("correct horse", bytes.Repeat([]byte{0x22}, 16))
	if err != nil {
		t.Fatalf("derive other: %v", err)
	}
	if bytes.Equal(k1, other) {
		t.Fatalf("different salts derived the same key")
	}
	if len(k1) != 32 {
		t.Fatalf("want 32-byte key, got %d", len(k1))
	}
}

// TestLoadOrCreateSalt verifies the salt persists across calls.
func TestLoadOrCreateSalt(t *testing.T) {
	dir := t.TempDir()
	s1, err := LoadOrCreateSalt(dir)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s2, err := LoadOrCreateSalt(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Fatalf("salt changed between calls")
	}
}

// TestAEADRoundTrip verifies encrypt/decrypt round-trips and that the AAD
// binds ciphertext to its record key.
func TestAEADRoundTrip(t *testing.T) {
	ctx := context.Background()
	prov, err := NewAEADProvider(ctx, bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	defer prov.Close()

	pt := []byte(`{"text":"secret"}`)
	aad := []byte("msg:1:2")
	ct, err := prov.Encrypt(pt, aad)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(ct, []byte("secret")) {
		t.Fatalf("plaintext visible in ciphertext")
	}
	got, err := prov.Decrypt(ct, aad)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	// a record moved to a different key must not authenticate
	if _, err := prov.Decrypt(ct, []byte("msg:1:3")); err == nil {
		t.Fatalf("decrypt with wrong aad succeeded")
	}
}

// TestDisabledProvider verifies the plaintext provider passes data through.
func TestDisabledProvider(t *testing.T) {
	prov := Disabled()
	if prov.Enabled() {
		t.Fatalf("disabled provider reports enabled")
	}
	pt := []byte("plain")
	ct, err := prov.Encrypt(pt, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := prov.Decrypt(ct, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("passthrough mismatch")
	}
}
