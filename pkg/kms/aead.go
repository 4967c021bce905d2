package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	aead "github.com/hashicorp/go-kms-wrapping/v2/aead"
)

type aeadProvider struct {
	ctx context.Context
	w   *aead.Wrapper
}

// NewAEADProvider creates a provider backed by the hashicorp aead wrapper
// using a raw 32-byte key.
func NewAEADProvider(ctx context.Context, key []byte) (Provider, error) {
	if len(key) != 32 {
		return nil, errors.New("invalid key length")
	}
	w := aead.NewWrapper()
	cfg := map[string]string{"key": base64.StdEncoding.EncodeToString(key), "key_id": "local"}
	if _, err := w.SetConfig(ctx, wrapping.WithConfigMap(cfg)); err != nil {
		return nil, fmt.Errorf("wrapper setconfig failed: %w", err)
	}
	return &aeadProvider{ctx: ctx, w: w}, nil
}

func (p *aeadProvider) Enabled() bool {
	return p != nil && p.w != nil
}

func (p *aeadProvider) Encrypt(plaintext, aad []byte) ([]byte, error) {
	if p.w == nil {
		return nil, ErrNoKey
	}
	info, err := p.w.Encrypt(p.ctx, plaintext, wrapping.WithAad(aad))
	if err != nil {
		return nil, err
	}
	if info == nil || len(info.Ciphertext) == 0 {
		return nil, errors.New("encrypt returned empty")
	}
	return info.Ciphertext, nil
}

func (p *aeadProvider) Decrypt(ciphertext, aad []byte) ([]byte, error) {
	if p.w == nil {
		return nil, ErrNoKey
	}
	keyID, _ := p.w.KeyId(p.ctx)
	info := &wrapping.BlobInfo{Ciphertext: ciphertext, KeyInfo: &wrapping.KeyInfo{KeyId: keyID}}
	return p.w.Decrypt(p.ctx, info, wrapping.WithAad(aad))
}

func (p *aeadProvider) Close() error {
	if f, ok := any(p.w).(interface {
		Finalize(context.Context, ...wrapping.Option) error
	}); ok {
		return f.Finalize(p.ctx)
	}
	return nil
}

// Disabled returns a provider that stores records in the clear. It exists
// for local debugging only; the daemon refuses to start with it unless
// explicitly configured.
func Disabled() Provider { return disabledProvider{} }

type disabledProvider struct{}

func (disabledProvider) Enabled() bool                        { return false }
func (disabledProvider) Encrypt(pt, _ []byte) ([]byte, error) { return pt, nil }
func (disabledProvider) Decrypt(ct, _ []byte) ([]byte, error) { return ct, nil }
func (disabledProvider) Close() error                         { return nil }
