package app

import (
	"context"
	"fmt"

	"vaultgram/pkg/kms"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/state"
)

// setupProvider derives the store key from the configured passphrase and
// builds the AEAD provider. Plaintext operation must be opted into
// explicitly; a missing passphrase is otherwise a startup failure.
func (a *App) setupProvider(ctx context.Context) error {
	pass := a.eff.Passphrase()
	if pass == "" {
		if a.eff.Config.Security.AllowPlaintext {
			logger.Warn("encryption_disabled", "msg", "allow_plaintext set; records stored in the clear")
			a.prov = kms.Disabled()
			return nil
		}
		env := a.eff.Config.Security.PassphraseEnv
		if env == "" {
			env = "VAULTGRAM_PASSPHRASE"
		}
		return fmt.Errorf("no passphrase in %s and allow_plaintext not set", env)
	}

	salt, err := kms.LoadOrCreateSalt(state.PathsVar.State)
	if err != nil {
		return fmt.Errorf("kdf salt: %w", err)
	}
	key, err := kms.DeriveKey(pass, salt)
	if err != nil {
		return fmt.Errorf("derive store key: %w", err)
	}
	prov, err := kms.NewAEADProvider(ctx, key)
	if err != nil {
		kms.Zeroize(key)
		return fmt.Errorf("aead provider: %w", err)
	}
	a.key = key
	a.prov = prov
	logger.Info("encryption_enabled", "kdf", "argon2id")
	return nil
}
