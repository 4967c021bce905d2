package app

import (
	"fmt"
	"net"

	"vaultgram/pkg/config"
)

// validateConfig fails fast on settings that would only surface as runtime
// errors later.
func validateConfig(eff config.Effective) error {
	if eff.Config == nil {
		return fmt.Errorf("no effective config")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("db path is required (use --db or VAULTGRAM_DB_PATH)")
	}
	if _, _, err := net.SplitHostPort(eff.Addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", eff.Addr, err)
	}
	cfg := eff.Config
	if cfg.Dispatch.Lanes < 0 || cfg.Dispatch.LaneDepth < 0 {
		return fmt.Errorf("dispatch lanes and lane_depth must be non-negative")
	}
	if cfg.History.FetchRPS < 0 {
		return fmt.Errorf("history fetch_rps must be non-negative")
	}
	if cfg.Buffer.MaxEntries < 0 || cfg.Buffer.MaxBytes < 0 {
		return fmt.Errorf("buffer bounds must be non-negative")
	}
	if cfg.Retention.Enabled && cfg.Retention.Period <= 0 {
		return fmt.Errorf("retention enabled but no period configured")
	}
	return nil
}
