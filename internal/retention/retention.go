package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"vaultgram/pkg/config"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/state"
	"vaultgram/pkg/store"
)

var (
	storedEff *config.Effective
	storedSt  *store.Store
)

// Register stores the effective config and store handle so tests (or admin
// triggers) can invoke retention runs on-demand.
func Register(eff config.Effective, st *store.Store) {
	storedEff = &eff
	storedSt = st
}

// RunImmediate triggers a single retention sweep using the registered
// config and store.
func RunImmediate() error {
	if storedEff == nil || storedSt == nil {
		return fmt.Errorf("no effective config registered for retention run")
	}
	if state.PathsVar.Retention == "" {
		return fmt.Errorf("state paths not initialized")
	}
	return runOnce(context.Background(), *storedEff, storedSt, state.PathsVar.Retention)
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.Effective, st *store.Store) (context.CancelFunc, error) {
	ret := eff.Config.Retention

	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	// Lock and last-run artifacts live in a stable folder under the DB
	// path: <DBPath>/state/retention.
	retentionPath := state.PathsVar.Retention
	if err := os.MkdirAll(retentionPath, 0o700); err != nil {
		logger.Error("retention_path_create_failed", "path", retentionPath, "error", err)
		return nil, err
	}

	// map empty cron to default daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", time.Duration(ret.Period).String(), "path", retentionPath)
	ctx2, cancel := context.WithCancel(ctx)

	go runScheduler(ctx2, eff, st, retentionPath, cronExpr)

	logger.Info("retention_scheduler_started", "path", retentionPath)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, eff config.Effective, st *store.Store, retentionPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			// due now-ish; run immediately
			if err := runOnce(ctx, eff, st, retentionPath); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			if err := runOnce(ctx, eff, st, retentionPath); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce performs one retention sweep under an exclusive lock file so
// overlapping ticks never run two sweeps at once. Revision and deletion
// records older than the configured period are purged; message records are
// never touched.
func runOnce(ctx context.Context, eff config.Effective, st *store.Store, retentionPath string) error {
	ret := eff.Config.Retention
	period := time.Duration(ret.Period)
	if period <= 0 {
		logger.Info("retention_skipped", "reason", "no period configured")
		return nil
	}

	lockPath := filepath.Join(retentionPath, "retention.lock")
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			logger.Warn("retention_lock_held", "path", lockPath)
			return nil
		}
		return fmt.Errorf("acquire retention lock: %w", err)
	}
	defer func() {
		lock.Close()
		_ = os.Remove(lockPath)
	}()

	cutoff := time.Now().UTC().Add(-period).UnixNano()
	start := time.Now()
	logger.Info("retention_run_start", "cutoff", cutoff, "dry_run", ret.DryRun)

	var total store.PurgeStats
	for {
		stats, perr := st.PurgeExpired(ctx, cutoff, ret.BatchSize, ret.DryRun)
		total.Revisions += stats.Revisions
		total.Deletions += stats.Deletions
		total.Skipped += stats.Skipped
		if perr != nil {
			return perr
		}
		if !stats.Truncated || ret.DryRun {
			break
		}
	}

	if err := writeLastRun(retentionPath, total); err != nil {
		logger.Warn("retention_marker_write_failed", "error", err)
	}
	logger.Info("retention_run_complete",
		"revisions", total.Revisions,
		"deletions", total.Deletions,
		"skipped", total.Skipped,
		"dry_run", ret.DryRun,
		"elapsed", time.Since(start).String())
	return nil
}

// writeLastRun records the outcome of the latest sweep for inspection.
func writeLastRun(retentionPath string, stats store.PurgeStats) error {
	marker := filepath.Join(retentionPath, "last_run")
	body := fmt.Sprintf("ts=%s revisions=%d deletions=%d skipped=%d\n",
		time.Now().UTC().Format(time.RFC3339), stats.Revisions, stats.Deletions, stats.Skipped)
	return os.WriteFile(marker, []byte(body), 0o600)
}
