package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vaultgram/pkg/antidelete"
	"vaultgram/pkg/buffer"
	"vaultgram/pkg/config"
	"vaultgram/pkg/dispatch"
	"vaultgram/pkg/ghost"
	"vaultgram/pkg/history"
	"vaultgram/pkg/kms"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
	"vaultgram/pkg/state"
	"vaultgram/pkg/store"
	"vaultgram/pkg/transport"
	"vaultgram/pkg/validation"

	"vaultgram/internal/retention"
)

// App encapsulates the shadow-store components and lifecycle.
type App struct {
	eff       config.Effective
	version   string
	commit    string
	buildDate string

	key  []byte
	prov kms.Provider

	st    *store.Store
	buf   *buffer.Buffer
	anti  *antidelete.Engine
	hist  *history.Tracker
	ghost *ghost.Filter
	disp  *dispatch.Dispatcher
	tr    transport.Transport

	srv       *http.Server
	retCancel context.CancelFunc
}

// New initializes resources that do not require a running context: config
// validation, state dirs, key derivation, the store and the capture path.
// It does not start the dispatcher, feed pump or HTTP server; call Run to
// start those and block until shutdown.
func New(eff config.Effective, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state dirs under %s: %w", eff.DBPath, err)
	}
	initValidation(eff)

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate}

	if err := a.setupProvider(context.Background()); err != nil {
		return nil, err
	}

	cfg := eff.Config
	st, err := store.Open(state.PathsVar.Store, a.prov, store.Options{
		OpTimeout:     cfg.Storage.OpTimeout.Duration(),
		RetryAttempts: cfg.Storage.RetryAttempts,
		RetryBackoff:  cfg.Storage.RetryBackoff.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}
	a.st = st

	// Eviction flush keeps the buffer from ever being the sole copy of a
	// captured message.
	a.buf = buffer.New(cfg.Buffer.MaxEntries, cfg.Buffer.MaxBytes.Int64(), func(msg models.Message) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return st.PutMessage(ctx, msg)
	})

	a.tr = transport.Unconnected()
	a.anti = antidelete.New(st, a.buf)
	a.hist = history.New(st, a.buf, a.tr, cfg.History.FetchRPS)
	a.ghost = ghost.New(a.tr, ghost.Flags{
		Enabled:    cfg.Ghost.Enabled,
		HideOnline: cfg.Ghost.HideOnline,
		HideTyping: cfg.Ghost.HideTyping,
		HideRead:   cfg.Ghost.HideRead,
	})

	return a, nil
}

// Run starts the dispatcher, feed pump, retention scheduler and HTTP
// server, and blocks until ctx is canceled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	cfg := a.eff.Config

	a.disp = dispatch.New(a.sink(), cfg.Dispatch.Lanes, cfg.Dispatch.LaneDepth)

	retention.Register(a.eff, a.st)
	retCancel, err := retention.Start(ctx, a.eff, a.st)
	if err != nil {
		a.shutdown()
		return err
	}
	a.retCancel = retCancel

	a.printBanner()

	feedDone, err := a.startFeed(ctx)
	if err != nil {
		a.shutdown()
		return err
	}
	errCh := a.startHTTP()

	var runErr error
	select {
	case <-ctx.Done():
	case <-feedDone:
		logger.Info("feed_drained_stopping")
	case runErr = <-errCh:
		if errors.Is(runErr, http.ErrServerClosed) {
			runErr = nil
		}
	}

	a.shutdown()
	return runErr
}

// sink wires the engines into the dispatcher. Handler errors are logged by
// the lane worker; they never stop ingestion.
func (a *App) sink() dispatch.Sink {
	return dispatch.Sink{
		NewMessage: a.anti.HandleNewMessage,
		Edited: func(ctx context.Context, ev dispatch.MessageEdited) error {
			return a.hist.HandleEdited(ctx, ev.ChatID, ev.MessageID, ev.Content, ev.EditedTS, ev.EditedBy)
		},
		Deleted: func(ctx context.Context, ev dispatch.MessagesDeleted) error {
			var errs error
			for _, res := range a.anti.HandleDeleted(ctx, ev.ChatID, ev.MessageIDs) {
				if res.Err != nil {
					errs = errors.Join(errs, fmt.Errorf("tombstone %d/%d: %w", ev.ChatID, res.MessageID, res.Err))
				}
			}
			return errs
		},
		Status: a.ghost.AllowStatus,
	}
}

// shutdown releases components in dependency order: intake stops first, the
// buffer flushes while the store is still open, the key is wiped last.
func (a *App) shutdown() {
	if a.disp != nil {
		a.disp.Close()
	}
	if a.buf != nil {
		a.buf.FlushAll()
	}
	if a.retCancel != nil {
		a.retCancel()
	}
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.srv.Shutdown(sctx)
		cancel()
	}
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}
	if a.prov != nil {
		_ = a.prov.Close()
	}
	kms.Zeroize(a.key)
	logger.Info("shutdown_complete")
}

// initValidation builds event sanity rules from config limits and sets
// them globally.
func initValidation(eff config.Effective) {
	lim := eff.Config.Limits
	validation.SetRules(validation.Rules{
		MaxTextBytes:     lim.MaxTextBytes.Int(),
		MaxEnvelopeBytes: lim.MaxEnvelopeBytes.Int(),
		MaxBatchSize:     lim.MaxBatchSize,
	})
}
