package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"vaultgram/pkg/dispatch"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/transport"
	"vaultgram/pkg/validation"
)

// startFeed opens the configured update source and starts the pump
// goroutine. The returned channel closes when the feed drains.
func (a *App) startFeed(ctx context.Context) (<-chan struct{}, error) {
	cfg := a.eff.Config.Feed

	var r io.Reader
	var closer io.Closer
	switch cfg.Source {
	case "", "stdin":
		r = os.Stdin
		logger.Info("feed_source", "source", "stdin")
	default:
		f, err := os.Open(cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("open feed source %s: %w", cfg.Source, err)
		}
		r = f
		closer = f
		logger.Info("feed_source", "source", cfg.Source)
	}

	feed := transport.NewLineFeed(r, cfg.MaxUpdateBytes.Int())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if closer != nil {
			defer closer.Close()
		}
		a.pump(ctx, feed)
	}()
	return done, nil
}

// pump drains the feed: parse, validate, enqueue. Malformed or unknown
// updates are skipped so one bad line never stalls the stream.
func (a *App) pump(ctx context.Context, feed transport.UpdateFeed) {
	for {
		raw, release, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("feed_eof")
			} else if !errors.Is(err, context.Canceled) {
				logger.Error("feed_read_failed", "error", err)
			}
			return
		}

		ev, perr := transport.ParseUpdate(raw)
		release()
		if perr != nil {
			var unknown transport.ErrUnknownUpdate
			if errors.As(perr, &unknown) {
				logger.Debug("update_skipped", "type", unknown.Type)
			} else {
				logger.Warn("update_malformed", "error", perr)
			}
			continue
		}
		if verr := validation.ValidateEvent(ev); verr != nil {
			logger.Warn("update_rejected", "error", verr)
			continue
		}
		if qerr := a.disp.Enqueue(ctx, ev); qerr != nil {
			if errors.Is(qerr, dispatch.ErrClosed) || errors.Is(qerr, context.Canceled) {
				return
			}
			logger.Error("enqueue_failed", "error", qerr)
		}
	}
}
