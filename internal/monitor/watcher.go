package monitor

import (
	"context"
	"log"

	"treasure-monitor/internal/solana"
)

// Watcher turns WebSocket log notifications into poller wake-ups. The
// subscription is a latency optimization only: dropped or duplicate
// notifications are harmless because every cycle re-reads from the
// watermark.
type Watcher struct {
	ws        solana.WSClient
	programID string
	logger    *log.Logger
	wake      chan struct{}
}

// NewWatcher creates a Watcher for the given program.
func NewWatcher(ws solana.WSClient, programID string, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[monitor] ", log.LstdFlags)
	}
	return &Watcher{
		ws:        ws,
		programID: programID,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// Wake returns the channel pulled by the poller.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Run subscribes and forwards notifications until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	notifications, err := w.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{w.programID},
	})
	if err != nil {
		return err
	}
	w.logger.Printf("watching logs for program %s", w.programID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if n.Err != nil {
				// Failed transactions are excluded by the poller anyway.
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
				// A wake-up is already pending.
			}
		}
	}
}
