// Package recorder journals display_data messages published by a dispatcher.
package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mattjoyce/widgetsync/internal/dispatch"
	"github.com/mattjoyce/widgetsync/internal/events"
	"github.com/mattjoyce/widgetsync/internal/storage"
)

// Journal is the storage the recorder writes to.
type Journal interface {
	Append(ctx context.Context, e storage.DisplayEntry) (int64, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Recorder copies display_data notifications from a hub into a journal and
// prunes old entries on an interval.
type Recorder struct {
	journal    Journal
	hub        *events.Hub
	document   string
	retention  time.Duration
	pruneEvery time.Duration
	logger     *slog.Logger
}

// New builds a Recorder. A zero retention keeps entries forever.
func New(journal Journal, hub *events.Hub, document string, retention, pruneEvery time.Duration, logger *slog.Logger) *Recorder {
	if pruneEvery <= 0 {
		pruneEvery = time.Hour
	}
	return &Recorder{
		journal:    journal,
		hub:        hub,
		document:   document,
		retention:  retention,
		pruneEvery: pruneEvery,
		logger:     logger,
	}
}

// Run records until ctx is done or the hub closes. Journal failures are
// logged and do not stop recording.
func (r *Recorder) Run(ctx context.Context) error {
	ch, cancel := r.hub.Subscribe()
	defer cancel()

	ticker := time.NewTicker(r.pruneEvery)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev events.Event) {
	if ev.Type != dispatch.KindDisplayData {
		return
	}
	var dm dispatch.DisplayMessage
	if err := ev.Decode(&dm); err != nil {
		r.logger.Warn("skipping undecodable display message", "event_id", ev.ID, "error", err)
		return
	}
	content, err := json.Marshal(dm.Content)
	if err != nil {
		r.logger.Warn("skipping display message", "msg_id", dm.MsgID, "error", err)
		return
	}

	seq, err := r.journal.Append(ctx, storage.DisplayEntry{
		Document: r.document,
		KernelID: dm.KernelID,
		MsgID:    dm.MsgID,
		ParentID: dm.ParentID,
		Content:  content,
	})
	if err != nil {
		r.logger.Error("failed to journal display message", "msg_id", dm.MsgID, "error", err)
		return
	}
	r.logger.Debug("display message journaled", "msg_id", dm.MsgID, "seq", seq)
}

func (r *Recorder) prune(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	n, err := r.journal.Prune(ctx, r.retention)
	if err != nil {
		r.logger.Error("failed to prune display journal", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned display journal", "removed", n)
	}
}
