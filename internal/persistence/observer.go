package persistence

import (
	"context"
	"log/slog"

	"github.com/loomwork/loom/pkg/api"
)

// HistoryObserver records every engine event into an EventStore. Append
// failures are logged and never propagate into the run.
type HistoryObserver struct {
	store  EventStore
	logger *slog.Logger
}

var _ api.Observer = (*HistoryObserver)(nil)

func NewHistoryObserver(store EventStore, logger *slog.Logger) *HistoryObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryObserver{store: store, logger: logger}
}

func (h *HistoryObserver) OnEvent(ctx context.Context, ev api.Event) {
	if err := h.store.AppendEvent(ctx, FromEvent(ev)); err != nil {
		h.logger.ErrorContext(ctx, "history_append_failed",
			"run_id", ev.RunID,
			"event", string(ev.Type),
			"error", err)
	}
}
