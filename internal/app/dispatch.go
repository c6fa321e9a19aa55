package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/ringwatch/internal/detect"
	"github.com/MrWong99/ringwatch/internal/eventlog"
	"github.com/MrWong99/ringwatch/internal/notify"
	"github.com/MrWong99/ringwatch/internal/observe"
)

// dispatchTimeout bounds the snapshot, notification and recording of one
// detection.
const dispatchTimeout = 30 * time.Second

// enqueue is the coordinator's event handler. It runs on the capture
// goroutine and must not block, so a full queue drops the event.
func (a *App) enqueue(ctx context.Context, ev detect.Event) {
	a.hub.PublishEvent(ev)
	select {
	case a.dispatch <- ev:
	default:
		a.metrics.DispatchDropped.Add(ctx, 1)
		a.log.Warn("dispatch queue full, dropping detection", "id", ev.ID, "mode", ev.Mode)
	}
}

// runDispatcher handles queued detections one at a time until ctx is done.
func (a *App) runDispatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.dispatch:
			a.handleDetection(ctx, ev)
		}
	}
}

// handleDetection issues a one-time code, grabs a snapshot, notifies the
// operator and records the outcome.
func (a *App) handleDetection(ctx context.Context, ev detect.Event) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	ctx, span := observe.StartDetectionSpan(ctx, "app.dispatch", ev.ID.String(), ev.Mode)
	defer span.End()
	log := observe.Logger(ctx, a.log).With("id", ev.ID)

	a.lastEvent.Store(&ev)
	entry := eventlog.Entry{Event: ev}

	code, err := a.otps.Generate()
	if err != nil {
		observe.FailSpan(span, err)
		log.Error("failed to generate unlock code", "err", err)
		entry.NotifyError = err.Error()
		a.record(ctx, log, entry)
		return
	}

	img, err := a.snapshots.Snapshot(ctx)
	if err != nil {
		log.Warn("camera snapshot failed", "err", err)
	}
	entry.Snapshot = !img.Empty()

	msg := notify.Message{
		Text:  notify.Render(*a.message.Load(), code, a.cfg.Server.UnlockURL),
		Image: img,
	}
	if err := a.notifier.Notify(ctx, msg); err != nil {
		observe.FailSpan(span, err)
		log.Error("notification failed", "err", err)
		entry.NotifyError = err.Error()
	} else {
		entry.Notified = true
		log.Info("operator notified", "snapshot", entry.Snapshot, "otp_expiry", a.otps.Expiry())
	}

	a.record(ctx, log, entry)
}

func (a *App) record(ctx context.Context, log *slog.Logger, entry eventlog.Entry) {
	if err := a.events.Record(ctx, entry); err != nil {
		log.Warn("failed to record detection", "err", err)
	}
}
