package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
)

// targetLoop is the suture service ticking one target
type targetLoop struct {
	manager  pkgsync.Manager
	interval time.Duration
	clock    clock.WithTicker
}

// Serve runs one tick immediately, then one per interval until ctx is done
func (l *targetLoop) Serve(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	slog.Info("Starting target loop", "target", l.manager.Target(), "interval", l.interval)
	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Target loop stopping", "target", l.manager.Target())
			return ctx.Err()
		case <-ticker.C():
			l.tick(ctx)
		}
	}
}

func (l *targetLoop) String() string {
	return "target-loop:" + l.manager.Target()
}

func (l *targetLoop) tick(ctx context.Context) {
	target := l.manager.Target()
	report, err := l.manager.DoUpdate(ctx)
	switch {
	case errors.Is(err, pkgsync.ErrUpdateInProgress):
		slog.Info("Skipping tick, an update is already running", "target", target)
	case errors.Is(err, pkgsync.ErrTickAborted):
		slog.Error("Tick aborted", "target", target, "error", err)
	case err != nil:
		if ctx.Err() == nil {
			slog.Error("Tick failed", "target", target, "error", err)
		}
	case report != nil:
		slog.Info("Tick completed",
			"target", target,
			"tick_id", report.ID,
			"outcome", report.Outcome(),
			"modified", report.Modified,
			"submitted", report.Submitted,
			"checked", report.Checked,
			"identified", report.Identified,
			"failed", report.Failed)
	}
}
