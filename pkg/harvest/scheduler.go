package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NextRun returns how long to wait before the next scheduled harvest
func (h *Harvester) NextRun(ctx context.Context, interval time.Duration) (time.Duration, error) {
	last, err := h.store.LastHarvest(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot schedule harvest: %w", err)
	}
	if last == nil {
		return 0, nil
	}

	// If the wait is negative, harvest immediately
	return max(time.Until(last.Date.Add(interval)), 0), nil
}

// Schedule harvests all active instances every interval, counted from the
// last logged run, until ctx is done
func (h *Harvester) Schedule(ctx context.Context, interval time.Duration) error {
	for {
		wait, err := h.NextRun(ctx, interval)
		if err != nil {
			return err
		}

		slog.Info("Next harvest scheduled", "in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		run, err := h.ProcessAll(ctx)
		if err != nil {
			slog.Error("Harvest failed", "error", err)
			// the run was not logged, so the next wait would be zero
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Minute):
			}
			continue
		}
		slog.Info("Harvest completed",
			"instances", run.Instances,
			"pages", run.Pages,
			"failed", run.Failed,
			"new", run.New,
			"updated", run.Updated,
			"ignored", run.Ignored,
			"complete", run.Complete,
		)
	}
}
