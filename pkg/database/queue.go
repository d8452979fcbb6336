package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iziplay/csw-harvester/pkg/csw"
	"gorm.io/gorm"
)

// Queue row states
const (
	QueueNew         = "new"
	QueueDownloading = "downloading"
	QueueFailed      = "failed"
)

// InsertQueue replaces the queue of an instance with the given page requests
func (g *Gateway) InsertQueue(ctx context.Context, prefix string, pages []csw.PageRequest) error {
	t, err := tablesFor(prefix)
	if err != nil {
		return err
	}

	items := make([]QueueItem, 0, len(pages))
	for _, p := range pages {
		options, err := json.Marshal(p.Options)
		if err != nil {
			return fmt.Errorf("failed to encode request options: %w", err)
		}
		items = append(items, QueueItem{URL: p.URL, Options: string(options), State: QueueNew})
	}

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM " + t.queue).Error; err != nil {
			return fmt.Errorf("failed to clear queue: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		if err := tx.Table(t.queue).CreateInBatches(items, 500).Error; err != nil {
			return fmt.Errorf("failed to insert queue: %w", err)
		}
		return nil
	})
}

// NextPackage atomically claims one new queue row. ok is false when the
// queue holds nothing left to claim.
func (g *Gateway) NextPackage(ctx context.Context, prefix string) (id uint, ok bool, err error) {
	t, err := tablesFor(prefix)
	if err != nil {
		return 0, false, err
	}

	var ids []uint
	err = g.db.WithContext(ctx).Raw(
		fmt.Sprintf(`UPDATE %[1]s SET state = ? WHERE id = (
			SELECT id FROM %[1]s WHERE state = ? ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED
		) RETURNING id`, t.queue),
		QueueDownloading, QueueNew,
	).Scan(&ids).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim queue item: %w", err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// QueueItem loads the stored request of a queue row
func (g *Gateway) QueueItem(ctx context.Context, prefix string, id uint) (csw.PageRequest, error) {
	t, err := tablesFor(prefix)
	if err != nil {
		return csw.PageRequest{}, err
	}

	var item QueueItem
	err = g.db.WithContext(ctx).Table(t.queue).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return csw.PageRequest{}, fmt.Errorf("%w: %s/%d", ErrQueueItemMissing, prefix, id)
	}
	if err != nil {
		return csw.PageRequest{}, fmt.Errorf("failed to get queue item: %w", err)
	}

	req := csw.PageRequest{URL: item.URL}
	if err := json.Unmarshal([]byte(item.Options), &req.Options); err != nil {
		return csw.PageRequest{}, fmt.Errorf("failed to decode request options: %w", err)
	}
	return req, nil
}

// RemoveFromQueue deletes a processed queue row
func (g *Gateway) RemoveFromQueue(ctx context.Context, prefix string, id uint) error {
	t, err := tablesFor(prefix)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Exec("DELETE FROM "+t.queue+" WHERE id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	return nil
}

// SetQueueFailed marks a queue row as failed, it is not retried
func (g *Gateway) SetQueueFailed(ctx context.Context, prefix string, id uint) error {
	return g.setQueueState(ctx, prefix, "id = ?", []any{id}, QueueFailed)
}

// ResetQueues puts rows left in downloading state by an interrupted run
// back to new, for every instance
func (g *Gateway) ResetQueues(ctx context.Context) error {
	var instances []Instance
	if err := g.db.WithContext(ctx).Order("id").Find(&instances).Error; err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	for _, inst := range instances {
		if err := g.setQueueState(ctx, inst.Prefix, "state = ?", []any{QueueDownloading}, QueueNew); err != nil {
			return err
		}
	}

	slog.Info("Queues reset", "instances", len(instances))
	return nil
}

func (g *Gateway) setQueueState(ctx context.Context, prefix, where string, args []any, state string) error {
	t, err := tablesFor(prefix)
	if err != nil {
		return err
	}
	err = g.db.WithContext(ctx).Table(t.queue).Where(where, args...).Update("state", state).Error
	if err != nil {
		return fmt.Errorf("failed to update %s queue: %w", prefix, err)
	}
	return nil
}

// QueueCounts returns the number of queue rows per state
func (g *Gateway) QueueCounts(ctx context.Context, prefix string) (map[string]int64, error) {
	t, err := tablesFor(prefix)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		State string
		Count int64
	}
	err = g.db.WithContext(ctx).Table(t.queue).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}
