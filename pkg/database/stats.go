package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TypeCount represents a count by type
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// InstanceStats holds the cached statistics of one instance
type InstanceStats struct {
	Prefix     string           `json:"prefix"`
	Computed   string           `json:"computed"`
	Records    int              `json:"records"`
	States     []TypeCount      `json:"states"`
	Hierarchy  []TypeCount      `json:"hierarchyLevels"`
	Keywords   int              `json:"keywords"`
	Contacts   int              `json:"contacts"`
	Queue      map[string]int64 `json:"queue"`
	WithExtent int              `json:"withExtent"`
}

// statsCache keeps one entry per prefix. Concurrent computations of the
// same prefix are collapsed into one.
type statsCache struct {
	mu    sync.RWMutex
	stats map[string]*InstanceStats
	group singleflight.Group
}

func newStatsCache() *statsCache {
	return &statsCache{stats: make(map[string]*InstanceStats)}
}

func (c *statsCache) get(prefix string) *InstanceStats {
	if !c.mu.TryRLock() {
		return nil
	}
	defer c.mu.RUnlock()

	return c.stats[prefix]
}

func (c *statsCache) set(prefix string, stats *InstanceStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[prefix] = stats
}

// invalidate drops the cached entry so it is recomputed on next access
func (c *statsCache) invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, prefix)
}

// InstanceStats returns the statistics of an instance, computing them when
// they are not cached. Queue counts are always fresh.
func (g *Gateway) InstanceStats(ctx context.Context, prefix string) (*InstanceStats, error) {
	queue, err := g.QueueCounts(ctx, prefix)
	if err != nil {
		return nil, err
	}

	v, err, _ := g.stats.group.Do(prefix, func() (interface{}, error) {
		if cached := g.stats.get(prefix); cached != nil {
			return cached, nil
		}
		stats, err := g.computeStats(ctx, prefix)
		if err != nil {
			return nil, err
		}
		g.stats.set(prefix, stats)
		return stats, nil
	})
	if err != nil {
		return nil, err
	}

	stats := *v.(*InstanceStats)
	stats.Queue = queue
	return &stats, nil
}

func (g *Gateway) computeStats(ctx context.Context, prefix string) (*InstanceStats, error) {
	t, err := tablesFor(prefix)
	if err != nil {
		return nil, err
	}

	db := g.db.WithContext(ctx)
	stats := &InstanceStats{
		Prefix:   prefix,
		Computed: time.Now().UTC().Format(time.RFC3339),
	}

	var records, keywords, contacts, extent int64
	if err := db.Table(t.records).Count(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	if err := db.Table(t.keywords).Count(&keywords).Error; err != nil {
		return nil, fmt.Errorf("failed to count keywords: %w", err)
	}
	if err := db.Table(t.contacts).Count(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	if err := db.Table(t.records).Where("spatial IS NOT NULL").Count(&extent).Error; err != nil {
		return nil, fmt.Errorf("failed to count extents: %w", err)
	}
	stats.Records = int(records)
	stats.Keywords = int(keywords)
	stats.Contacts = int(contacts)
	stats.WithExtent = int(extent)

	// Count records by state
	if err := db.Table(t.records).
		Select("state as type, COUNT(*) as count").
		Group("state").
		Scan(&stats.States).Error; err != nil {
		return nil, fmt.Errorf("failed to count states: %w", err)
	}

	// Count records by hierarchy level
	if err := db.Table(t.records).
		Select("COALESCE(hierarchy_level, '') as type, COUNT(*) as count").
		Group("hierarchy_level").
		Scan(&stats.Hierarchy).Error; err != nil {
		return nil, fmt.Errorf("failed to count hierarchy levels: %w", err)
	}

	return stats, nil
}
