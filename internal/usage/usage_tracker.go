// Package usage keeps per-endpoint request statistics across runs.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rungchat/internal/logging"
)

const saveDelay = 2 * time.Second

// Tracker aggregates requests and persists them to a JSON file.
type Tracker struct {
	mu            sync.Mutex
	data          UsageData
	filePath      string
	dirty         bool
	autoSaveTimer *time.Timer
	now           func() time.Time
}

// NewTracker creates a tracker backed by path. Existing data is loaded; a
// corrupt file is logged and replaced on the next save.
func NewTracker(path string) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage directory: %w", err)
	}
	t := &Tracker{
		filePath: path,
		data:     emptyData(),
		now:      time.Now,
	}
	if err := t.Load(); err != nil {
		logging.Get(logging.CategoryStore).Warn("usage: ignoring unreadable %s: %v", path, err)
		t.data = emptyData()
	}
	return t, nil
}

func emptyData() UsageData {
	return UsageData{
		Version: "1",
		Aggregate: AggregatedStats{
			ByEndpoint: make(map[string]RequestCounts),
			ByOutcome:  make(map[string]int64),
		},
	}
}

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}
	if t.data.Aggregate.ByEndpoint == nil {
		t.data.Aggregate.ByEndpoint = make(map[string]RequestCounts)
	}
	if t.data.Aggregate.ByOutcome == nil {
		t.data.Aggregate.ByOutcome = make(map[string]int64)
	}
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.filePath, data, 0644); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Track records one request. Saving is debounced.
func (t *Tracker) Track(endpoint, outcome string, failed bool, serverSeconds float64, wall time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Total.Add(failed, serverSeconds, wall.Seconds())
	entry := agg.ByEndpoint[endpoint]
	entry.Add(failed, serverSeconds, wall.Seconds())
	agg.ByEndpoint[endpoint] = entry
	agg.ByOutcome[outcome]++
	agg.LastUsed = t.now()

	if !t.dirty {
		t.dirty = true
		if t.autoSaveTimer != nil {
			t.autoSaveTimer.Stop()
		}
		t.autoSaveTimer = time.AfterFunc(saveDelay, func() {
			if err := t.Save(); err != nil {
				logging.Get(logging.CategoryStore).Error("usage: save failed: %v", err)
			}
		})
	}
}

// Close stops a pending autosave and writes outstanding data.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.autoSaveTimer != nil {
		t.autoSaveTimer.Stop()
		t.autoSaveTimer = nil
	}
	if !t.dirty {
		return nil
	}
	return t.saveLocked()
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByEndpoint = make(map[string]RequestCounts, len(t.data.Aggregate.ByEndpoint))
	for k, v := range t.data.Aggregate.ByEndpoint {
		stats.ByEndpoint[k] = v
	}
	stats.ByOutcome = make(map[string]int64, len(t.data.Aggregate.ByOutcome))
	for k, v := range t.data.Aggregate.ByOutcome {
		stats.ByOutcome[k] = v
	}
	return stats
}

// Reset clears all counters and saves.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = emptyData()
	return t.saveLocked()
}
