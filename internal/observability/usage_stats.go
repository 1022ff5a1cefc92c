// Package observability tracks which dashboard views and filters are
// requested so operators can see how the dashboard is used.
package observability

import (
	"sort"
	"sync"
	"time"
)

// UsageStats counts view requests and filter values.
type UsageStats struct {
	mu         sync.RWMutex
	filterFreq map[string]*DimensionStats
	viewFreq   map[string]*DimensionStats
	window     time.Duration
}

// DimensionStats holds statistics for one filter dimension or view.
type DimensionStats struct {
	Name      string         `json:"name"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Values    map[string]int `json:"values,omitempty"` // value → count (e.g., "NCR" → 5)
}

// Report is a point-in-time copy of the busiest views and filters.
type Report struct {
	Views   []DimensionStats `json:"views"`
	Filters []DimensionStats `json:"filters"`
}

// NewUsageStats creates a tracker that forgets entries unused for window.
func NewUsageStats(window time.Duration) *UsageStats {
	return &UsageStats{
		filterFreq: make(map[string]*DimensionStats),
		viewFreq:   make(map[string]*DimensionStats),
		window:     window,
	}
}

// RecordFilter records one use of value for a filter dimension
// (e.g. "region", "NCR").
func (u *UsageStats) RecordFilter(dimension, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	record(u.filterFreq, dimension, value)
}

// RecordView records one request for a view such as "dashboard".
func (u *UsageStats) RecordView(view, year string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	record(u.viewFreq, view, year)
}

func record(m map[string]*DimensionStats, name, value string) {
	stats, exists := m[name]
	if !exists {
		stats = &DimensionStats{Name: name, Values: make(map[string]int)}
		m[name] = stats
	}
	stats.Frequency++
	stats.LastSeen = time.Now()
	if value != "" {
		stats.Values[value]++
	}
}

// TopFilters returns the n most used filter dimensions, busiest first.
func (u *UsageStats) TopFilters(n int) []DimensionStats {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return top(u.filterFreq, n)
}

// TopViews returns the n most requested views, busiest first.
func (u *UsageStats) TopViews(n int) []DimensionStats {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return top(u.viewFreq, n)
}

// Report returns the n busiest views and filters.
func (u *UsageStats) Report(n int) Report {
	return Report{Views: u.TopViews(n), Filters: u.TopFilters(n)}
}

func top(m map[string]*DimensionStats, n int) []DimensionStats {
	if n <= 0 || len(m) == 0 {
		return []DimensionStats{}
	}

	stats := make([]DimensionStats, 0, len(m))
	for _, s := range m {
		// Copies keep callers away from the live maps.
		c := DimensionStats{
			Name:      s.Name,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Values:    make(map[string]int, len(s.Values)),
		}
		for v, count := range s.Values {
			c.Values[v] = count
		}
		stats = append(stats, c)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Name < stats[j].Name
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within the window.
func (u *UsageStats) Prune() {
	u.mu.Lock()
	defer u.mu.Unlock()

	threshold := time.Now().Add(-u.window)
	for name, s := range u.filterFreq {
		if s.LastSeen.Before(threshold) {
			delete(u.filterFreq, name)
		}
	}
	for name, s := range u.viewFreq {
		if s.LastSeen.Before(threshold) {
			delete(u.viewFreq, name)
		}
	}
}

// RunPruner calls Prune every interval until stop is closed.
func (u *UsageStats) RunPruner(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			u.Prune()
		case <-stop:
			return
		}
	}
}
