// Package progress aggregates hydration progress across fetch purposes.
package progress

import (
	"log/slog"
	"sync"
)

// Tracker holds one progress value per purpose.
//
// A purpose that has received page n and is not finished reports
// n/(n+1); a finished purpose reports 1. The overall progress is the mean
// over every purpose seen so far.
//
// Thread-safe: Update is called from concurrent fetches.
type Tracker struct {
	mu      sync.Mutex
	loaders map[string]float64
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{loaders: make(map[string]float64)}
}

// Update records the latest page of purpose. Its signature matches
// fetcher.Options.OnProgress.
func (t *Tracker) Update(purpose string, page int, finished bool) {
	value := 1.0
	if !finished {
		if page < 0 {
			page = 0
		}
		value = float64(page) / float64(page+1)
	}

	t.mu.Lock()
	t.loaders[purpose] = value
	overall := t.progressLocked()
	count := len(t.loaders)
	t.mu.Unlock()

	slog.Debug("progress",
		"purpose", purpose,
		"page", page,
		"value", value,
		"overall", overall,
		"purposes", count,
	)
}

// Progress returns the mean progress in [0,1]; 0 before any update.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

// Finished reports whether every known purpose has finished. It is false
// before any update.
func (t *Tracker) Finished() bool {
	return t.Progress() >= 1
}

// Of returns the progress of one purpose.
func (t *Tracker) Of(purpose string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.loaders[purpose]
	return v, ok
}

// Reset forgets every purpose.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaders = make(map[string]float64)
}

func (t *Tracker) progressLocked() float64 {
	if len(t.loaders) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range t.loaders {
		sum += v
	}
	return sum / float64(len(t.loaders))
}
