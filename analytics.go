package main

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	analyticsBufSize    = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// Analytics journals system events with batched background writes. A nil
// *Analytics, or one without a database, accepts and discards events.
type Analytics struct {
	db     *DB
	events chan SystemEvent
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan SystemEvent, analyticsBufSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// TrackEvent enqueues an event for async persistence (non-blocking)
func (a *Analytics) TrackEvent(ev SystemEvent) {
	if a == nil || a.db == nil {
		return
	}
	select {
	case <-a.stop:
		return
	default:
	}
	select {
	case a.events <- ev:
	default:
		// Channel full; drop rather than block the tick loop
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
	}
}

// Dropped returns how many events were discarded because the queue was full
func (a *Analytics) Dropped() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Stop flushes queued events and shuts down the writer. Safe to call twice.
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]SystemEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-a.events:
			batch = append(batch, ev)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain whatever is already queued
			for {
				select {
				case ev := <-a.events:
					batch = append(batch, ev)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				a.flush(batch)
			}
			return
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []SystemEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	if err := a.db.RecordEvents(events); err != nil {
		logger.Error("analytics flush failed", zap.Int("events", len(events)), zap.Error(err))
	}
}
