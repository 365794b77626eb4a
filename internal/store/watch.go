package store

import (
	"sync"

	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/model"
)

// ChangeEvent describes one table's observed state change. Old is nil for a
// newly created table, New is nil for a deleted one. Both are value
// snapshots taken at publish time; subscribers may keep them.
type ChangeEvent struct {
	Old *model.Table
	New *model.Table
}

// TableID returns the id of the table the event concerns.
func (ev ChangeEvent) TableID() string {
	if ev.New != nil {
		return ev.New.ID
	}
	if ev.Old != nil {
		return ev.Old.ID
	}
	return ""
}

const subscriberBuffer = 256

// Watcher fans change events out to subscribers. Delivery is asynchronous
// and never blocks a store write; a subscriber that falls more than the
// buffer behind loses events and should re-list to reconcile.
type Watcher struct {
	mu   sync.RWMutex
	subs map[int]chan ChangeEvent
	next int
}

// NewWatcher creates an empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{subs: make(map[int]chan ChangeEvent)}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release it; the channel is closed on cancellation.
func (w *Watcher) Subscribe() (<-chan ChangeEvent, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.next
	w.next++
	ch := make(chan ChangeEvent, subscriberBuffer)
	w.subs[id] = ch

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (w *Watcher) publish(ev ChangeEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("change subscriber buffer full, dropping event", "table_id", ev.TableID())
		}
	}
}
