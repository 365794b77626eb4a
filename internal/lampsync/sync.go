// Package lampsync keeps the physical table lamps consistent with the
// logical occupancy state. It consumes store change events, diffs each
// table's newly observed status against its own last-known-status map, and
// issues exactly one lamp command per status flip. The map is owned here and
// cleared whenever the subscription (re)starts, so transitions are never
// derived from a caller's possibly stale view of the world.
package lampsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"billiard-pos-backend/internal/lamp"
	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/model"
	"billiard-pos-backend/internal/store"
)

// AvailabilityNotifier receives the id of a table that just became
// available. Satisfied by the notification worker pool.
type AvailabilityNotifier interface {
	Dispatch(tableID string)
}

// Syncer is the change detector between table state and lamp state.
type Syncer struct {
	lamps  *lamp.Dispatcher
	notify AvailabilityNotifier // may be nil

	mu    sync.Mutex
	last  map[string]model.TableStatus
	names map[string]string
}

// NewSyncer creates a syncer dispatching through the given lamp dispatcher.
func NewSyncer(lamps *lamp.Dispatcher, notify AvailabilityNotifier) *Syncer {
	return &Syncer{
		lamps:  lamps,
		notify: notify,
		last:   make(map[string]model.TableStatus),
		names:  make(map[string]string),
	}
}

// Run subscribes to the store's change feed and applies events until the
// context is cancelled. The last-known-status map is reset and re-seeded
// from a full listing on every (re)subscription.
func (s *Syncer) Run(ctx context.Context, st store.Store) {
	ch, cancel := st.Watcher().Subscribe()
	defer cancel()

	s.Reset()
	if tables, err := st.ListTables(ctx); err != nil {
		logger.Error("lampsync: initial table listing failed", "error", err)
	} else {
		s.Seed(tables)
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.Apply(ev)
		case <-ctx.Done():
			return
		}
	}
}

// Reset clears the last-known-status map.
func (s *Syncer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = make(map[string]model.TableStatus)
	s.names = make(map[string]string)
}

// Seed records the current statuses without dispatching anything. The
// snapshot is not a transition; only subsequent diffs drive the lamps.
func (s *Syncer) Seed(tables []model.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tables {
		s.last[t.ID] = t.Status
		s.names[t.ID] = t.Name
	}
}

// Apply diffs one change event against the last-known status and dispatches
// the lamp command for any status flip.
func (s *Syncer) Apply(ev store.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ev.TableID()
	if id == "" {
		return
	}

	if ev.New == nil {
		// Table deleted; don't leave its lamp burning.
		if s.last[id] == model.StatusOccupied && ev.Old != nil {
			s.dispatchLocked(ev.Old, lamp.ActionOff, 0)
		}
		delete(s.last, id)
		delete(s.names, id)
		return
	}

	s.names[id] = ev.New.Name

	prev, seen := s.last[id]
	if !seen {
		if ev.Old != nil {
			prev = ev.Old.Status
		} else {
			prev = model.StatusAvailable
		}
	}
	s.last[id] = ev.New.Status

	if ev.New.Status == prev {
		return
	}

	switch ev.New.Status {
	case model.StatusOccupied:
		autoOff := int(ev.New.RemainingAt(time.Now()).Seconds())
		s.dispatchLocked(ev.New, lamp.ActionOn, autoOff)
	case model.StatusAvailable:
		s.dispatchLocked(ev.New, lamp.ActionOff, 0)
		if s.notify != nil {
			s.notify.Dispatch(id)
		}
	}
}

func (s *Syncer) dispatchLocked(t *model.Table, action lamp.Action, autoOffSeconds int) {
	s.lamps.Dispatch(lamp.CommandFor(t, action, s.positionLocked(t.ID), autoOffSeconds))
}

// positionLocked derives the table's zero-based position within the
// name-ordered listing, for the channel fallback of digitless names.
func (s *Syncer) positionLocked(id string) int {
	name, ok := s.names[id]
	if !ok {
		return 0
	}
	pos := 0
	for other, otherName := range s.names {
		if other == id {
			continue
		}
		if otherName < name || (otherName == name && other < id) {
			pos++
		}
	}
	return pos
}

// Positions returns the zero-based, name-ordered position of every known
// table, matching the derivation the read API performs on a full listing.
func (s *Syncer) Positions() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.names))
	for id := range s.names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if s.names[ids[i]] == s.names[ids[j]] {
			return ids[i] < ids[j]
		}
		return s.names[ids[i]] < s.names[ids[j]]
	})

	positions := make(map[string]int, len(ids))
	for i, id := range ids {
		positions[id] = i
	}
	return positions
}
