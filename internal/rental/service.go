package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billiard-pos-backend/internal/lamp"
	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/model"
	"billiard-pos-backend/internal/store"
)

// Invalid-transition errors. They are rejected before any store write is
// attempted; callers must re-read the table before retrying, the service
// never coerces state.
var (
	ErrInvalidDuration     = errors.New("rental duration must be positive")
	ErrTableOccupied       = errors.New("table already in use")
	ErrTableNotOccupied    = errors.New("table is not in use")
	ErrSameTable           = errors.New("cannot move a rental onto the same table")
	ErrDestinationOccupied = errors.New("destination table already in use")

	// ErrPartialMove means the destination was occupied but the origin could
	// not be cleared (or state diverged in between). The system is left in a
	// dual-occupancy state that needs manual reconciliation.
	ErrPartialMove = errors.New("move partially applied, manual reconciliation required")
)

// Service is the occupancy state machine for table rentals. All writes go
// through status-guarded store operations computed from a freshly observed
// state; lamp commands follow from the resulting change events, not from
// this service's view of the transition.
type Service struct {
	store         store.Store
	lamps         *lamp.Dispatcher
	resyncOnTopup bool
	now           func() time.Time
}

// NewService creates the rental service. The dispatcher may be nil when no
// lamp device is configured.
func NewService(st store.Store, lamps *lamp.Dispatcher, resyncOnTopup bool) *Service {
	return &Service{
		store:         st,
		lamps:         lamps,
		resyncOnTopup: resyncOnTopup,
		now:           time.Now,
	}
}

// Start begins a rental: available -> occupied. The rental window is
// [now, now + minutes]; the lamp comes on via the change feed with a
// matching auto-off duration.
func (s *Service) Start(ctx context.Context, tableID, customer string, minutes int) (model.Table, error) {
	if minutes <= 0 {
		return model.Table{}, ErrInvalidDuration
	}

	t, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return model.Table{}, err
	}
	if t.Occupied() {
		return model.Table{}, ErrTableOccupied
	}

	now := s.now()
	occ := store.Occupancy{
		Customer:    customer,
		StartTime:   now,
		EndTime:     now.Add(time.Duration(minutes) * time.Minute),
		DurationMin: minutes,
	}

	updated, err := s.store.MarkOccupied(ctx, tableID, occ)
	if errors.Is(err, store.ErrStateChanged) {
		// Another writer occupied the table between our read and write.
		return model.Table{}, ErrTableOccupied
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("start rental: %w", err)
	}

	logger.Info("rental started",
		"table", updated.Name, "customer", customer, "minutes", minutes)
	return updated, nil
}

// TopUp extends an active rental while it remains occupied. The extension
// is guarded on the end time observed here, so racing top-ups cannot lose
// minutes; the loser gets ErrStateChanged and must re-read.
func (s *Service) TopUp(ctx context.Context, tableID string, extraMinutes int) (model.Table, error) {
	if extraMinutes <= 0 {
		return model.Table{}, ErrInvalidDuration
	}

	t, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return model.Table{}, err
	}
	if !t.Occupied() || t.EndTime == nil {
		return model.Table{}, ErrTableNotOccupied
	}

	newEnd := t.EndTime.Add(time.Duration(extraMinutes) * time.Minute)
	updated, err := s.store.ExtendOccupancy(ctx, tableID, *t.EndTime, newEnd, t.DurationMin+extraMinutes)
	if err != nil {
		return model.Table{}, fmt.Errorf("top up rental: %w", err)
	}

	logger.Info("rental extended",
		"table", updated.Name, "extra_minutes", extraMinutes, "total_minutes", updated.DurationMin)

	// A top-up does not change status, so no change-feed lamp command fires.
	// Re-issue "on" with the new remaining time so a device-side auto-off
	// timer does not kill the lamp at the old end time.
	if s.resyncOnTopup && s.lamps != nil {
		remaining := int(updated.RemainingAt(s.now()).Seconds())
		s.lamps.Dispatch(lamp.CommandFor(&updated, lamp.ActionOn, s.positionOf(ctx, tableID), remaining))
	}
	return updated, nil
}

// Stop ends a rental: occupied -> available. Remaining time is forfeited.
func (s *Service) Stop(ctx context.Context, tableID string) (model.Table, error) {
	return s.stop(ctx, tableID, model.EndReasonManual)
}

func (s *Service) stop(ctx context.Context, tableID, reason string) (model.Table, error) {
	t, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return model.Table{}, err
	}
	if !t.Occupied() {
		return model.Table{}, ErrTableNotOccupied
	}

	updated, err := s.store.ClearOccupancy(ctx, tableID, s.now(), reason)
	if errors.Is(err, store.ErrStateChanged) {
		return model.Table{}, ErrTableNotOccupied
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("stop rental: %w", err)
	}

	logger.Info("rental ended", "table", updated.Name, "reason", reason)
	return updated, nil
}

// Move relocates an active rental from one table to another. The store has
// no multi-row atomicity for this pair, so the destination is occupied
// first and the origin cleared second; if the second write fails the
// incident is logged at error level and reported as ErrPartialMove rather
// than retried.
func (s *Service) Move(ctx context.Context, fromID, toID string) (model.Table, error) {
	if fromID == toID {
		return model.Table{}, ErrSameTable
	}

	origin, err := s.store.GetTable(ctx, fromID)
	if err != nil {
		return model.Table{}, err
	}
	if !origin.Occupied() || origin.StartTime == nil || origin.EndTime == nil {
		return model.Table{}, ErrTableNotOccupied
	}

	dest, err := s.store.GetTable(ctx, toID)
	if err != nil {
		return model.Table{}, err
	}
	if dest.Occupied() {
		return model.Table{}, ErrDestinationOccupied
	}

	// Step 1: copy the occupancy onto the destination. The remaining time
	// survives in this copy, so the later origin reset is not a forfeiture.
	occ := store.Occupancy{
		Customer:    origin.CurrentCustomer,
		StartTime:   *origin.StartTime,
		EndTime:     *origin.EndTime,
		DurationMin: origin.DurationMin,
	}
	moved, err := s.store.MarkOccupied(ctx, toID, occ)
	if errors.Is(err, store.ErrStateChanged) {
		return model.Table{}, ErrDestinationOccupied
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("move rental: %w", err)
	}

	// Step 2: reset the origin. From here on a failure leaves both tables
	// occupied; that is an incident, not a retry case.
	if _, err := s.store.ClearOccupancy(ctx, fromID, s.now(), model.EndReasonMoved); err != nil {
		logger.Error("move left tables inconsistent: destination occupied but origin not cleared",
			"from", origin.Name, "to", moved.Name, "customer", origin.CurrentCustomer, "error", err)
		return moved, fmt.Errorf("%w: %v", ErrPartialMove, err)
	}

	logger.Info("rental moved",
		"from", origin.Name, "to", moved.Name, "customer", origin.CurrentCustomer)
	return moved, nil
}

// positionOf derives a table's zero-based position in the name-ordered
// listing, for the channel fallback of digitless, channel-less tables.
func (s *Service) positionOf(ctx context.Context, tableID string) int {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return 0
	}
	for i, t := range tables {
		if t.ID == tableID {
			return i
		}
	}
	return 0
}
