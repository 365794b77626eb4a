package rental

import (
	"context"
	"errors"

	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/model"
	"billiard-pos-backend/internal/store"
)

// ExpireOverdue scans every table and forces the ones whose rental window
// has elapsed back to available, through the same stop path a manual stop
// uses. Each table is handled independently: one failure is logged and the
// scan moves on. The whole pass is idempotent; losing the race against a
// manual stop is a no-op, never an error.
func (s *Service) ExpireOverdue(ctx context.Context) int {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		logger.Error("expiry scan: listing tables failed", "error", err)
		return 0
	}

	now := s.now()
	expired := 0
	for _, t := range tables {
		if !t.ExpiredAt(now) {
			continue
		}

		_, err := s.stop(ctx, t.ID, model.EndReasonExpired)
		switch {
		case err == nil:
			expired++
			logger.Info("rental expired", "table", t.Name, "customer", t.CurrentCustomer)
		case errors.Is(err, ErrTableNotOccupied),
			errors.Is(err, store.ErrStateChanged),
			errors.Is(err, store.ErrTableNotFound):
			// Already stopped, moved, or deleted since we listed. Benign.
			logger.Debug("expiry scan: table already settled", "table", t.Name)
		default:
			logger.Error("expiry scan: failed to stop table", "table", t.Name, "error", err)
		}
	}
	return expired
}
