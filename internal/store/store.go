package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"billiard-pos-backend/internal/model"
)

// Store errors. The rental service maps these onto user-facing transition
// errors; ErrStateChanged means a status-guarded write matched nothing
// because another writer got there first.
var (
	ErrTableNotFound = errors.New("table not found")
	ErrStateChanged  = errors.New("table state changed concurrently")
)

// Occupancy carries the fields written when a table transitions to occupied.
type Occupancy struct {
	Customer    string
	StartTime   time.Time
	EndTime     time.Time
	DurationMin int
}

// HistoryFilter narrows a rental history listing.
type HistoryFilter struct {
	TableID string
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Store is the table state store adapter. Writes to a single table are
// applied in submission order, but nothing is guaranteed across writers
// beyond the status guards on the occupancy methods; callers must compute
// new values from a freshly observed state, never merge stale local copies.
type Store interface {
	DB() *gorm.DB
	Watcher() *Watcher

	ListTables(ctx context.Context) ([]model.Table, error)
	GetTable(ctx context.Context, id string) (model.Table, error)
	CreateTable(ctx context.Context, t *model.Table) error
	UpdateTableFields(ctx context.Context, id string, fields map[string]any) (model.Table, error)
	DeleteTable(ctx context.Context, id string) error

	// MarkOccupied applies the available -> occupied transition. Guarded on
	// status = available; ErrStateChanged if the table is already occupied.
	MarkOccupied(ctx context.Context, id string, occ Occupancy) (model.Table, error)
	// ExtendOccupancy pushes an occupied table's end time forward. Guarded on
	// status = occupied and on the previously observed end time.
	ExtendOccupancy(ctx context.Context, id string, prevEnd time.Time, newEnd time.Time, newDurationMin int) (model.Table, error)
	// ClearOccupancy applies the occupied -> available transition, clearing
	// all timing fields and archiving the finished rental. Guarded on
	// status = occupied; ErrStateChanged if already available.
	ClearOccupancy(ctx context.Context, id string, endedAt time.Time, reason string) (model.Table, error)

	ListHistory(ctx context.Context, f HistoryFilter) ([]model.RentalHistory, error)
	PurgeHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db      *gorm.DB
	watcher *Watcher
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, watcher: NewWatcher()}
}

func (s *gormStore) DB() *gorm.DB      { return s.db }
func (s *gormStore) Watcher() *Watcher { return s.watcher }

// ListTables returns all tables ordered by name, matching the ordering the
// change subscription uses for position-derived lamp channels.
func (s *gormStore) ListTables(ctx context.Context) ([]model.Table, error) {
	var tables []model.Table
	if err := s.db.WithContext(ctx).Order("name").Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func (s *gormStore) GetTable(ctx context.Context, id string) (model.Table, error) {
	var t model.Table
	err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Table{}, ErrTableNotFound
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("get table %s: %w", id, err)
	}
	return t, nil
}

func (s *gormStore) CreateTable(ctx context.Context, t *model.Table) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create table %q: %w", t.Name, err)
	}
	s.watcher.publish(ChangeEvent{New: snapshot(*t)})
	return nil
}

// UpdateTableFields performs a field-level merge write; fields not named in
// the map are left untouched.
func (s *gormStore) UpdateTableFields(ctx context.Context, id string, fields map[string]any) (model.Table, error) {
	res := s.db.WithContext(ctx).Model(&model.Table{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return model.Table{}, fmt.Errorf("update table %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Table{}, ErrTableNotFound
	}
	return s.GetTable(ctx, id)
}

func (s *gormStore) DeleteTable(ctx context.Context, id string) error {
	old, err := s.GetTable(ctx, id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&model.Table{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete table %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTableNotFound
	}
	s.watcher.publish(ChangeEvent{Old: snapshot(old)})
	return nil
}

func (s *gormStore) MarkOccupied(ctx context.Context, id string, occ Occupancy) (model.Table, error) {
	old, err := s.GetTable(ctx, id)
	if err != nil {
		return model.Table{}, err
	}

	res := s.db.WithContext(ctx).Model(&model.Table{}).
		Where("id = ? AND status = ?", id, model.StatusAvailable).
		Updates(map[string]any{
			"status":           model.StatusOccupied,
			"start_time":       occ.StartTime,
			"end_time":         occ.EndTime,
			"duration_min":     occ.DurationMin,
			"current_customer": occ.Customer,
		})
	if res.Error != nil {
		return model.Table{}, fmt.Errorf("mark table %s occupied: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Table{}, ErrStateChanged
	}

	updated, err := s.GetTable(ctx, id)
	if err != nil {
		return model.Table{}, err
	}
	s.watcher.publish(ChangeEvent{Old: snapshot(old), New: snapshot(updated)})
	return updated, nil
}

func (s *gormStore) ExtendOccupancy(ctx context.Context, id string, prevEnd time.Time, newEnd time.Time, newDurationMin int) (model.Table, error) {
	old, err := s.GetTable(ctx, id)
	if err != nil {
		return model.Table{}, err
	}

	res := s.db.WithContext(ctx).Model(&model.Table{}).
		Where("id = ? AND status = ? AND end_time = ?", id, model.StatusOccupied, prevEnd).
		Updates(map[string]any{
			"end_time":     newEnd,
			"duration_min": newDurationMin,
		})
	if res.Error != nil {
		return model.Table{}, fmt.Errorf("extend table %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Table{}, ErrStateChanged
	}

	updated, err := s.GetTable(ctx, id)
	if err != nil {
		return model.Table{}, err
	}
	s.watcher.publish(ChangeEvent{Old: snapshot(old), New: snapshot(updated)})
	return updated, nil
}

func (s *gormStore) ClearOccupancy(ctx context.Context, id string, endedAt time.Time, reason string) (model.Table, error) {
	var old model.Table

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&old, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTableNotFound
			}
			return fmt.Errorf("clear occupancy on %s: %w", id, err)
		}
		if !old.Occupied() {
			return ErrStateChanged
		}

		if err := archiveRental(tx, old, endedAt, reason); err != nil {
			return err
		}

		res := tx.Model(&model.Table{}).
			Where("id = ? AND status = ?", id, model.StatusOccupied).
			Updates(map[string]any{
				"status":           model.StatusAvailable,
				"start_time":       nil,
				"end_time":         nil,
				"duration_min":     0,
				"current_customer": "",
			})
		if res.Error != nil {
			return fmt.Errorf("clear occupancy on %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStateChanged
		}
		return nil
	})
	if err != nil {
		return model.Table{}, err
	}

	updated, err := s.GetTable(ctx, id)
	if err != nil {
		return model.Table{}, err
	}
	s.watcher.publish(ChangeEvent{Old: snapshot(old), New: snapshot(updated)})
	return updated, nil
}

// archiveRental appends the cold-table record of a finished occupancy.
// Moved-out rentals carry no amount; billing continues at the destination
// and the final row is written when that occupancy ends.
func archiveRental(tx *gorm.DB, t model.Table, endedAt time.Time, reason string) error {
	if t.StartTime == nil || t.EndTime == nil {
		return nil
	}

	var amount float64
	if reason != model.EndReasonMoved {
		amount = float64(t.DurationMin) / 60.0 * t.CostPerHour
	}

	record := model.RentalHistory{
		TableID:     t.ID,
		TableName:   t.Name,
		Customer:    t.CurrentCustomer,
		StartedAt:   *t.StartTime,
		EndedAt:     endedAt,
		PeriodEnd:   *t.EndTime,
		DurationMin: t.DurationMin,
		CostPerHour: t.CostPerHour,
		Amount:      amount,
		EndReason:   reason,
	}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("archive rental for table %s: %w", t.ID, err)
	}
	return nil
}

func (s *gormStore) ListHistory(ctx context.Context, f HistoryFilter) ([]model.RentalHistory, error) {
	q := s.db.WithContext(ctx).Model(&model.RentalHistory{}).Order("started_at DESC")
	if f.TableID != "" {
		q = q.Where("table_id = ?", f.TableID)
	}
	if f.From != nil {
		q = q.Where("started_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("started_at < ?", *f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var records []model.RentalHistory
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

func (s *gormStore) PurgeHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("ended_at < ?", cutoff).Delete(&model.RentalHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func snapshot(t model.Table) *model.Table {
	c := t
	return &c
}
