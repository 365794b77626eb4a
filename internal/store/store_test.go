package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"billiard-pos-backend/internal/db"
	"billiard-pos-backend/internal/model"
)

// newTestStore opens a uniquely named in-memory SQLite database so test
// cases cannot see each other's rows.
func newTestStore(t *testing.T) Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return NewGormStore(conn)
}

func createTable(t *testing.T, s Store, name string) model.Table {
	t.Helper()
	table := model.Table{
		ID:          uuid.NewString(),
		Name:        name,
		Status:      model.StatusAvailable,
		CostPerHour: 60000,
	}
	require.NoError(t, s.CreateTable(context.Background(), &table))
	return table
}

func occupy(t *testing.T, s Store, id string, minutes int) model.Table {
	t.Helper()
	now := time.Now().Truncate(time.Second)
	updated, err := s.MarkOccupied(context.Background(), id, Occupancy{
		Customer:    "Budi",
		StartTime:   now,
		EndTime:     now.Add(time.Duration(minutes) * time.Minute),
		DurationMin: minutes,
	})
	require.NoError(t, err)
	return updated
}

func TestListTables_OrderedByName(t *testing.T) {
	s := newTestStore(t)
	createTable(t, s, "Meja 2")
	createTable(t, s, "Meja 1")
	createTable(t, s, "Bar")

	tables, err := s.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, "Bar", tables[0].Name)
	assert.Equal(t, "Meja 1", tables[1].Name)
	assert.Equal(t, "Meja 2", tables[2].Name)
}

func TestMarkOccupied_GuardedOnStatus(t *testing.T) {
	s := newTestStore(t)
	table := createTable(t, s, "Meja 1")

	updated := occupy(t, s, table.ID, 60)
	assert.Equal(t, model.StatusOccupied, updated.Status)
	assert.Equal(t, "Budi", updated.CurrentCustomer)
	require.NotNil(t, updated.StartTime)
	require.NotNil(t, updated.EndTime)
	assert.Equal(t, 60*time.Minute, updated.EndTime.Sub(*updated.StartTime))

	// A second writer loses the guard.
	_, err := s.MarkOccupied(context.Background(), table.ID, Occupancy{
		StartTime: time.Now(), EndTime: time.Now().Add(time.Hour), DurationMin: 60,
	})
	assert.ErrorIs(t, err, ErrStateChanged)

	_, err = s.MarkOccupied(context.Background(), "no-such-id", Occupancy{})
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestExtendOccupancy_GuardedOnObservedEnd(t *testing.T) {
	s := newTestStore(t)
	table := createTable(t, s, "Meja 1")
	occupied := occupy(t, s, table.ID, 30)

	newEnd := occupied.EndTime.Add(15 * time.Minute)
	updated, err := s.ExtendOccupancy(context.Background(), table.ID, *occupied.EndTime, newEnd, 45)
	require.NoError(t, err)
	assert.Equal(t, 45, updated.DurationMin)
	assert.Equal(t, 45*time.Minute, updated.EndTime.Sub(*updated.StartTime))

	// Extending against the stale end time fails; the caller must re-read.
	_, err = s.ExtendOccupancy(context.Background(), table.ID, *occupied.EndTime, newEnd.Add(time.Hour), 105)
	assert.ErrorIs(t, err, ErrStateChanged)
}

func TestClearOccupancy_ClearsFieldsAndArchives(t *testing.T) {
	s := newTestStore(t)
	table := createTable(t, s, "Meja 1")
	occupied := occupy(t, s, table.ID, 60)

	endedAt := time.Now().Truncate(time.Second)
	updated, err := s.ClearOccupancy(context.Background(), table.ID, endedAt, model.EndReasonManual)
	require.NoError(t, err)

	assert.Equal(t, model.StatusAvailable, updated.Status)
	assert.Nil(t, updated.StartTime)
	assert.Nil(t, updated.EndTime)
	assert.Zero(t, updated.DurationMin)
	assert.Empty(t, updated.CurrentCustomer)

	records, err := s.ListHistory(context.Background(), HistoryFilter{TableID: table.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Budi", records[0].Customer)
	assert.Equal(t, 60, records[0].DurationMin)
	assert.Equal(t, model.EndReasonManual, records[0].EndReason)
	// 60 minutes at 60000/hour.
	assert.InDelta(t, 60000, records[0].Amount, 0.01)
	assert.True(t, records[0].PeriodEnd.Equal(*occupied.EndTime))

	// Clearing an available table is a guard miss, and archives nothing more.
	_, err = s.ClearOccupancy(context.Background(), table.ID, time.Now(), model.EndReasonManual)
	assert.ErrorIs(t, err, ErrStateChanged)

	records, err = s.ListHistory(context.Background(), HistoryFilter{TableID: table.ID})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestClearOccupancy_MovedCarriesNoAmount(t *testing.T) {
	s := newTestStore(t)
	table := createTable(t, s, "Meja 1")
	occupy(t, s, table.ID, 60)

	_, err := s.ClearOccupancy(context.Background(), table.ID, time.Now(), model.EndReasonMoved)
	require.NoError(t, err)

	records, err := s.ListHistory(context.Background(), HistoryFilter{TableID: table.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.EndReasonMoved, records[0].EndReason)
	assert.Zero(t, records[0].Amount)
}

func TestUpdateTableFields_MergesOnlyNamedFields(t *testing.T) {
	s := newTestStore(t)
	table := createTable(t, s, "Meja 1")
	occupy(t, s, table.ID, 60)

	updated, err := s.UpdateTableFields(context.Background(), table.ID, map[string]any{
		"cost_per_hour": 75000.0,
	})
	require.NoError(t, err)

	// The rate changed; the in-progress rental did not.
	assert.Equal(t, 75000.0, updated.CostPerHour)
	assert.Equal(t, model.StatusOccupied, updated.Status)
	assert.NotNil(t, updated.EndTime)
	assert.Equal(t, "Budi", updated.CurrentCustomer)

	_, err = s.UpdateTableFields(context.Background(), "no-such-id", map[string]any{"channel": 9})
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestWatcher_PublishesChangeEvents(t *testing.T) {
	s := newTestStore(t)
	ch, cancel := s.Watcher().Subscribe()
	defer cancel()

	table := createTable(t, s, "Meja 1")

	ev := <-ch
	assert.Nil(t, ev.Old)
	require.NotNil(t, ev.New)
	assert.Equal(t, table.ID, ev.New.ID)
	assert.Equal(t, model.StatusAvailable, ev.New.Status)

	occupy(t, s, table.ID, 30)
	ev = <-ch
	require.NotNil(t, ev.Old)
	require.NotNil(t, ev.New)
	assert.Equal(t, model.StatusAvailable, ev.Old.Status)
	assert.Equal(t, model.StatusOccupied, ev.New.Status)

	_, err := s.ClearOccupancy(context.Background(), table.ID, time.Now(), model.EndReasonManual)
	require.NoError(t, err)
	ev = <-ch
	assert.Equal(t, model.StatusOccupied, ev.Old.Status)
	assert.Equal(t, model.StatusAvailable, ev.New.Status)

	require.NoError(t, s.DeleteTable(context.Background(), table.ID))
	ev = <-ch
	assert.Nil(t, ev.New)
	require.NotNil(t, ev.Old)
	assert.Equal(t, table.ID, ev.Old.ID)
}

func TestPurgeHistoryBefore(t *testing.T) {
	s := newTestStore(t)
	table := createTable(t, s, "Meja 1")

	occupy(t, s, table.ID, 30)
	_, err := s.ClearOccupancy(context.Background(), table.ID, time.Now().Add(-48*time.Hour), model.EndReasonManual)
	require.NoError(t, err)

	occupy(t, s, table.ID, 30)
	_, err = s.ClearOccupancy(context.Background(), table.ID, time.Now(), model.EndReasonManual)
	require.NoError(t, err)

	n, err := s.PurgeHistoryBefore(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := s.ListHistory(context.Background(), HistoryFilter{TableID: table.ID})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
