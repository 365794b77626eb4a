package rental

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"billiard-pos-backend/internal/db"
	"billiard-pos-backend/internal/lamp"
	"billiard-pos-backend/internal/model"
	"billiard-pos-backend/internal/store"
)

type recordingSender struct {
	mu   sync.Mutex
	cmds []lamp.Command
}

func (r *recordingSender) Send(_ context.Context, cmd lamp.Command) lamp.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return lamp.Result{OK: true, StatusCode: 200}
}

func (r *recordingSender) commands() []lamp.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]lamp.Command, len(r.cmds))
	copy(out, r.cmds)
	return out
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return store.NewGormStore(conn)
}

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st := newTestStore(t)
	svc := NewService(st, nil, false)
	return svc, st
}

func seedTable(t *testing.T, st store.Store, name string) model.Table {
	t.Helper()
	table := model.Table{
		ID:          uuid.NewString(),
		Name:        name,
		Status:      model.StatusAvailable,
		CostPerHour: 50000,
	}
	require.NoError(t, st.CreateTable(context.Background(), &table))
	return table
}

func TestStart_RentalWindowMatchesDuration(t *testing.T) {
	svc, st := newTestService(t)
	table := seedTable(t, st, "Meja 1")

	updated, err := svc.Start(context.Background(), table.ID, "Budi", 60)
	require.NoError(t, err)

	assert.Equal(t, model.StatusOccupied, updated.Status)
	assert.Equal(t, "Budi", updated.CurrentCustomer)
	assert.Equal(t, 60, updated.DurationMin)
	require.NotNil(t, updated.StartTime)
	require.NotNil(t, updated.EndTime)
	assert.Equal(t, 60*time.Minute, updated.EndTime.Sub(*updated.StartTime))
}

func TestStart_Rejections(t *testing.T) {
	svc, st := newTestService(t)
	table := seedTable(t, st, "Meja 1")

	_, err := svc.Start(context.Background(), table.ID, "Budi", 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = svc.Start(context.Background(), table.ID, "Budi", -30)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = svc.Start(context.Background(), "no-such-id", "Budi", 60)
	assert.ErrorIs(t, err, store.ErrTableNotFound)

	_, err = svc.Start(context.Background(), table.ID, "Budi", 60)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), table.ID, "Sari", 30)
	assert.ErrorIs(t, err, ErrTableOccupied)
}

func TestTopUp_ExtensionsAccumulate(t *testing.T) {
	svc, st := newTestService(t)
	table := seedTable(t, st, "Meja 1")

	started, err := svc.Start(context.Background(), table.ID, "Budi", 30)
	require.NoError(t, err)

	updated, err := svc.TopUp(context.Background(), table.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 45, updated.DurationMin)
	assert.Equal(t, 45*time.Minute, updated.EndTime.Sub(*updated.StartTime))

	updated, err = svc.TopUp(context.Background(), table.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 60, updated.DurationMin)
	assert.Equal(t, 60*time.Minute, updated.EndTime.Sub(*started.StartTime))
}

func TestTopUp_Rejections(t *testing.T) {
	svc, st := newTestService(t)
	table := seedTable(t, st, "Meja 1")

	_, err := svc.TopUp(context.Background(), table.ID, 15)
	assert.ErrorIs(t, err, ErrTableNotOccupied)

	_, err = svc.Start(context.Background(), table.ID, "Budi", 30)
	require.NoError(t, err)

	_, err = svc.TopUp(context.Background(), table.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = svc.TopUp(context.Background(), "no-such-id", 15)
	assert.ErrorIs(t, err, store.ErrTableNotFound)
}

func TestTopUp_ResyncReissuesLampOn(t *testing.T) {
	st := newTestStore(t)
	sender := &recordingSender{}
	lamps := lamp.NewDispatcher(1, sender)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lamps.Start(ctx)

	svc := NewService(st, lamps, true)
	table := seedTable(t, st, "Meja 7")

	_, err := svc.Start(context.Background(), table.ID, "Budi", 30)
	require.NoError(t, err)

	_, err = svc.TopUp(context.Background(), table.ID, 15)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sender.commands()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cmd := sender.commands()[0]
	assert.Equal(t, lamp.ActionOn, cmd.Action)
	assert.Equal(t, 7, cmd.Channel)
	// The fresh auto-off covers the full extended window.
	assert.InDelta(t, 45*60, cmd.AutoOffSeconds, 5)
}

func TestStop_ClearsStateAndArchives(t *testing.T) {
	svc, st := newTestService(t)
	table := seedTable(t, st, "Meja 1")

	_, err := svc.Start(context.Background(), table.ID, "Budi", 60)
	require.NoError(t, err)

	updated, err := svc.Stop(context.Background(), table.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, updated.Status)
	assert.Nil(t, updated.StartTime)
	assert.Nil(t, updated.EndTime)
	assert.Zero(t, updated.DurationMin)
	assert.Empty(t, updated.CurrentCustomer)

	records, err := st.ListHistory(context.Background(), store.HistoryFilter{TableID: table.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.EndReasonManual, records[0].EndReason)
	assert.Equal(t, "Budi", records[0].Customer)

	_, err = svc.Stop(context.Background(), table.ID)
	assert.ErrorIs(t, err, ErrTableNotOccupied)
}

func TestMove_RemainingTimeSurvives(t *testing.T) {
	svc, st := newTestService(t)
	origin := seedTable(t, st, "Meja 1")
	dest := seedTable(t, st, "Meja 2")

	started, err := svc.Start(context.Background(), origin.ID, "Budi", 90)
	require.NoError(t, err)

	moved, err := svc.Move(context.Background(), origin.ID, dest.ID)
	require.NoError(t, err)
	assert.Equal(t, dest.ID, moved.ID)
	assert.Equal(t, model.StatusOccupied, moved.Status)
	assert.Equal(t, "Budi", moved.CurrentCustomer)
	assert.Equal(t, 90, moved.DurationMin)
	require.NotNil(t, moved.EndTime)
	assert.True(t, moved.EndTime.Equal(*started.EndTime))

	cleared, err := st.GetTable(context.Background(), origin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, cleared.Status)
	assert.Nil(t, cleared.EndTime)

	// The origin's archive row records the relocation without billing it.
	records, err := st.ListHistory(context.Background(), store.HistoryFilter{TableID: origin.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.EndReasonMoved, records[0].EndReason)
	assert.Zero(t, records[0].Amount)
}

func TestMove_Rejections(t *testing.T) {
	svc, st := newTestService(t)
	origin := seedTable(t, st, "Meja 1")
	dest := seedTable(t, st, "Meja 2")

	_, err := svc.Move(context.Background(), origin.ID, origin.ID)
	assert.ErrorIs(t, err, ErrSameTable)

	_, err = svc.Move(context.Background(), origin.ID, dest.ID)
	assert.ErrorIs(t, err, ErrTableNotOccupied)

	_, err = svc.Start(context.Background(), origin.ID, "Budi", 60)
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), dest.ID, "Sari", 60)
	require.NoError(t, err)

	_, err = svc.Move(context.Background(), origin.ID, dest.ID)
	assert.ErrorIs(t, err, ErrDestinationOccupied)

	// Both rentals are untouched after the rejection.
	o, err := st.GetTable(context.Background(), origin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budi", o.CurrentCustomer)
	d, err := st.GetTable(context.Background(), dest.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sari", d.CurrentCustomer)
}

func TestExpireOverdue_StopsElapsedRentalsOnce(t *testing.T) {
	svc, st := newTestService(t)
	overdue := seedTable(t, st, "Meja 1")
	active := seedTable(t, st, "Meja 2")
	idle := seedTable(t, st, "Meja 3")

	base := time.Now().Truncate(time.Second)
	svc.now = func() time.Time { return base }

	_, err := svc.Start(context.Background(), overdue.ID, "Budi", 30)
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), active.ID, "Sari", 120)
	require.NoError(t, err)

	// Advance past the first rental's window only.
	svc.now = func() time.Time { return base.Add(31 * time.Minute) }

	assert.Equal(t, 1, svc.ExpireOverdue(context.Background()))

	got, err := st.GetTable(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, got.Status)

	got, err = st.GetTable(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOccupied, got.Status)

	got, err = st.GetTable(context.Background(), idle.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, got.Status)

	records, err := st.ListHistory(context.Background(), store.HistoryFilter{TableID: overdue.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.EndReasonExpired, records[0].EndReason)

	// A second pass finds nothing left to do.
	assert.Equal(t, 0, svc.ExpireOverdue(context.Background()))
	records, err = st.ListHistory(context.Background(), store.HistoryFilter{TableID: overdue.ID})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
