package infrastructure

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "fulfillment.db"), 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	// 重复迁移不应失败
	require.NoError(t, db.Migrate(ctx))
	return db
}

func seedUnits(t *testing.T, store *SQLInventoryStore, n int) []int64 {
	t.Helper()
	payloads := make([]domain.AccountPayload, n)
	for i := range payloads {
		payloads[i] = domain.AccountPayload{
			Login:           fmt.Sprintf("user%d@example.com", i),
			MailPassword:    "mail-secret",
			ServicePassword: "svc-secret",
			UserName:        fmt.Sprintf("User %d", i),
			Instruction:     "Sign in and change the password",
		}
	}
	ids, err := store.AddUnits(context.Background(), payloads)
	require.NoError(t, err)
	require.Len(t, ids, n)
	return ids
}

func TestLedger_RecordObservation(t *testing.T) {
	ctx := context.Background()
	ledger := NewSQLOrderLedger(newTestDatabase(t))

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return t0 }

	order := &domain.Order{
		ID:       "1001",
		Status:   domain.StatusProcessing,
		Payment:  domain.PaymentPrepaid,
		Delivery: domain.DeliveryDigital,
		Items:    []domain.LineItem{{ID: "sku-1", Count: 1}},
	}

	change, err := ledger.RecordObservation(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerInserted, change)

	rec, err := ledger.Get(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, rec.Status)
	assert.Equal(t, "sku-1", rec.ItemID)
	assert.True(t, rec.FirstSeenAt.Equal(t0))
	assert.True(t, rec.LastUpdatedAt.Equal(t0))

	// 状态未变化：不写库，last_updated_at 保持不变
	ledger.now = func() time.Time { return t0.Add(time.Hour) }
	change, err = ledger.RecordObservation(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerUnchanged, change)

	rec, err = ledger.Get(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, rec.LastUpdatedAt.Equal(t0))

	// 状态变化：更新，first_seen_at 保持不变
	t2 := t0.Add(2 * time.Hour)
	ledger.now = func() time.Time { return t2 }
	delivered := *order
	delivered.Status = domain.StatusDelivered
	change, err = ledger.RecordObservation(ctx, &delivered)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerUpdated, change)

	rec, err = ledger.Get(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, rec.Status)
	assert.True(t, rec.FirstSeenAt.Equal(t0))
	assert.True(t, rec.LastUpdatedAt.Equal(t2))
}

func TestLedger_GetMissing(t *testing.T) {
	ledger := NewSQLOrderLedger(newTestDatabase(t))
	_, err := ledger.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestInventory_ReserveOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewSQLInventoryStore(newTestDatabase(t))
	ids := seedUnits(t, store, 3)

	res, err := store.Reserve(ctx, "A", 2)
	require.NoError(t, err)
	require.Equal(t, domain.ReservationReserved, res.Outcome)
	require.Len(t, res.Units, 2)
	assert.Equal(t, ids[0], res.Units[0].ID)
	assert.Equal(t, ids[1], res.Units[1].ID)
	for _, u := range res.Units {
		assert.Equal(t, domain.UnitReserved, u.State)
		assert.Equal(t, "A", u.OrderID)
		assert.NotNil(t, u.ReservedAt)
		assert.Equal(t, "Sign in and change the password", u.Payload.Instruction)
	}

	fulfilled, err := store.IsAlreadyFulfilled(ctx, "A")
	require.NoError(t, err)
	assert.True(t, fulfilled)

	fulfilled, err = store.IsAlreadyFulfilled(ctx, "B")
	require.NoError(t, err)
	assert.False(t, fulfilled)
}

func TestInventory_ReserveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewSQLInventoryStore(newTestDatabase(t))
	seedUnits(t, store, 2)

	res, err := store.Reserve(ctx, "B", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationInsufficient, res.Outcome)
	assert.Equal(t, 2, res.Available)
	assert.Empty(t, res.Units)

	counts, err := store.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.UnitFree])
	assert.Equal(t, 0, counts[domain.UnitReserved])

	fulfilled, err := store.IsAlreadyFulfilled(ctx, "B")
	require.NoError(t, err)
	assert.False(t, fulfilled)
}

func TestInventory_ReserveRejectsInvalidCount(t *testing.T) {
	store := NewSQLInventoryStore(newTestDatabase(t))
	_, err := store.Reserve(context.Background(), "A", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
}

func TestInventory_ConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := NewSQLInventoryStore(newTestDatabase(t))
	seedUnits(t, store, 5)

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved = map[int64]string{}
		short    int
		errs     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			res, err := store.Reserve(ctx, orderID, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Outcome == domain.ReservationInsufficient {
				short++
				return
			}
			for _, u := range res.Units {
				if prev, dup := reserved[u.ID]; dup {
					errs = append(errs, fmt.Errorf("unit %d reserved by %s and %s", u.ID, prev, orderID))
				}
				reserved[u.ID] = orderID
			}
		}(fmt.Sprintf("order-%d", i))
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, reserved, 5)
	assert.Equal(t, workers-5, short)

	counts, err := store.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[domain.UnitFree])
	assert.Equal(t, 5, counts[domain.UnitReserved])
}

func TestInventory_MarkSoldIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewSQLInventoryStore(newTestDatabase(t))
	seedUnits(t, store, 3)

	_, err := store.Reserve(ctx, "A", 2)
	require.NoError(t, err)

	n, err := store.MarkSold(ctx, "A")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = store.MarkSold(ctx, "A")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	counts, err := store.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.UnitState]int{
		domain.UnitFree:     1,
		domain.UnitReserved: 0,
		domain.UnitSold:     2,
	}, counts)

	// 已售出的单元仍然算作已履约
	fulfilled, err := store.IsAlreadyFulfilled(ctx, "A")
	require.NoError(t, err)
	assert.True(t, fulfilled)
}

func TestInventory_ListStaleReservations(t *testing.T) {
	ctx := context.Background()
	store := NewSQLInventoryStore(newTestDatabase(t))
	seedUnits(t, store, 3)

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }
	_, err := store.Reserve(ctx, "old", 1)
	require.NoError(t, err)

	store.now = func() time.Time { return t0.Add(48 * time.Hour) }
	_, err = store.Reserve(ctx, "fresh", 1)
	require.NoError(t, err)

	stale, err := store.ListStaleReservations(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].OrderID)
	require.NotNil(t, stale[0].ReservedAt)
	assert.True(t, stale[0].ReservedAt.Equal(t0))

	_, err = store.MarkSold(ctx, "old")
	require.NoError(t, err)
	stale, err = store.ListStaleReservations(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:/tmp/x.db?_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)",
		sqliteDSN("/tmp/x.db", 30*time.Second))
	assert.Equal(t, "file:custom.db?mode=ro", sqliteDSN("file:custom.db?mode=ro", time.Second))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "x", time.Second)
	assert.Error(t, err)
}
