package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
	"github.com/pkordes/hidetrace/backend/testutil"
)

func appendEntry(t *testing.T, s repo.Stores, e domain.Entry) uuid.UUID {
	t.Helper()
	id, err := s.Ledger.Append(context.Background(), e)
	require.NoError(t, err)
	return id
}

func TestLedgerRepo_AppendAndHistory(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	_, err := s.Tags.Create(ctx, tagFixture("HIST0001"))
	require.NoError(t, err)

	// Appended out of order: history must come back sorted by time.
	id2 := appendEntry(t, s, domain.Entry{UserID: "trader-1", Role: domain.RoleTrader, Action: domain.ActionArrived, At: *ts(9), TagCode: "HIST0001"})
	id1 := appendEntry(t, s, domain.Entry{UserID: "slaughter-1", Role: domain.RoleSlaughterhouse, Action: domain.ActionDataEntered, At: *ts(8), TagCode: "HIST0001"})
	assert.NotEqual(t, uuid.Nil, id1)

	got, err := s.Ledger.HistoryForTag(ctx, "HIST0001")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, id1, got[0].ID)
	assert.Equal(t, domain.ActionDataEntered, got[0].Action)
	assert.Equal(t, id2, got[1].ID)
	assert.Equal(t, domain.RoleTrader, got[1].Role)
}

func TestLedgerRepo_HistoryForProduct(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	_, err := s.Products.Create(ctx, productFixture("LEDGERPROD01"))
	require.NoError(t, err)
	appendEntry(t, s, domain.Entry{UserID: "garment-1", Role: domain.RoleGarment, Action: domain.ActionDataEntered, At: *ts(12), ProductCode: "LEDGERPROD01"})

	got, err := s.Ledger.HistoryForProduct(ctx, "LEDGERPROD01")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].TagCode)
	assert.Equal(t, "LEDGERPROD01", got[0].ProductCode)
}

func TestLedgerRepo_Append_UnknownTag(t *testing.T) {
	s := newTestStores(t)

	_, err := s.Ledger.Append(context.Background(), domain.Entry{
		UserID: "trader-1", Role: domain.RoleTrader, Action: domain.ActionArrived, At: time.Now(), TagCode: "GHOST001",
	})

	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestLedgerRepo_List_ScopedAndFiltered(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	_, err := s.Tags.Create(ctx, tagFixture("LIST0001"))
	require.NoError(t, err)
	_, err = s.Tags.Create(ctx, tagFixture("LIST0002"))
	require.NoError(t, err)

	appendEntry(t, s, domain.Entry{UserID: "trader-1", Role: domain.RoleTrader, Action: domain.ActionArrived, At: *ts(9), TagCode: "LIST0001"})
	appendEntry(t, s, domain.Entry{UserID: "trader-1", Role: domain.RoleTrader, Action: domain.ActionDispatched, At: *ts(10), TagCode: "LIST0001"})
	appendEntry(t, s, domain.Entry{UserID: "tannery-1", Role: domain.RoleTannery, Action: domain.ActionArrived, At: *ts(11), TagCode: "LIST0002", StampCode: "TZ_01"})

	page := domain.NewPaginationParams(nil, nil)

	t.Run("own entries only, newest first", func(t *testing.T) {
		got, total, err := s.Ledger.List(ctx, domain.TransactionFilter{Scope: domain.Scope{UserID: "trader-1"}}, page)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, got, 2)
		assert.Equal(t, domain.ActionDispatched, got[0].Action)
	})

	t.Run("search matches stamp literally", func(t *testing.T) {
		f := domain.TransactionFilter{Scope: domain.Scope{All: true}, Search: "tz_0"}
		got, total, err := s.Ledger.List(ctx, f, page)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, int64(1))
		for _, e := range got {
			assert.Contains(t, e.StampCode, "TZ_0")
		}
	})

	t.Run("role filter", func(t *testing.T) {
		f := domain.TransactionFilter{Scope: domain.Scope{All: true}, Role: domain.RoleTannery, Search: "LIST000"}
		got, total, err := s.Ledger.List(ctx, f, page)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, got, 1)
		assert.Equal(t, "LIST0002", got[0].TagCode)
	})

	t.Run("pagination", func(t *testing.T) {
		one := 1
		f := domain.TransactionFilter{Scope: domain.Scope{UserID: "trader-1"}}
		got, total, err := s.Ledger.List(ctx, f, domain.NewPaginationParams(nil, &one))
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, got, 1)
	})
}

func TestLedgerRepo_Summarize(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	_, err := s.Tags.Create(ctx, tagFixture("SUMM0001"))
	require.NoError(t, err)
	appendEntry(t, s, domain.Entry{UserID: "sum-user", Role: domain.RoleTrader, Action: domain.ActionArrived, At: *ts(9), TagCode: "SUMM0001"})
	appendEntry(t, s, domain.Entry{UserID: "sum-user", Role: domain.RoleTrader, Action: domain.ActionDispatched, At: *ts(10), TagCode: "SUMM0001"})
	appendEntry(t, s, domain.Entry{UserID: "other", Role: domain.RoleTannery, Action: domain.ActionArrived, At: *ts(11), TagCode: "SUMM0001"})

	got, err := s.Ledger.Summarize(ctx, domain.Scope{UserID: "sum-user"})

	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Arrived: 1, Dispatched: 1}, got)
}

func TestLedgerRepo_AppendOnly(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	s := repo.NewStores(tx)
	_, err = s.Tags.Create(ctx, tagFixture("APPD0001"))
	require.NoError(t, err)
	appendEntry(t, s, domain.Entry{UserID: "u", Role: domain.RoleTrader, Action: domain.ActionArrived, At: *ts(9), TagCode: "APPD0001"})

	_, err = tx.Exec(ctx, `UPDATE custody_entries SET location = 'x' WHERE tag_code = 'APPD0001'`)
	assert.Error(t, err, "ledger rows cannot be updated")
}
