package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

func newMockQuotaStore(t *testing.T) (*QuotaStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewQuotaStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestQuotaStoreTryDecrement(t *testing.T) {
	t.Parallel()

	store, mock := newMockQuotaStore(t)
	mock.ExpectExec(`audits_remaining > 0`).WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`audits_remaining > 0`).WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`audits_remaining > 0`).WithArgs("u1").
		WillReturnError(errors.New("connection refused"))

	ok, err := store.TryDecrement(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TryDecrement(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.TryDecrement(context.Background(), "u1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotaStoreGet(t *testing.T) {
	t.Parallel()

	store, mock := newMockQuotaStore(t)
	created := time.Unix(1700000000, 0).UTC()
	cols := []string{"user_id", "plan", "audits_remaining", "active", "created_at"}

	mock.ExpectQuery("FROM user_subscriptions").WithArgs("u1").
		WillReturnRows(mock.NewRows(cols).AddRow("u1", "Starter", 3, true, created))
	mock.ExpectQuery("FROM user_subscriptions").WithArgs("nobody").
		WillReturnRows(mock.NewRows(cols))

	sub, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, audit.Subscription{UserID: "u1", Plan: "Starter", AuditsRemaining: 3, Active: true, CreatedAt: created}, sub)

	_, err = store.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotaStoreCreate(t *testing.T) {
	t.Parallel()

	store, mock := newMockQuotaStore(t)
	created := time.Unix(1700000000, 0).UTC()
	sub := audit.Subscription{UserID: "u1", Plan: "Starter", AuditsRemaining: 3, Active: true, CreatedAt: created}

	mock.ExpectExec("INSERT INTO user_subscriptions").WithArgs("u1", "Starter", 3, true, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO user_subscriptions").WithArgs("u1", "Starter", 3, true, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.Create(context.Background(), sub))
	require.ErrorIs(t, store.Create(context.Background(), sub), audit.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}
