package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

var reportCols = []string{
	"id", "url", "status", "report_data", "user_id",
	"created_at", "updated_at", "completed_at", "error_text", "billable",
}

func newMockReportStore(t *testing.T) (*ReportStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewReportStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewReportStoreRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewReportStore(nil)
	require.Error(t, err)
}

func TestReportStoreInsert(t *testing.T) {
	t.Parallel()

	store, mock := newMockReportStore(t)
	now := time.Unix(1700000000, 0).UTC()
	r := audit.Report{
		ID: "r1", URL: "https://example.com", Status: audit.StatusPending, UserID: "u1",
		CreatedAt: now, UpdatedAt: now, Billable: true,
	}

	mock.ExpectExec("INSERT INTO audit_reports").
		WithArgs("r1", "https://example.com", "pending", []byte(nil), "u1",
			now, now, (*time.Time)(nil), (*string)(nil), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreInsertDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockReportStore(t)
	mock.ExpectExec("INSERT INTO audit_reports").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Insert(context.Background(), audit.Report{ID: "r1"})
	require.ErrorIs(t, err, audit.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreUpdateCompare(t *testing.T) {
	t.Parallel()

	store, mock := newMockReportStore(t)
	now := time.Unix(1700000100, 0).UTC()
	data := &audit.ReportData{URL: "https://example.com", OverallScore: 82}
	encoded, err := json.Marshal(data)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE audit_reports").
		WithArgs("r1", "processing", "completed", encoded, &now, (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := store.Update(context.Background(), "r1", audit.StatusProcessing, audit.Patch{
		Status: audit.StatusCompleted, Data: data, CompletedAt: &now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreUpdateStaleOrMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockReportStore(t)
	now := time.Unix(1700000100, 0).UTC()
	patch := audit.Patch{Status: audit.StatusFailed, ErrorText: "boom", UpdatedAt: now}

	mock.ExpectExec("UPDATE audit_reports").
		WithArgs("r1", "pending", "failed", []byte(nil), (*time.Time)(nil), pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("r1").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Update(context.Background(), "r1", audit.StatusPending, patch)
	require.NoError(t, err)
	require.False(t, ok)

	mock.ExpectExec("UPDATE audit_reports").
		WithArgs("gone", "pending", "failed", []byte(nil), (*time.Time)(nil), pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("gone").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))

	_, err = store.Update(context.Background(), "gone", audit.StatusPending, patch)
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreGet(t *testing.T) {
	t.Parallel()

	store, mock := newMockReportStore(t)
	created := time.Unix(1700000000, 0).UTC()
	done := created.Add(time.Minute)
	errText := (*string)(nil)

	mock.ExpectQuery("SELECT (.+) FROM audit_reports WHERE id").WithArgs("r1").
		WillReturnRows(mock.NewRows(reportCols).AddRow(
			"r1", "https://example.com", "completed", []byte(`{"url":"https://example.com","overallScore":82}`), "u1",
			created, done, &done, errText, true,
		))

	r, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, audit.StatusCompleted, r.Status)
	require.NotNil(t, r.Data)
	require.Equal(t, 82, r.Data.OverallScore)
	require.Equal(t, done, *r.CompletedAt)
	require.Empty(t, r.ErrorText)

	mock.ExpectQuery("SELECT (.+) FROM audit_reports WHERE id").WithArgs("missing").
		WillReturnRows(mock.NewRows(reportCols))
	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreListByOwner(t *testing.T) {
	t.Parallel()

	store, mock := newMockReportStore(t)
	newer := time.Unix(1700000500, 0).UTC()
	older := time.Unix(1700000000, 0).UTC()
	failure := "dispatch rejected"

	mock.ExpectQuery("ORDER BY created_at DESC").WithArgs("u1", 10, 0).
		WillReturnRows(mock.NewRows(reportCols).
			AddRow("r2", "https://b.example.com", "pending", []byte(nil), "u1", newer, newer, (*time.Time)(nil), (*string)(nil), true).
			AddRow("r1", "https://a.example.com", "failed", []byte(nil), "u1", older, older, (*time.Time)(nil), &failure, true))

	rs, err := store.ListByOwner(context.Background(), "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	require.Equal(t, "r2", rs[0].ID)
	require.Nil(t, rs[0].Data)
	require.Equal(t, "dispatch rejected", rs[1].ErrorText)
	require.NoError(t, mock.ExpectationsWereMet())
}
