package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

const reportColumns = `id, url, status, report_data, user_id, created_at, updated_at, completed_at, error_text, billable`

// ReportStore persists audit reports in the audit_reports table.
type ReportStore struct {
	db DB
}

// NewReportStore wraps an existing pool.
func NewReportStore(db DB) (*ReportStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	return &ReportStore{db: db}, nil
}

// Insert writes a new report row.
func (s *ReportStore) Insert(ctx context.Context, r audit.Report) error {
	data, err := encodeData(r.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO audit_reports (`+reportColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.URL, string(r.Status), data, r.UserID,
		r.CreatedAt, r.UpdatedAt, r.CompletedAt, nullable(r.ErrorText), r.Billable,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("report %s: %w", r.ID, audit.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Update applies p when the row still has the expected status. completed_at
// is only written once.
func (s *ReportStore) Update(ctx context.Context, reportID string, expected audit.Status, p audit.Patch) (bool, error) {
	data, err := encodeData(p.Data)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE audit_reports
SET status = $3,
    report_data = COALESCE($4, report_data),
    completed_at = COALESCE(completed_at, $5),
    error_text = COALESCE($6, error_text),
    updated_at = $7
WHERE id = $1 AND status = $2`,
		reportID, string(expected), string(p.Status), data, p.CompletedAt, nullable(p.ErrorText), p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("update report: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM audit_reports WHERE id = $1)`, reportID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check report: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("report %s: %w", reportID, audit.ErrNotFound)
	}
	return false, nil
}

// Get loads a report by ID.
func (s *ReportStore) Get(ctx context.Context, reportID string) (audit.Report, error) {
	row := s.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM audit_reports WHERE id = $1`, reportID)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Report{}, fmt.Errorf("report %s: %w", reportID, audit.ErrNotFound)
	}
	if err != nil {
		return audit.Report{}, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// ListByOwner returns a page of the owner's reports newest first. A
// non-positive limit returns every row.
func (s *ReportStore) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]audit.Report, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, `
SELECT `+reportColumns+`
FROM audit_reports
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, userID, lim, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

func scanReport(row pgx.Row) (audit.Report, error) {
	var (
		r           audit.Report
		status      string
		data        []byte
		completedAt *time.Time
		errText     *string
	)
	if err := row.Scan(
		&r.ID, &r.URL, &status, &data, &r.UserID,
		&r.CreatedAt, &r.UpdatedAt, &completedAt, &errText, &r.Billable,
	); err != nil {
		return audit.Report{}, err
	}
	r.Status = audit.Status(status)
	r.CompletedAt = completedAt
	if errText != nil {
		r.ErrorText = *errText
	}
	if len(data) > 0 {
		var payload audit.ReportData
		if err := json.Unmarshal(data, &payload); err != nil {
			return audit.Report{}, fmt.Errorf("decode report data: %w", err)
		}
		r.Data = &payload
	}
	return r, nil
}

func encodeData(d *audit.ReportData) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode report data: %w", err)
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
