// Package audit defines core types shared across subsystems.
package audit

import (
	"time"
)

// Status represents the lifecycle state of an audit report.
type Status string

// Report status values persisted in the report store.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Report is the durable record of one audit request and its result.
type Report struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Status      Status      `json:"status"`
	Data        *ReportData `json:"report_data"`
	UserID      string      `json:"user_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	ErrorText   string      `json:"error_text,omitempty"`
	Billable    bool        `json:"billable"`
}

// Snapshot is the read model handed to pollers. TimedOut is only set by Watch
// when it gave up before observing a terminal status.
type Snapshot struct {
	ID          string      `json:"report_id"`
	URL         string      `json:"url"`
	Status      Status      `json:"status"`
	Data        *ReportData `json:"report_data"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	ErrorText   string      `json:"error_text,omitempty"`
	TimedOut    bool        `json:"still_working,omitempty"`
}

// SnapshotOf projects a stored report onto the poll contract.
func SnapshotOf(r Report) Snapshot {
	return Snapshot{
		ID:          r.ID,
		URL:         r.URL,
		Status:      r.Status,
		Data:        r.Data,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		ErrorText:   r.ErrorText,
	}
}

// Patch describes a single atomic write applied by ReportStore.Update.
type Patch struct {
	Status      Status
	Data        *ReportData
	CompletedAt *time.Time
	ErrorText   string
	UpdatedAt   time.Time
}

// Subscription holds the per-user quota consumed by submissions.
type Subscription struct {
	UserID          string    `json:"user_id"`
	Plan            string    `json:"plan"`
	AuditsRemaining int       `json:"audits_remaining"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Session identifies the authenticated requester. It is passed explicitly
// into every controller call.
type Session struct {
	UserID string
	Email  string
}

// Valid reports whether the session carries a usable identity.
func (s *Session) Valid() bool {
	return s != nil && s.UserID != ""
}

// Handle is returned by a successful submission.
type Handle struct {
	ReportID        string `json:"report_id"`
	AuditsRemaining int    `json:"audits_remaining"`
	Billable        bool   `json:"billable"`
}

// DispatchItem wraps a report ready for generation.
type DispatchItem struct {
	ReportID  string    `json:"report_id"`
	URL       string    `json:"url"`
	Submitted time.Time `json:"submitted_at"`
	Attempt   int       `json:"-"`
}
