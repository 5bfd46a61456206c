// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

// ReportStore keeps reports in a map guarded by a RWMutex. Reads return
// copies so callers never alias stored payloads.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]audit.Report
}

// NewReportStore constructs a ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[string]audit.Report)}
}

// Insert stores a new report.
func (s *ReportStore) Insert(_ context.Context, r audit.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[r.ID]; exists {
		return fmt.Errorf("report %s: %w", r.ID, audit.ErrAlreadyExists)
	}
	s.reports[r.ID] = clone(r)
	return nil
}

// Update applies patch when the stored status equals expected.
func (s *ReportStore) Update(_ context.Context, reportID string, expected audit.Status, p audit.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportID]
	if !ok {
		return false, fmt.Errorf("report %s: %w", reportID, audit.ErrNotFound)
	}
	if r.Status != expected {
		return false, nil
	}
	r.Status = p.Status
	r.UpdatedAt = p.UpdatedAt
	if p.Data != nil {
		r.Data = p.Data.Clone()
	}
	if p.CompletedAt != nil && r.CompletedAt == nil {
		ts := *p.CompletedAt
		r.CompletedAt = &ts
	}
	if p.ErrorText != "" {
		r.ErrorText = p.ErrorText
	}
	s.reports[reportID] = r
	return true, nil
}

// Get fetches a report by ID.
func (s *ReportStore) Get(_ context.Context, reportID string) (audit.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[reportID]
	if !ok {
		return audit.Report{}, fmt.Errorf("report %s: %w", reportID, audit.ErrNotFound)
	}
	return clone(r), nil
}

// ListByOwner returns the owner's reports newest first.
func (s *ReportStore) ListByOwner(_ context.Context, userID string, limit, offset int) ([]audit.Report, error) {
	s.mu.RLock()
	owned := make([]audit.Report, 0)
	for _, r := range s.reports {
		if r.UserID == userID {
			owned = append(owned, clone(r))
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if offset >= len(owned) {
		return []audit.Report{}, nil
	}
	owned = owned[offset:]
	if limit > 0 && limit < len(owned) {
		owned = owned[:limit]
	}
	return owned, nil
}

func clone(r audit.Report) audit.Report {
	r.Data = r.Data.Clone()
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		r.CompletedAt = &ts
	}
	return r
}
