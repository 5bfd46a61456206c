package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/progress"
)

// ReportReader loads the report an event refers to.
type ReportReader interface {
	Get(ctx context.Context, reportID string) (audit.Report, error)
}

// ArchiveSink writes every completed report as a JSON artifact to a blob
// store under reports/<yyyy>/<mm>/<id>.json.
type ArchiveSink struct {
	reports ReportReader
	blobs   audit.BlobStore
	hasher  audit.Hasher
	logger  *zap.Logger
}

// NewArchiveSink wires the report source and destination.
func NewArchiveSink(reports ReportReader, blobs audit.BlobStore, hasher audit.Hasher, logger *zap.Logger) (*ArchiveSink, error) {
	if reports == nil || blobs == nil || hasher == nil {
		return nil, errors.New("archive sink requires reports, blob store and hasher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{reports: reports, blobs: blobs, hasher: hasher, logger: logger}, nil
}

// Consume archives the completed reports in batch. Other stages are ignored.
func (s *ArchiveSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageCompleted {
			continue
		}
		if err := s.archive(ctx, evt.ReportID); err != nil {
			errs = append(errs, fmt.Errorf("archive report %s: %w", evt.ReportID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ArchiveSink) archive(ctx context.Context, reportID string) error {
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if report.Status != audit.StatusCompleted || report.Data == nil {
		return fmt.Errorf("report is %s, not completed", report.Status)
	}
	body, err := json.MarshalIndent(audit.SnapshotOf(report), "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return fmt.Errorf("hash report: %w", err)
	}
	at := report.CreatedAt
	if report.CompletedAt != nil {
		at = *report.CompletedAt
	}
	uri, err := s.blobs.PutObject(ctx, ObjectPath(reportID, at), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	s.logger.Info("report archived",
		zap.String("report_id", reportID),
		zap.String("uri", uri),
		zap.String("sha256", digest),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// ObjectPath returns the blob path of a report completed at the given time.
func ObjectPath(reportID string, completedAt time.Time) string {
	at := completedAt.UTC()
	return path.Join("reports", at.Format("2006"), at.Format("01"), reportID+".json")
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
