package progress

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported lifecycle stages.
const (
	StageSubmitted    Stage = "REPORT_SUBMITTED"
	StageProcessing   Stage = "REPORT_PROCESSING"
	StageCompleted    Stage = "REPORT_COMPLETED"
	StageFailed       Stage = "REPORT_FAILED"
	StageWatchTimeout Stage = "WATCH_TIMEOUT"
)

// Event captures a single report lifecycle milestone.
type Event struct {
	// ReportID identifies the report the event belongs to.
	ReportID string
	// UserID is the report owner when known.
	UserID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Host is the audited site's hostname, used as a low-cardinality label.
	Host string
	// Dur is the time since the report was created.
	Dur time.Duration
	// Note carries low-volume context such as a failure reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ReportID == "" {
		return errors.New("report id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSubmitted, StageProcessing, StageCompleted, StageFailed, StageWatchTimeout:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// StageFor maps a status reached by a transition to its event stage.
func StageFor(status audit.Status) Stage {
	switch status {
	case audit.StatusProcessing:
		return StageProcessing
	case audit.StatusCompleted:
		return StageCompleted
	case audit.StatusFailed:
		return StageFailed
	default:
		return StageSubmitted
	}
}

// HostOf extracts a lowercase hostname or "unknown".
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
