package audit

import (
	"context"
	"io"
	"time"
)

// ReportStore persists audit reports.
type ReportStore interface {
	Insert(ctx context.Context, report Report) error
	// Update applies patch only when the stored status equals expected and
	// reports whether a row was changed.
	Update(ctx context.Context, reportID string, expected Status, patch Patch) (bool, error)
	Get(ctx context.Context, reportID string) (Report, error)
	ListByOwner(ctx context.Context, userID string, limit, offset int) ([]Report, error)
}

// QuotaStore owns the per-user audits_remaining counter.
type QuotaStore interface {
	Get(ctx context.Context, userID string) (Subscription, error)
	Create(ctx context.Context, sub Subscription) error
	// TryDecrement atomically decrements the counter when it is above zero.
	// It returns false when the counter was already exhausted.
	TryDecrement(ctx context.Context, userID string) (bool, error)
}

// Dispatcher triggers the asynchronous generator for a report.
type Dispatcher interface {
	Invoke(ctx context.Context, item DispatchItem) error
}

// Generator computes report content for a URL.
type Generator interface {
	Generate(ctx context.Context, url string) (ReportData, error)
}

// BlobStore writes archived artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes messages to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for dispatched reports.
type Queue interface {
	Enqueue(ctx context.Context, item DispatchItem) error
	Dequeue(ctx context.Context) (DispatchItem, error)
}

// Hasher computes digests for archive integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces report IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
