package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/progress"
	"github.com/JakeFAU/auditsnap/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

// Now advances one second per call so ordering by time is deterministic.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("report-%d", s.n.Add(1)), nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	items []audit.DispatchItem
	err   error
}

func (d *fakeDispatcher) Invoke(_ context.Context, item audit.DispatchItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.items = append(d.items, item)
	return nil
}

func (d *fakeDispatcher) Items() []audit.DispatchItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]audit.DispatchItem(nil), d.items...)
}

// flakyQuota overrides TryDecrement on top of a real in-memory store.
type flakyQuota struct {
	*memory.QuotaStore
	decErr    error
	lostRace  bool
	decrCalls atomic.Int32
}

func (q *flakyQuota) TryDecrement(ctx context.Context, userID string) (bool, error) {
	q.decrCalls.Add(1)
	if q.decErr != nil {
		return false, q.decErr
	}
	if q.lostRace {
		return false, nil
	}
	return q.QuotaStore.TryDecrement(ctx, userID)
}

// countingStore counts Get calls and can replay a scripted sequence of
// statuses on top of the stored report.
type countingStore struct {
	*memory.ReportStore
	gets   atomic.Int32
	mu     sync.Mutex
	script []audit.Status
	// delay slows every Get, honoring ctx.
	delay time.Duration
}

func (s *countingStore) Get(ctx context.Context, id string) (audit.Report, error) {
	s.gets.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return audit.Report{}, ctx.Err()
		}
	}
	r, err := s.ReportStore.Get(ctx, id)
	if err != nil {
		return r, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) > 0 {
		r.Status = s.script[0]
		if r.Status != audit.StatusCompleted {
			r.Data = nil
		}
		s.script = s.script[1:]
	}
	return r, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) count(stage progress.Stage) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, evt := range e.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl       *Controller
	reports    *countingStore
	quota      *flakyQuota
	dispatcher *fakeDispatcher
	events     *recordingEmitter
}

type harnessOption func(*Config)

func withAutoProvision(n int) harnessOption {
	return func(c *Config) {
		c.AutoProvision = true
		c.StarterAudits = n
	}
}

func newHarness(t *testing.T, subs []audit.Subscription, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		reports:    &countingStore{ReportStore: memory.NewReportStore()},
		quota:      &flakyQuota{QuotaStore: memory.NewQuotaStore(subs...)},
		dispatcher: &fakeDispatcher{},
		events:     &recordingEmitter{},
	}
	cfg := Config{
		Reports:    h.reports,
		Quota:      h.quota,
		Dispatcher: h.dispatcher,
		Clock:      newFakeClock(),
		IDs:        &seqIDs{},
		Events:     h.events,
		Watch:      WatchOptions{Interval: time.Millisecond, MaxWait: time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctrl, err := New(cfg)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) remaining(t *testing.T, userID string) int {
	t.Helper()
	sub, err := h.quota.Get(context.Background(), userID)
	require.NoError(t, err)
	return sub.AuditsRemaining
}

func (h *harness) reportCount(t *testing.T, userID string) int {
	t.Helper()
	rs, err := h.reports.ListByOwner(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	return len(rs)
}

func session(userID string) *audit.Session {
	return &audit.Session{UserID: userID}
}

func sub(userID string, remaining int) audit.Subscription {
	return audit.Subscription{UserID: userID, Plan: "Pro", AuditsRemaining: remaining, Active: true}
}

func validPayload(score int) *audit.ReportData {
	return &audit.ReportData{
		URL:          "https://example.com",
		Date:         "2025-03-14",
		OverallScore: score,
		Scores:       audit.Scores{SEO: 80, Performance: 75, Accessibility: 90, Security: 83},
		Summary:      audit.Summary{KeyFindings: []string{"Overall site health is good"}},
		SEO:          []audit.SEOCheck{{Name: "Meta Title", Status: "pass", Description: "Title present."}},
		Performance: audit.PerformanceSection{
			Metrics: []audit.PerformanceMetric{{Name: "First Contentful Paint", Value: "0.9s", Status: "good"}},
		},
		Accessibility: audit.AccessibilitySection{
			WCAG: []audit.WCAGCheck{{Level: "A", Status: "pass", Description: "Level A met."}},
		},
		Security: audit.SecuritySection{
			Headers: []audit.HeaderCheck{{Name: "Strict-Transport-Security", Status: "pass", Description: "HSTS set."}},
		},
	}
}

var errBackend = errors.New("backend unavailable")
