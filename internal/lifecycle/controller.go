// Package lifecycle implements the report lifecycle controller: submission,
// forward-only status transitions, point reads and poll-until-terminal watches.
// The controller runs no goroutines of its own; generation happens behind the
// Dispatcher and reports back through Advance.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/metrics"
	"github.com/JakeFAU/auditsnap/internal/progress"
)

const (
	// StarterPlan names the subscription created for first-time users.
	StarterPlan = "Starter"

	defaultStarterAudits = 3
	maxCASAttempts       = 4
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 200
)

var errContention = errors.New("report updated concurrently")

// Config wires controller dependencies.
type Config struct {
	Reports    audit.ReportStore
	Quota      audit.QuotaStore
	Dispatcher audit.Dispatcher
	Clock      audit.Clock
	IDs        audit.IDGenerator
	Events     progress.Emitter
	Logger     *zap.Logger
	// Tracer defaults to the global provider's "auditsnap/lifecycle" tracer.
	Tracer trace.Tracer

	// AutoProvision creates a Starter subscription on first lookup.
	AutoProvision bool
	StarterAudits int
	Watch         WatchOptions
}

// Controller coordinates the report state machine.
type Controller struct {
	reports    audit.ReportStore
	quota      audit.QuotaStore
	dispatcher audit.Dispatcher
	clock      audit.Clock
	ids        audit.IDGenerator
	events     progress.Emitter
	logger     *zap.Logger
	tracer     trace.Tracer

	autoProvision bool
	starterAudits int
	watch         WatchOptions
}

// New validates cfg and builds a Controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Reports == nil:
		return nil, errors.New("report store is required")
	case cfg.Quota == nil:
		return nil, errors.New("quota store is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case cfg.Clock == nil:
		return nil, errors.New("clock is required")
	case cfg.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.Events == nil {
		cfg.Events = progress.NopEmitter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("auditsnap/lifecycle")
	}
	if cfg.StarterAudits <= 0 {
		cfg.StarterAudits = defaultStarterAudits
	}
	return &Controller{
		reports:       cfg.Reports,
		quota:         cfg.Quota,
		dispatcher:    cfg.Dispatcher,
		clock:         cfg.Clock,
		ids:           cfg.IDs,
		events:        cfg.Events,
		logger:        cfg.Logger,
		tracer:        cfg.Tracer,
		autoProvision: cfg.AutoProvision,
		starterAudits: cfg.StarterAudits,
		watch:         cfg.Watch.withDefaults(),
	}, nil
}

// Submit charges one unit of the requester's quota, records a pending report
// for rawURL and dispatches generation.
//
// Validation and quota checks happen before anything is written, and losing
// the race for the last unit returns ErrQuotaExhausted without recording a
// report. A decrement that errors still records the report, marked
// non-billable.
func (c *Controller) Submit(ctx context.Context, sess *audit.Session, rawURL string) (audit.Handle, error) {
	ctx, span := c.tracer.Start(ctx, "lifecycle.Submit")
	defer span.End()

	if !sess.Valid() {
		metrics.ObserveSubmission("unauthenticated")
		return audit.Handle{}, audit.ErrUnauthenticated
	}
	target, err := audit.ValidateURL(rawURL)
	if err != nil {
		metrics.ObserveSubmission("invalid_url")
		return audit.Handle{}, err
	}
	sub, err := c.subscriptionFor(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, audit.ErrNoActiveSubscription) {
			metrics.ObserveSubmission("no_subscription")
		}
		return audit.Handle{}, err
	}
	if sub.AuditsRemaining <= 0 {
		metrics.ObserveSubmission("quota_exhausted")
		return audit.Handle{}, audit.ErrQuotaExhausted
	}

	id, err := c.ids.NewID()
	if err != nil {
		return audit.Handle{}, fmt.Errorf("new report id: %w", err)
	}
	logger := c.logger.With(
		zap.String("report_id", id),
		zap.String("user_id", sess.UserID),
		zap.String("url", target),
	)
	span.SetAttributes(attribute.String("report_id", id), attribute.String("user_id", sess.UserID))

	handle := audit.Handle{ReportID: id, AuditsRemaining: sub.AuditsRemaining - 1, Billable: true}
	charged, err := c.quota.TryDecrement(ctx, sess.UserID)
	switch {
	case err != nil:
		metrics.ObserveQuotaDecrementFailure()
		logger.Error("quota decrement failed; report kept as non-billable", zap.Error(err))
		handle.Billable = false
		handle.AuditsRemaining = sub.AuditsRemaining
	case !charged:
		metrics.ObserveSubmission("quota_exhausted")
		return audit.Handle{}, audit.ErrQuotaExhausted
	default:
		if fresh, getErr := c.quota.Get(ctx, sess.UserID); getErr == nil {
			handle.AuditsRemaining = fresh.AuditsRemaining
		}
	}

	now := c.clock.Now()
	report := audit.Report{
		ID:        id,
		URL:       target,
		Status:    audit.StatusPending,
		UserID:    sess.UserID,
		CreatedAt: now,
		UpdatedAt: now,
		Billable:  handle.Billable,
	}
	if err := c.reports.Insert(ctx, report); err != nil {
		logger.Error("insert report after quota charge", zap.Bool("billable", handle.Billable), zap.Error(err))
		return audit.Handle{}, fmt.Errorf("insert report: %w", err)
	}
	c.emit(report, progress.StageSubmitted, "")

	item := audit.DispatchItem{ReportID: id, URL: target, Submitted: now}
	if err := c.dispatcher.Invoke(ctx, item); err != nil {
		metrics.ObserveSubmission("dispatch_failed")
		span.SetStatus(codes.Error, "dispatch rejected")
		logger.Warn("dispatch rejected", zap.Error(err))
		if failErr := c.Fail(context.WithoutCancel(ctx), id, "dispatch rejected: "+err.Error()); failErr != nil {
			logger.Error("fail report after dispatch error", zap.Error(failErr))
		}
		return audit.Handle{}, fmt.Errorf("dispatch report: %w", err)
	}

	metrics.ObserveSubmission("accepted")
	logger.Info("report submitted",
		zap.String("status", string(audit.StatusPending)),
		zap.Bool("billable", handle.Billable),
		zap.Int("audits_remaining", handle.AuditsRemaining))
	return handle, nil
}

// Advance moves a report forward. Repeating the current terminal status, or
// processing while processing, is a no-op. The payload is required for and
// only accepted with StatusCompleted.
func (c *Controller) Advance(ctx context.Context, reportID string, to audit.Status, data *audit.ReportData) error {
	return c.advance(ctx, reportID, to, data, "")
}

// Fail advances a report to StatusFailed recording reason as its error text.
func (c *Controller) Fail(ctx context.Context, reportID, reason string) error {
	return c.advance(ctx, reportID, audit.StatusFailed, nil, reason)
}

func (c *Controller) advance(
	ctx context.Context,
	reportID string,
	to audit.Status,
	data *audit.ReportData,
	reason string,
) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", audit.ErrInvalidTransition, to)
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := c.get(ctx, reportID)
		if err != nil {
			return err
		}
		switch audit.Evaluate(current.Status, to) {
		case audit.NoOp:
			return nil
		case audit.Reject:
			return fmt.Errorf("%w: %s -> %s", audit.ErrInvalidTransition, current.Status, to)
		}

		patch, err := c.patchFor(to, data, reason)
		if err != nil {
			return err
		}
		applied, err := c.reports.Update(ctx, reportID, current.Status, patch)
		if err != nil {
			return fmt.Errorf("update report: %w", err)
		}
		if !applied {
			continue
		}

		metrics.ObserveTransition(string(to))
		c.logger.Info("report advanced",
			zap.String("report_id", reportID),
			zap.String("user_id", current.UserID),
			zap.String("url", current.URL),
			zap.String("status", string(to)),
			zap.String("from", string(current.Status)))
		current.Status = to
		c.emit(current, progress.StageFor(to), patch.ErrorText)
		return nil
	}
	return fmt.Errorf("advance report %s: %w", reportID, errContention)
}

func (c *Controller) patchFor(to audit.Status, data *audit.ReportData, reason string) (audit.Patch, error) {
	now := c.clock.Now()
	patch := audit.Patch{Status: to, UpdatedAt: now}
	switch to {
	case audit.StatusCompleted:
		if data == nil {
			return audit.Patch{}, fmt.Errorf("%w: completed requires report data", audit.ErrInvalidTransition)
		}
		if err := data.Validate(); err != nil {
			return audit.Patch{}, fmt.Errorf("%w: %w", audit.ErrInvalidTransition, err)
		}
		patch.Data = data.Clone()
		patch.CompletedAt = &now
	default:
		if data != nil {
			return audit.Patch{}, fmt.Errorf("%w: report data only accepted when completing", audit.ErrInvalidTransition)
		}
		if to == audit.StatusFailed {
			patch.ErrorText = reason
		}
	}
	return patch, nil
}

// Fetch returns the current snapshot of a report without side effects.
func (c *Controller) Fetch(ctx context.Context, reportID string) (audit.Snapshot, error) {
	r, err := c.get(ctx, reportID)
	if err != nil {
		return audit.Snapshot{}, err
	}
	return audit.SnapshotOf(r), nil
}

// FetchOwned is Fetch restricted to reports owned by sess. Reports owned by
// someone else are reported as unknown.
func (c *Controller) FetchOwned(ctx context.Context, sess *audit.Session, reportID string) (audit.Report, error) {
	if !sess.Valid() {
		return audit.Report{}, audit.ErrUnauthenticated
	}
	r, err := c.get(ctx, reportID)
	if err != nil {
		return audit.Report{}, err
	}
	if r.UserID != sess.UserID {
		return audit.Report{}, audit.ErrUnknownReport
	}
	return r, nil
}

// History lists the requester's reports newest first.
func (c *Controller) History(ctx context.Context, sess *audit.Session, limit, offset int) ([]audit.Snapshot, error) {
	if !sess.Valid() {
		return nil, audit.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	reports, err := c.reports.ListByOwner(ctx, sess.UserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	out := make([]audit.Snapshot, 0, len(reports))
	for _, r := range reports {
		out = append(out, audit.SnapshotOf(r))
	}
	return out, nil
}

// Subscription returns the requester's quota, provisioning a Starter plan
// when enabled.
func (c *Controller) Subscription(ctx context.Context, sess *audit.Session) (audit.Subscription, error) {
	if !sess.Valid() {
		return audit.Subscription{}, audit.ErrUnauthenticated
	}
	return c.subscriptionFor(ctx, sess.UserID)
}

func (c *Controller) subscriptionFor(ctx context.Context, userID string) (audit.Subscription, error) {
	sub, err := c.quota.Get(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, audit.ErrNotFound) && c.autoProvision:
		sub, err = c.provision(ctx, userID)
		if err != nil {
			return audit.Subscription{}, err
		}
	case errors.Is(err, audit.ErrNotFound):
		return audit.Subscription{}, audit.ErrNoActiveSubscription
	default:
		return audit.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	if !sub.Active {
		return audit.Subscription{}, audit.ErrNoActiveSubscription
	}
	return sub, nil
}

func (c *Controller) provision(ctx context.Context, userID string) (audit.Subscription, error) {
	sub := audit.Subscription{
		UserID:          userID,
		Plan:            StarterPlan,
		AuditsRemaining: c.starterAudits,
		Active:          true,
		CreatedAt:       c.clock.Now(),
	}
	err := c.quota.Create(ctx, sub)
	switch {
	case err == nil:
		c.logger.Info("provisioned starter subscription",
			zap.String("user_id", userID),
			zap.Int("audits_remaining", sub.AuditsRemaining))
		return sub, nil
	case errors.Is(err, audit.ErrAlreadyExists):
		existing, getErr := c.quota.Get(ctx, userID)
		if getErr != nil {
			return audit.Subscription{}, fmt.Errorf("get subscription: %w", getErr)
		}
		return existing, nil
	default:
		return audit.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
}

func (c *Controller) get(ctx context.Context, reportID string) (audit.Report, error) {
	r, err := c.reports.Get(ctx, reportID)
	if errors.Is(err, audit.ErrNotFound) {
		return audit.Report{}, fmt.Errorf("%w: %s", audit.ErrUnknownReport, reportID)
	}
	if err != nil {
		return audit.Report{}, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (c *Controller) emit(r audit.Report, stage progress.Stage, note string) {
	now := c.clock.Now()
	dur := time.Duration(0)
	if !r.CreatedAt.IsZero() && now.After(r.CreatedAt) {
		dur = now.Sub(r.CreatedAt)
	}
	c.events.Emit(progress.Event{
		ReportID: r.ID,
		UserID:   r.UserID,
		TS:       now,
		Stage:    stage,
		Host:     progress.HostOf(r.URL),
		Dur:      dur,
		Note:     note,
	})
}
