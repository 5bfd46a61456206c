package lifecycle

import (
	"context"
	"iter"
	"time"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/metrics"
	"github.com/JakeFAU/auditsnap/internal/progress"
)

const (
	defaultWatchInterval = 3 * time.Second
	defaultWatchMaxWait  = time.Minute
)

// WatchOptions tunes a poll loop. Zero values fall back to the controller
// defaults.
type WatchOptions struct {
	Interval time.Duration
	MaxWait  time.Duration
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.Interval <= 0 {
		o.Interval = defaultWatchInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = defaultWatchMaxWait
	}
	return o
}

func (o WatchOptions) or(fallback WatchOptions) WatchOptions {
	if o.Interval <= 0 {
		o.Interval = fallback.Interval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = fallback.MaxWait
	}
	return o
}

// Watch returns a lazy sequence of snapshots for reportID. Nothing is read
// until the sequence is ranged over, and each range starts a fresh poll loop.
//
// The first snapshot is yielded immediately, then one per status change. The
// sequence ends after a terminal snapshot, when the consumer stops, when ctx
// is done (yielding ctx.Err()) or once MaxWait elapses, in which case the last
// snapshot is yielded again with TimedOut set. Reads that would move the
// status backwards are dropped and retried on the next tick.
func (c *Controller) Watch(ctx context.Context, reportID string, opts WatchOptions) iter.Seq2[audit.Snapshot, error] {
	opts = opts.or(c.watch)
	return func(yield func(audit.Snapshot, error) bool) {
		waitCtx, cancel := context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
		timer := time.NewTimer(opts.Interval)
		defer timer.Stop()

		var (
			last audit.Snapshot
			seen bool
		)
		timedOut := func() {
			last.TimedOut = true
			c.emit(audit.Report{ID: last.ID, URL: last.URL, CreatedAt: last.CreatedAt}, progress.StageWatchTimeout, "")
			yield(last, nil)
		}

		for {
			metrics.ObserveWatchPoll()
			// The first read is bounded by ctx alone so a slow store still
			// produces a snapshot to time out on.
			fetchCtx := waitCtx
			if !seen {
				fetchCtx = ctx
			}
			snap, err := c.Fetch(fetchCtx, reportID)
			if err != nil {
				switch {
				case ctx.Err() != nil:
					yield(audit.Snapshot{}, ctx.Err())
				case waitCtx.Err() != nil && seen:
					timedOut()
				default:
					yield(audit.Snapshot{}, err)
				}
				return
			}
			if !seen || snap.Status.Rank() > last.Status.Rank() {
				seen = true
				last = snap
				if !yield(snap, nil) || snap.Status.Terminal() {
					return
				}
			}

			timer.Reset(opts.Interval)
			select {
			case <-timer.C:
			case <-waitCtx.Done():
				if ctx.Err() != nil {
					yield(audit.Snapshot{}, ctx.Err())
					return
				}
				timedOut()
				return
			}
		}
	}
}

// Await drains Watch and returns the final snapshot it produced: the terminal
// one or, after MaxWait, the last observed with TimedOut set.
func (c *Controller) Await(ctx context.Context, reportID string, opts WatchOptions) (audit.Snapshot, error) {
	var final audit.Snapshot
	for snap, err := range c.Watch(ctx, reportID, opts) {
		if err != nil {
			return audit.Snapshot{}, err
		}
		final = snap
	}
	return final, nil
}
