// Package dispatcher hands submitted reports to the generator. Local runs an
// in-process worker pool over a bounded queue; Publishing forwards items to a
// message topic consumed by an external generator fleet.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/worker"
)

const (
	defaultEnqueueTimeout = time.Second
	shutdownReason        = "dispatch aborted: shutdown"
)

// ErrQueueFull is returned when the queue stays full for the enqueue timeout.
var ErrQueueFull = errors.New("dispatch queue full")

// Local fans out queue work to a pool of workers.
type Local struct {
	queue          audit.Queue
	workers        []*worker.Worker
	enqueueTimeout time.Duration
}

// New creates a Local dispatcher. A non-positive enqueueTimeout uses one
// second.
func New(queue audit.Queue, workers []*worker.Worker, enqueueTimeout time.Duration) *Local {
	if enqueueTimeout <= 0 {
		enqueueTimeout = defaultEnqueueTimeout
	}
	return &Local{
		queue:          queue,
		workers:        workers,
		enqueueTimeout: enqueueTimeout,
	}
}

// Attach adds workers. Workers consume from the same queue Invoke feeds, so
// they can be built after the controller that dispatches to them. Attach
// must be called before Run.
func (d *Local) Attach(workers ...*worker.Worker) {
	d.workers = append(d.workers, workers...)
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned. Items still queued at that point are failed.
func (d *Local) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Go(func() {
			w.Run(ctx)
		})
	}
	<-ctx.Done()
	wg.Wait()
	d.abandonQueued(context.WithoutCancel(ctx))
}

// abandonQueued closes the queue and fails every buffered item so no
// charged report stays pending. Queues without Close are left alone.
func (d *Local) abandonQueued(ctx context.Context) {
	closer, ok := d.queue.(interface{ Close() })
	if !ok || len(d.workers) == 0 {
		return
	}
	closer.Close()
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		d.workers[0].Abort(ctx, item, shutdownReason)
	}
}

// Invoke enqueues item, waiting at most the enqueue timeout for room.
func (d *Local) Invoke(ctx context.Context, item audit.DispatchItem) error {
	enqueueCtx, cancel := context.WithTimeout(ctx, d.enqueueTimeout)
	defer cancel()
	if err := d.queue.Enqueue(enqueueCtx, item); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return ErrQueueFull
		}
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Publishing forwards dispatch items to a topic.
type Publishing struct {
	publisher audit.Publisher
	topic     string
}

// NewPublishing creates a dispatcher publishing to topic.
func NewPublishing(publisher audit.Publisher, topic string) (*Publishing, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &Publishing{publisher: publisher, topic: topic}, nil
}

// Invoke publishes item and waits for the broker acknowledgement.
func (p *Publishing) Invoke(ctx context.Context, item audit.DispatchItem) error {
	if _, err := p.publisher.Publish(ctx, p.topic, item); err != nil {
		return fmt.Errorf("publish dispatch: %w", err)
	}
	return nil
}
