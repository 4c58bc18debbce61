package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oslerlabs/simcore/internal/metrics"
)

// dispatchTimeout bounds one notification's fan-out to both collaborators.
const dispatchTimeout = 10 * time.Second

// queueSize bounds pending notifications. When the queue is full the
// notification is dropped and logged; termination is already committed
// and must not block on propagation.
const queueSize = 64

// Dispatcher decouples progress propagation from the request path. A
// single worker drains a bounded queue and fans each notification out to
// both collaborators concurrently.
type Dispatcher struct {
	general Propagator
	program ProgramPropagator
	log     *slog.Logger
	metrics *metrics.Metrics

	queue chan Notification
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates and starts a dispatcher. Either collaborator may
// be nil; a nil logger falls back to slog.Default.
func NewDispatcher(general Propagator, program ProgramPropagator, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		general: general,
		program: program,
		log:     log,
		metrics: m,
		queue:   make(chan Notification, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues a notification without blocking. A full queue drops
// the notification; the drop is logged and counted, never surfaced.
func (d *Dispatcher) Notify(n Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- n:
	default:
		d.log.Warn("progress queue full, notification dropped",
			"user", n.UserID, "case", n.CaseID, "session", n.Attempt.SessionID)
		d.recordFailure()
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.dispatch(n)
	}
}

// dispatch fans one notification out to both collaborators. Each failure
// is independent: one collaborator failing never stops the other.
func (d *Dispatcher) dispatch(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if d.general != nil {
		g.Go(func() error {
			if err := d.general.Update(ctx, n.UserID, n.CaseID, n.Attempt.RecordID); err != nil {
				d.log.Warn("progress update failed",
					"user", n.UserID, "case", n.CaseID, "error", err)
				d.recordFailure()
			}
			return nil
		})
	}
	if d.program != nil {
		g.Go(func() error {
			if err := d.program.RecordAttempt(ctx, n.UserID, n.Attempt); err != nil {
				d.log.Warn("attempt propagation failed",
					"user", n.UserID, "case", n.CaseID, "error", err)
				d.recordFailure()
			}
			return nil
		})
	}

	// Errors are consumed above; Wait only synchronizes the fan-out.
	_ = g.Wait()
}

func (d *Dispatcher) recordFailure() {
	if d.metrics != nil {
		d.metrics.PropagationFailures.Inc()
	}
}
