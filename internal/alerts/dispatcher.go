package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/khanghh/kadmin/internal/metrics"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"golang.org/x/sync/errgroup"
)

const evaluateTimeout = 10 * time.Second

// Evaluator inspects one committed audit record.
type Evaluator interface {
	Evaluate(ctx context.Context, record *model.AuditLog) error
}

// Dispatcher hands committed audit records to alert evaluation without blocking
// the writer. Delivery is at most once and best effort: records are dropped when
// the queue is full or the process stops, and evaluation errors are only logged.
type Dispatcher struct {
	queue     chan *model.AuditLog
	evaluator Evaluator
	workers   int
}

// Submit enqueues record or drops it when the queue is full. It never blocks.
func (d *Dispatcher) Submit(record *model.AuditLog) {
	select {
	case d.queue <- record:
	default:
		metrics.AlertEventsDropped.Inc()
		slog.Warn("Alert queue full, dropping audit event", "eventID", record.EventID, "action", record.Action)
	}
}

// Run evaluates queued records until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case record := <-d.queue:
			if err := d.evaluate(ctx, record); err != nil {
				slog.Error("Alert evaluation failed", "eventID", record.EventID, "action", record.Action, "error", err)
			}
		}
	}
}

func (d *Dispatcher) evaluate(ctx context.Context, record *model.AuditLog) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()
	return d.evaluator.Evaluate(ctx, record)
}

func NewDispatcher(evaluator Evaluator, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = params.AlertDefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = params.AlertDefaultQueueSize
	}
	return &Dispatcher{
		queue:     make(chan *model.AuditLog, queueSize),
		evaluator: evaluator,
		workers:   workers,
	}
}
