// Package dispatch runs dialog turns: one at a time per user, many users at once.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/dialog"
	"github.com/Veraticus/pricebot/internal/metrics"
)

// Handler runs a single turn.
type Handler interface {
	Handle(ctx context.Context, ev dialog.Event) (dialog.Reply, error)
}

// Sink delivers a reply back to the user.
type Sink interface {
	Deliver(ctx context.Context, ev dialog.Event, reply dialog.Reply) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev dialog.Event, reply dialog.Reply) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, ev dialog.Event, reply dialog.Reply) error {
	return f(ctx, ev, reply)
}

// Options configures a Dispatcher.
type Options struct {
	MaxConcurrent int
	TurnTimeout   time.Duration
}

// Dispatcher queues events per user and drains each queue on its own goroutine.
type Dispatcher struct {
	handler Handler
	sink    Sink
	logger  common.Logger
	sem     *semaphore.Weighted
	queues  map[int64][]dialog.Event
	wg      sync.WaitGroup
	timeout time.Duration
	mu      sync.Mutex
}

// New creates a dispatcher.
func New(handler Handler, sink Sink, logger common.Logger, opts Options) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 16
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &Dispatcher{
		handler: handler,
		sink:    sink,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		queues:  make(map[int64][]dialog.Event),
		timeout: opts.TurnTimeout,
	}
}

// Dispatch enqueues an event. Events of one user are handled in arrival order.
func (d *Dispatcher) Dispatch(ctx context.Context, ev dialog.Event) {
	d.mu.Lock()
	queue, running := d.queues[ev.UserID]
	d.queues[ev.UserID] = append(queue, ev)
	d.mu.Unlock()

	if running {
		return
	}

	d.wg.Add(1)
	go d.drain(ctx, ev.UserID)
}

// Wait blocks until every queued event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// drain handles a user's queue until it is empty, then forgets the user.
func (d *Dispatcher) drain(ctx context.Context, userID int64) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		ev := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		d.run(ctx, ev)
	}
}

func (d *Dispatcher) run(ctx context.Context, ev dialog.Event) {
	logger := d.logger.With(common.Fields{
		"turn_id": uuid.NewString(),
		"user_id": ev.UserID,
		"kind":    ev.Kind.String(),
	})

	if err := d.sem.Acquire(ctx, 1); err != nil {
		logger.Warn("Dropping turn, dispatcher is shutting down", common.Fields{"error": err})
		metrics.ObserveTurn(ev.Kind.String(), "dropped", 0)
		return
	}
	defer d.sem.Release(1)

	metrics.TurnsInFlight.Inc()
	defer metrics.TurnsInFlight.Dec()

	start := time.Now()
	turnCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	reply, err := d.handle(turnCtx, ev)
	outcome := "ok"
	if err != nil {
		outcome = common.Classify(err).String()
		logger.Error("Turn failed", common.Fields{"error": err})
		if reply.Text == "" && !reply.HasChooser() {
			reply = dialog.Reply{Text: common.UserMessage(err, common.DefaultUserMessage)}
		}
	}

	if reply.Text != "" || reply.HasChooser() {
		if sinkErr := d.sink.Deliver(turnCtx, ev, reply); sinkErr != nil {
			outcome = "undelivered"
			logger.Error("Failed to deliver reply", common.Fields{"error": sinkErr})
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveTurn(ev.Kind.String(), outcome, elapsed)
	logger.Debug("Turn handled", common.Fields{"outcome": outcome, "duration": elapsed})
}

// handle shields the dispatcher from panics inside a turn.
func (d *Dispatcher) handle(ctx context.Context, ev dialog.Event) (reply dialog.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply = dialog.Reply{}
			err = common.NewUserError(common.DefaultUserMessage, fmt.Errorf("turn panicked: %v", r))
		}
	}()
	return d.handler.Handle(ctx, ev)
}
