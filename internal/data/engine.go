package data

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/execution"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// Tick is a top-of-book quote snapshot for one instrument.
type Tick struct {
	InstrumentID types.InstrumentID
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	Ts           time.Time
}

// Mid returns the quote midpoint.
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Engine fans ticks out to subscribers on a single processing task. It shares
// the execution engine's lifecycle contract so the node can start, stop and
// join both uniformly.
type Engine struct {
	log   *logger.Logger
	queue *messaging.Queue[Tick]

	mu        sync.Mutex
	state     execution.State
	accepting bool
	cancelRun context.CancelFunc
	runDone   chan struct{}

	procMu    sync.Mutex
	procCond  *sync.Cond
	processed uint64

	subsMu sync.RWMutex
	subs   map[string][]func(Tick)
}

// NewEngine returns a data engine in the Created state.
func NewEngine(log *logger.Logger) *Engine {
	e := &Engine{
		log:     log,
		queue:   messaging.NewQueue[Tick](),
		state:   execution.StateCreated,
		runDone: make(chan struct{}),
		subs:    make(map[string][]func(Tick)),
	}
	e.procCond = sync.NewCond(&e.procMu)

	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() execution.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// QSize returns the number of ticks waiting in the queue.
func (e *Engine) QSize() int { return e.queue.Len() }

// RunTask returns a channel closed when the current run's processing
// goroutine exits. Each Start arms a fresh channel.
func (e *Engine) RunTask() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.runDone
}

// ShutdownTask returns a channel closed once every tick enqueued as of the
// call has been dispatched, or once the processing goroutine has exited and
// nothing further can be dispatched.
func (e *Engine) ShutdownTask() <-chan struct{} {
	target := e.queue.Pushed()
	runDone := e.RunTask()
	done := make(chan struct{})

	go func() {
		e.procMu.Lock()
		for e.processed < target {
			select {
			case <-runDone:
				e.procMu.Unlock()
				close(done)

				return
			default:
			}

			e.procCond.Wait()
		}
		e.procMu.Unlock()
		close(done)
	}()

	return done
}

// Subscribe registers a callback for one instrument's ticks. Callbacks run on
// the processing task and must not block.
func (e *Engine) Subscribe(instrumentID types.InstrumentID, fn func(Tick)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	key := instrumentID.String()
	e.subs[key] = append(e.subs[key], fn)
}

// Publish enqueues a tick for dispatch. The accepting check and the push stay
// under one lock so an accepted tick is always reached by the drain.
func (e *Engine) Publish(tick Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.accepting {
		return errors.Newf(errors.ErrCodeNotAccepting,
			"data engine: not accepting ticks, dropped %s", tick.InstrumentID)
	}

	e.queue.Push(tick)

	return nil
}

// Start launches the processing goroutine. A stopped engine restarts with a
// fresh run task.
func (e *Engine) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != execution.StateCreated && e.state != execution.StateStopped {
		return errors.Newf(errors.ErrCodeInvalidLifecycleState,
			"data engine: cannot start from %s", e.state)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancelRun = cancel

	if e.state == execution.StateStopped {
		e.runDone = make(chan struct{})
	}

	e.state = execution.StateRunning
	e.accepting = true

	go e.run(runCtx, e.runDone)

	e.log.Info("data engine running")

	return nil
}

// Stop rejects new ticks and drains the backlog.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != execution.StateRunning {
		return errors.Newf(errors.ErrCodeInvalidLifecycleState,
			"data engine: cannot stop from %s", e.state)
	}

	e.state = execution.StateStopping
	e.accepting = false
	e.cancelRun()

	e.log.Info("data engine stopping", zap.Int("queued", e.queue.Len()))

	return nil
}

// Dispose marks the engine disposed. Calling it twice is a no-op.
func (e *Engine) Dispose(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case execution.StateDisposed:
		return nil
	case execution.StateStopped, execution.StateCreated:
	default:
		return errors.Newf(errors.ErrCodeInvalidLifecycleState,
			"data engine: cannot dispose from %s", e.state)
	}

	e.state = execution.StateDisposed

	return nil
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer func() {
		close(done)

		e.procMu.Lock()
		e.procCond.Broadcast()
		e.procMu.Unlock()
	}()

	for {
		tick, err := e.queue.Pop(ctx)
		if err != nil {
			break
		}

		e.dispatch(tick)
	}

	for {
		tick, ok := e.queue.TryPop()
		if !ok {
			break
		}

		e.dispatch(tick)
	}

	e.mu.Lock()
	e.state = execution.StateStopped
	e.mu.Unlock()

	e.log.Info("data engine stopped", zap.Uint64("dispatched", e.queue.Popped()))
}

func (e *Engine) dispatch(tick Tick) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tick subscriber panicked",
				zap.String("instrument_id", tick.InstrumentID.String()),
				zap.Any("panic", r))
		}

		e.procMu.Lock()
		e.processed++
		e.procMu.Unlock()
		e.procCond.Broadcast()
	}()

	e.subsMu.RLock()
	subs := e.subs[tick.InstrumentID.String()]
	e.subsMu.RUnlock()

	for _, fn := range subs {
		fn(tick)
	}
}
