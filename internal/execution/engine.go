package execution

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/execution/database"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// State is the engine lifecycle state.
type State string

const (
	StateCreated  State = "CREATED"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
	StateDisposed State = "DISPOSED"
)

// Engine processes trading commands and events on a single logical task,
// persisting each message before the next one is dequeued.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
	Dispose(ctx context.Context) error

	Execute(cmd messaging.Command) error
	Process(evt messaging.Event) error
	SubscribeEvents(fn func(messaging.Event))

	RunTask() <-chan struct{}
	ShutdownTask() <-chan struct{}
	QSize() int
	ErrorCount() uint64
	State() State
	Cache() *StateCache
}

type handlerFunc func(msg messaging.Message) error

// LiveEngine is the production Engine. A single goroutine drains the queue in
// strict FIFO order; handlers never call each other directly but re-enqueue
// any messages they generate, so recursive work keeps queue order.
type LiveEngine struct {
	traderID types.TraderID
	clock    types.Clock
	db       database.Database
	cache    *StateCache
	client   ExecutionClient
	log      *logger.Logger

	queue    *messaging.Queue[messaging.Message]
	handlers map[string]handlerFunc

	mu        sync.Mutex
	state     State
	accepting bool
	cancelRun context.CancelFunc
	runDone   chan struct{}

	procMu    sync.Mutex
	procCond  *sync.Cond
	processed uint64

	errMu     sync.Mutex
	errCount  uint64
	subsMu    sync.RWMutex
	eventSubs []func(messaging.Event)
}

// NewLiveEngine builds an engine over the given database and venue client
// factory. The client factory receives the engine's event sink so venue
// responses are re-enqueued rather than handled inline.
func NewLiveEngine(traderID types.TraderID, clock types.Clock, db database.Database,
	newClient func(EventSink) ExecutionClient, log *logger.Logger,
) *LiveEngine {
	e := &LiveEngine{
		traderID: traderID,
		clock:    clock,
		db:       db,
		cache:    NewStateCache(),
		log:      log,
		queue:    messaging.NewQueue[messaging.Message](),
		state:    StateCreated,
		runDone:  make(chan struct{}),
	}
	e.procCond = sync.NewCond(&e.procMu)
	e.client = newClient(e.enqueueEvent)

	e.handlers = map[string]handlerFunc{
		messaging.TypeSubmitOrder:    e.handleSubmitOrder,
		messaging.TypeCancelOrder:    e.handleCancelOrder,
		messaging.TypeModifyOrder:    e.handleModifyOrder,
		messaging.TypeAccountInquiry: e.handleAccountInquiry,

		messaging.TypeOrderSubmitted:  e.handleOrderSubmitted,
		messaging.TypeOrderAccepted:   e.handleOrderAccepted,
		messaging.TypeOrderRejected:   e.handleOrderRejected,
		messaging.TypeOrderCancelled:  e.handleOrderCancelled,
		messaging.TypeOrderModified:   e.handleOrderModified,
		messaging.TypeOrderFilled:     e.handleOrderFilled,
		messaging.TypePositionOpened:  e.handlePositionEvent,
		messaging.TypePositionChanged: e.handlePositionEvent,
		messaging.TypePositionClosed:  e.handlePositionEvent,
		messaging.TypeAccountState:    e.handleAccountState,
	}

	return e
}

// Cache exposes the engine's state cache for snapshot readers.
func (e *LiveEngine) Cache() *StateCache { return e.cache }

// State returns the current lifecycle state.
func (e *LiveEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// ErrorCount returns the number of handler and persistence failures absorbed
// since start.
func (e *LiveEngine) ErrorCount() uint64 {
	e.errMu.Lock()
	defer e.errMu.Unlock()

	return e.errCount
}

// QSize returns the number of messages waiting in the queue.
func (e *LiveEngine) QSize() int { return e.queue.Len() }

// RunTask returns a channel closed when the current run's processing
// goroutine exits. Each Start arms a fresh channel.
func (e *LiveEngine) RunTask() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.runDone
}

// ShutdownTask returns a channel closed once every message enqueued as of the
// call has been processed and persisted, or once the processing goroutine has
// exited and nothing further can be processed.
func (e *LiveEngine) ShutdownTask() <-chan struct{} {
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

// SubscribeEvents registers a callback invoked on the processing task for
// every event the engine routes. Callbacks must not block.
func (e *LiveEngine) SubscribeEvents(fn func(messaging.Event)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	e.eventSubs = append(e.eventSubs, fn)
}

// Start transitions Created or Stopped -> Running, recovers cached state from
// the database, connects the venue client and launches the processing
// goroutine. A stopped engine restarts with a fresh run task.
func (e *LiveEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCreated && e.state != StateStopped {
		return errors.Newf(errors.ErrCodeInvalidLifecycleState,
			"execution engine: cannot start from %s", e.state)
	}

	if err := e.cache.LoadFrom(ctx, e.db); err != nil {
		return err
	}

	if err := e.client.Connect(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancelRun = cancel

	// On a restart the previous run's channel is already closed; arm a new
	// one. Handles taken before the first Start stay valid.
	if e.state == StateStopped {
		e.runDone = make(chan struct{})
	}

	e.state = StateRunning
	e.accepting = true

	go e.run(runCtx, e.runDone)

	e.log.Info("execution engine running",
		zap.String("trader_id", e.traderID.String()),
		zap.Int("recovered_open_orders", len(e.cache.OrdersOpen())),
		zap.Int("recovered_open_positions", len(e.cache.PositionsOpen())))

	return nil
}

// Stop transitions Running -> Stopping. New external enqueues are rejected
// from this point; everything already queued, including messages handlers
// generate while draining, is still processed and persisted.
func (e *LiveEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return errors.Newf(errors.ErrCodeInvalidLifecycleState,
			"execution engine: cannot stop from %s", e.state)
	}

	e.state = StateStopping
	e.accepting = false
	e.cancelRun()

	e.log.Info("execution engine stopping", zap.Int("queued", e.queue.Len()))

	return nil
}

// Dispose releases the venue connection. Only legal once the processing
// goroutine has exited; calling it twice is a no-op.
func (e *LiveEngine) Dispose(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateDisposed:
		return nil
	case StateStopped, StateCreated:
	default:
		return errors.Newf(errors.ErrCodeInvalidLifecycleState,
			"execution engine: cannot dispose from %s", e.state)
	}

	e.state = StateDisposed

	return e.client.Disconnect(ctx)
}

// Execute enqueues a command. Commands carrying a Validate method are checked
// before they enter the queue.
func (e *LiveEngine) Execute(cmd messaging.Command) error {
	if v, ok := cmd.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	return e.enqueueExternal(cmd)
}

// Process enqueues an event received from outside the engine.
func (e *LiveEngine) Process(evt messaging.Event) error {
	return e.enqueueExternal(evt)
}

func (e *LiveEngine) enqueueExternal(msg messaging.Message) error {
	// The accepting check and the push stay under one lock: a message either
	// lands in the queue before Stop flips the gate, where the drain is
	// guaranteed to reach it, or the caller is rejected.
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.accepting {
		return errors.Newf(errors.ErrCodeNotAccepting,
			"execution engine: not accepting messages, dropped %s", msg.Type())
	}

	e.queue.Push(msg)

	return nil
}

// enqueueEvent is the internal sink for handler- and client-generated events.
// It bypasses the accepting gate so that messages generated while draining are
// never lost.
func (e *LiveEngine) enqueueEvent(evt messaging.Event) {
	e.queue.Push(evt)
}

// run is the engine's single processing task. It pops until the run context
// is cancelled, then drains whatever remains, including messages the drain
// itself generates. The final broadcast releases shutdown waiters whose
// target can no longer be reached.
func (e *LiveEngine) run(ctx context.Context, done chan struct{}) {
	defer func() {
		close(done)

		e.procMu.Lock()
		e.procCond.Broadcast()
		e.procMu.Unlock()
	}()

	for {
		msg, err := e.queue.Pop(ctx)
		if err != nil {
			break
		}

		e.process(msg)
	}

	for {
		msg, ok := e.queue.TryPop()
		if !ok {
			break
		}

		e.process(msg)
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	e.log.Info("execution engine stopped",
		zap.Uint64("processed", e.queue.Popped()),
		zap.Uint64("errors", e.ErrorCount()))
}

// process runs exactly one message end to end: dispatch, then persist the
// message record, then mark it processed. Nothing is dequeued before the
// persistence write for the previous message has returned.
func (e *LiveEngine) process(msg messaging.Message) {
	defer e.markProcessed()

	handler, ok := e.handlers[msg.Type()]
	if !ok {
		e.log.Warn("unroutable message dropped",
			zap.String("type", msg.Type()),
			zap.String("message_id", msg.ID().String()))

		return
	}

	if err := e.dispatch(handler, msg); err != nil {
		e.recordError(err, msg)
	}

	// Persistence runs on the processing task even during drain, after the run
	// context is cancelled, so it gets its own context.
	if err := e.db.AppendMessage(context.Background(), msg); err != nil {
		e.recordError(errors.Wrapf(errors.ErrCodeWriteRejected, err,
			"append %s to history", msg.Type()), msg)
	}

	if evt, ok := msg.(messaging.Event); ok {
		e.notifySubscribers(evt)
	}
}

// dispatch invokes the handler with a recover boundary. A panicking handler
// poisons only its own message.
func (e *LiveEngine) dispatch(handler handlerFunc, msg messaging.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeHandlerPanic,
				"handler for %s panicked: %v", msg.Type(), r)
		}
	}()

	return handler(msg)
}

func (e *LiveEngine) recordError(err error, msg messaging.Message) {
	e.errMu.Lock()
	e.errCount++
	e.errMu.Unlock()

	e.log.Error("message handling failed",
		zap.String("type", msg.Type()),
		zap.String("message_id", msg.ID().String()),
		zap.Error(err))
}

func (e *LiveEngine) markProcessed() {
	e.procMu.Lock()
	e.processed++
	e.procMu.Unlock()
	e.procCond.Broadcast()
}

func (e *LiveEngine) notifySubscribers(evt messaging.Event) {
	e.subsMu.RLock()
	subs := e.eventSubs
	e.subsMu.RUnlock()

	for _, fn := range subs {
		fn(evt)
	}
}

// persistOrder writes the order through to the cache and the database.
func (e *LiveEngine) persistOrder(order types.Order) error {
	e.cache.PutOrder(order)

	if err := e.db.UpdateOrder(context.Background(), &order); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteRejected, err, "persist order %s", order.OrderID)
	}

	return nil
}

// persistPosition writes the position through to the cache and the database.
func (e *LiveEngine) persistPosition(position types.Position) error {
	e.cache.PutPosition(position)

	if err := e.db.UpdatePosition(context.Background(), &position); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteRejected, err, "persist position %s", position.PositionID)
	}

	return nil
}

func (e *LiveEngine) handleSubmitOrder(msg messaging.Message) error {
	cmd := msg.(*messaging.SubmitOrder)

	if _, exists := e.cache.Order(cmd.OrderID); exists {
		return errors.Newf(errors.ErrCodeInvalidOrder, "duplicate order id %s", cmd.OrderID)
	}

	order := types.NewOrder(cmd.OrderID, cmd.TraderID, cmd.StrategyID, cmd.InstrumentID,
		cmd.Side, cmd.OrderType, cmd.Quantity, cmd.Price, e.clock.Now())

	e.cache.PutOrder(*order)

	if err := e.db.AddOrder(context.Background(), order); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteRejected, err, "persist order %s", order.OrderID)
	}

	return e.client.SubmitOrder(context.Background(), cmd)
}

func (e *LiveEngine) handleCancelOrder(msg messaging.Message) error {
	cmd := msg.(*messaging.CancelOrder)

	order, ok := e.cache.Order(cmd.OrderID)
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidOrder, "cancel: unknown order %s", cmd.OrderID)
	}

	if order.IsClosed() {
		return errors.Newf(errors.ErrCodeInvalidOrder,
			"cancel: order %s already closed (%s)", cmd.OrderID, order.Status)
	}

	return e.client.CancelOrder(context.Background(), cmd)
}

func (e *LiveEngine) handleModifyOrder(msg messaging.Message) error {
	cmd := msg.(*messaging.ModifyOrder)

	order, ok := e.cache.Order(cmd.OrderID)
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidOrder, "modify: unknown order %s", cmd.OrderID)
	}

	if order.IsClosed() {
		return errors.Newf(errors.ErrCodeInvalidOrder,
			"modify: order %s already closed (%s)", cmd.OrderID, order.Status)
	}

	if cmd.NewQuantity.IsSome() && cmd.NewQuantity.Unwrap().LessThan(order.FilledQty) {
		return errors.Newf(errors.ErrCodeInvalidCommand,
			"modify: order %s new quantity %s below filled %s",
			cmd.OrderID, cmd.NewQuantity.Unwrap(), order.FilledQty)
	}

	return e.client.ModifyOrder(context.Background(), cmd)
}

func (e *LiveEngine) handleAccountInquiry(msg messaging.Message) error {
	cmd := msg.(*messaging.AccountInquiry)

	return e.client.AccountInquiry(context.Background(), cmd)
}

// withOrder applies fn to the cached order and persists the result.
func (e *LiveEngine) withOrder(orderID string, fn func(*types.Order) error) error {
	order, ok := e.cache.Order(orderID)
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidOrder, "event for unknown order %s", orderID)
	}

	if err := fn(&order); err != nil {
		return err
	}

	return e.persistOrder(order)
}

func (e *LiveEngine) handleOrderSubmitted(msg messaging.Message) error {
	evt := msg.(*messaging.OrderSubmitted)

	return e.withOrder(evt.OrderID, func(o *types.Order) error {
		return o.ApplySubmitted(evt.Timestamp())
	})
}

func (e *LiveEngine) handleOrderAccepted(msg messaging.Message) error {
	evt := msg.(*messaging.OrderAccepted)

	return e.withOrder(evt.OrderID, func(o *types.Order) error {
		return o.ApplyAccepted(evt.Timestamp())
	})
}

func (e *LiveEngine) handleOrderRejected(msg messaging.Message) error {
	evt := msg.(*messaging.OrderRejected)

	return e.withOrder(evt.OrderID, func(o *types.Order) error {
		return o.ApplyRejected(evt.Reason, evt.Timestamp())
	})
}

func (e *LiveEngine) handleOrderCancelled(msg messaging.Message) error {
	evt := msg.(*messaging.OrderCancelled)

	return e.withOrder(evt.OrderID, func(o *types.Order) error {
		return o.ApplyCancelled(evt.Timestamp())
	})
}

func (e *LiveEngine) handleOrderModified(msg messaging.Message) error {
	evt := msg.(*messaging.OrderModified)

	return e.withOrder(evt.OrderID, func(o *types.Order) error {
		if evt.NewQuantity.IsSome() {
			o.Quantity = evt.NewQuantity.Unwrap()
		}

		if evt.NewPrice.IsSome() {
			o.Price = evt.NewPrice
		}

		o.UpdateTime = evt.Timestamp()

		return nil
	})
}

// positionID derives the deterministic position key for an instrument worked
// by a strategy.
func positionID(instrumentID types.InstrumentID, strategyID types.StrategyID) string {
	return fmt.Sprintf("P-%s-%s", instrumentID, strategyID)
}

// handleOrderFilled folds the fill into the order and its position, then
// re-enqueues the resulting position event. The position event is NOT handled
// inline: it joins the back of the queue behind anything already waiting.
func (e *LiveEngine) handleOrderFilled(msg messaging.Message) error {
	evt := msg.(*messaging.OrderFilled)

	if err := e.withOrder(evt.OrderID, func(o *types.Order) error {
		return o.ApplyFilled(evt.FillQty, evt.FillPrice, evt.Timestamp())
	}); err != nil {
		return err
	}

	pid := positionID(evt.InstrumentID, evt.StrategyID)

	position, ok := e.cache.Position(pid)
	if !ok {
		position = *types.NewPosition(pid, evt.TraderID, evt.StrategyID, evt.InstrumentID, evt.Timestamp())
	}

	wasOpen := position.IsOpen()
	position.ApplyFill(evt.Side, evt.FillQty, evt.FillPrice, evt.Timestamp())

	if err := e.persistPosition(position); err != nil {
		return err
	}

	switch {
	case !wasOpen && position.IsOpen():
		e.enqueueEvent(messaging.NewPositionOpened(evt.TraderID, evt.StrategyID, evt.InstrumentID,
			pid, position.Side, position.Quantity, evt.Timestamp()))
	case wasOpen && !position.IsOpen():
		e.enqueueEvent(messaging.NewPositionClosed(evt.TraderID, pid, position.RealizedPnL, evt.Timestamp()))
	case wasOpen:
		e.enqueueEvent(messaging.NewPositionChanged(evt.TraderID, pid, position.Side,
			position.Quantity, evt.Timestamp()))
	}

	return nil
}

// handlePositionEvent routes position lifecycle events to subscribers; the
// cache was already updated by the fill that generated them.
func (e *LiveEngine) handlePositionEvent(msg messaging.Message) error {
	e.log.Debug("position event",
		zap.String("type", msg.Type()),
		zap.String("message_id", msg.ID().String()))

	return nil
}

func (e *LiveEngine) handleAccountState(msg messaging.Message) error {
	evt := msg.(*messaging.AccountState)

	account, ok := e.cache.Account()
	if !ok {
		account = *types.NewAccount(evt.TraderID, evt.Venue, evt.Currency, evt.Balance, evt.Timestamp())
	}

	account.ApplyState(evt.Balance, evt.MarginUsed, evt.Timestamp())
	e.cache.PutAccount(account)

	if err := e.db.UpdateAccount(context.Background(), &account); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteRejected, err, "persist account")
	}

	return nil
}

var _ Engine = (*LiveEngine)(nil)
