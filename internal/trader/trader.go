package trader

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/execution"
	"github.com/meridian-lab/meridian-trading/internal/execution/database"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// Strategy is a unit of trading logic owned by the trader. Callbacks run on
// the engine's processing task and must not block.
type Strategy interface {
	ID() types.StrategyID

	OnStart(ctx StrategyContext) error
	OnStop() error
	OnEvent(evt messaging.Event)

	// SaveState returns the strategy's durable state map; LoadState restores
	// it. An empty map means a cold start.
	SaveState() map[string]string
	LoadState(state map[string]string)
}

// StrategyContext is what a strategy may touch: command submission and
// snapshot reads, never the engine internals.
type StrategyContext interface {
	Execute(cmd messaging.Command) error
	Cache() *execution.StateCache
	Clock() types.Clock
}

// Trader owns the strategy set and their state round-trips through the
// execution database.
type Trader struct {
	traderID types.TraderID
	engine   execution.Engine
	db       database.Database
	clock    types.Clock
	log      *logger.Logger

	mu         sync.Mutex
	strategies []Strategy
	subscribed map[types.StrategyID]bool
	running    bool
}

// New returns a trader with no strategies attached.
func New(traderID types.TraderID, engine execution.Engine, db database.Database,
	clock types.Clock, log *logger.Logger,
) *Trader {
	return &Trader{
		traderID:   traderID,
		engine:     engine,
		db:         db,
		clock:      clock,
		log:        log,
		subscribed: make(map[types.StrategyID]bool),
	}
}

// AddStrategy attaches a strategy. Only legal before Start.
func (t *Trader) AddStrategy(s Strategy) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return errors.New(errors.ErrCodeInvalidLifecycleState,
			"trader: cannot add strategies while running")
	}

	for _, existing := range t.strategies {
		if existing.ID() == s.ID() {
			return errors.Newf(errors.ErrCodeInvalidIdentifier,
				"trader: duplicate strategy id %s", s.ID())
		}
	}

	t.strategies = append(t.strategies, s)

	return nil
}

// StrategyIDs returns the ids of the attached strategies.
func (t *Trader) StrategyIDs() []types.StrategyID {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]types.StrategyID, len(t.strategies))
	for i, s := range t.strategies {
		ids[i] = s.ID()
	}

	return ids
}

// Load restores each strategy's saved state from the database. With a bypass
// backend every strategy cold-starts.
func (t *Trader) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.strategies {
		state, err := t.db.LoadStrategyState(ctx, s.ID())
		if err != nil {
			return err
		}

		if len(state) == 0 {
			t.log.Info("strategy cold start", zap.String("strategy_id", s.ID().String()))

			continue
		}

		s.LoadState(state)
		t.log.Info("strategy state restored",
			zap.String("strategy_id", s.ID().String()),
			zap.Int("keys", len(state)))
	}

	return nil
}

// Save writes each strategy's state map to the database.
func (t *Trader) Save(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.strategies {
		if err := t.db.SaveStrategyState(ctx, s.ID(), s.SaveState()); err != nil {
			return err
		}
	}

	return nil
}

// Start subscribes every strategy to the engine's event stream and invokes
// OnStart.
func (t *Trader) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return errors.New(errors.ErrCodeInvalidLifecycleState, "trader: already started")
	}

	sctx := &strategyContext{engine: t.engine, clock: t.clock}

	for _, s := range t.strategies {
		strategy := s

		// A retried Start after a failed one must not subscribe twice.
		if !t.subscribed[strategy.ID()] {
			t.engine.SubscribeEvents(func(evt messaging.Event) {
				strategy.OnEvent(evt)
			})
			t.subscribed[strategy.ID()] = true
		}

		if err := strategy.OnStart(sctx); err != nil {
			return errors.Wrapf(errors.ErrCodeHandlerFailed, err,
				"trader: strategy %s failed to start", strategy.ID())
		}
	}

	t.running = true
	t.log.Info("trader started",
		zap.String("trader_id", t.traderID.String()),
		zap.Int("strategies", len(t.strategies)))

	return nil
}

// Stop invokes OnStop on every strategy. A failing strategy is logged and the
// rest still stop.
func (t *Trader) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return errors.New(errors.ErrCodeInvalidLifecycleState, "trader: not running")
	}

	for _, s := range t.strategies {
		if err := s.OnStop(); err != nil {
			t.log.Error("strategy stop failed",
				zap.String("strategy_id", s.ID().String()),
				zap.Error(err))
		}
	}

	t.running = false
	t.log.Info("trader stopped", zap.String("trader_id", t.traderID.String()))

	return nil
}

// CheckResiduals inspects the engine's cache for orders and positions still
// open at shutdown. Residual state is reported, one warning per item, and
// returned as a residual-coded error; it never blocks shutdown.
func (t *Trader) CheckResiduals() error {
	open := t.engine.Cache().OrdersOpen()
	positions := t.engine.Cache().PositionsOpen()

	for _, order := range open {
		t.log.Warn("residual open order",
			zap.String("order_id", order.OrderID),
			zap.String("status", string(order.Status)),
			zap.String("instrument_id", order.InstrumentID))
	}

	for _, position := range positions {
		t.log.Warn("residual open position",
			zap.String("position_id", position.PositionID),
			zap.String("side", string(position.Side)),
			zap.String("quantity", position.Quantity.String()))
	}

	if len(open) > 0 || len(positions) > 0 {
		return errors.Newf(errors.ErrCodeResidualState,
			"trader: %d open orders, %d open positions at shutdown",
			len(open), len(positions))
	}

	return nil
}

// Dispose detaches the strategies.
func (t *Trader) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.strategies = nil
	t.subscribed = make(map[types.StrategyID]bool)
	t.running = false
}

type strategyContext struct {
	engine execution.Engine
	clock  types.Clock
}

func (c *strategyContext) Execute(cmd messaging.Command) error { return c.engine.Execute(cmd) }
func (c *strategyContext) Cache() *execution.StateCache        { return c.engine.Cache() }
func (c *strategyContext) Clock() types.Clock                  { return c.clock }
