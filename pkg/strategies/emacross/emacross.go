// Package emacross is an example strategy: it buys when a fast exponential
// moving average crosses above a slow one and flattens on the cross down.
// It doubles as a reference for implementing the trader.Strategy interface
// and for round-tripping strategy state across restarts.
package emacross

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/meridian-lab/meridian-trading/internal/data"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/trader"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// Config parameterizes one EMACross instance.
type Config struct {
	StrategyID   string
	TraderID     types.TraderID
	InstrumentID types.InstrumentID
	FastPeriod   int
	SlowPeriod   int
	Quantity     decimal.Decimal
}

// Strategy is the EMA-cross implementation of trader.Strategy.
type Strategy struct {
	cfg Config
	id  types.StrategyID

	mu       sync.Mutex
	sctx     trader.StrategyContext
	fast     decimal.Decimal
	slow     decimal.Decimal
	seeded   bool
	wasAbove bool
	long     bool
}

// New validates the config and returns a cold strategy.
func New(cfg Config) (*Strategy, error) {
	id, err := types.NewStrategyID(cfg.StrategyID)
	if err != nil {
		return nil, err
	}

	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= cfg.FastPeriod {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"emacross: need 0 < fast (%d) < slow (%d)", cfg.FastPeriod, cfg.SlowPeriod)
	}

	if cfg.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"emacross: quantity must be positive, got %s", cfg.Quantity)
	}

	return &Strategy{cfg: cfg, id: id}, nil
}

// ID implements trader.Strategy.
func (s *Strategy) ID() types.StrategyID { return s.id }

// OnStart implements trader.Strategy.
func (s *Strategy) OnStart(sctx trader.StrategyContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sctx = sctx

	return nil
}

// OnStop implements trader.Strategy.
func (s *Strategy) OnStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sctx = nil

	return nil
}

// OnEvent implements trader.Strategy. Fills flip the exposure flag so the
// strategy never layers orders.
func (s *Strategy) OnEvent(evt messaging.Event) {
	filled, ok := evt.(*messaging.OrderFilled)
	if !ok || filled.StrategyID != s.id {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.long = filled.Side == types.OrderSideBuy
}

// OnTick folds one quote into the moving averages and trades the crosses.
// Wire it to the data engine: dataEngine.Subscribe(instrument, s.OnTick).
func (s *Strategy) OnTick(tick data.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sctx == nil {
		return
	}

	mid := tick.Mid()

	if !s.seeded {
		s.fast, s.slow = mid, mid
		s.seeded = true

		return
	}

	s.fast = ema(s.fast, mid, s.cfg.FastPeriod)
	s.slow = ema(s.slow, mid, s.cfg.SlowPeriod)

	above := s.fast.GreaterThan(s.slow)
	defer func() { s.wasAbove = above }()

	switch {
	case above && !s.wasAbove && !s.long:
		s.submit(types.OrderSideBuy, tick)
	case !above && s.wasAbove && s.long:
		s.submit(types.OrderSideSell, tick)
	}
}

func (s *Strategy) submit(side types.OrderSide, tick data.Tick) {
	cmd := messaging.NewSubmitOrder(s.cfg.TraderID, s.id, s.cfg.InstrumentID,
		fmt.Sprintf("O-%s", uuid.NewString()), side, types.OrderTypeMarket,
		s.cfg.Quantity, optional.None[decimal.Decimal](), s.sctx.Clock().Now())

	// A rejected enqueue (engine stopping) is fine to drop: the position is
	// reconciled from the cache on the next start.
	_ = s.sctx.Execute(cmd)
}

// ema folds a new sample into the average with the conventional 2/(n+1)
// smoothing factor.
func ema(prev, sample decimal.Decimal, period int) decimal.Decimal {
	alpha := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))

	return sample.Mul(alpha).Add(prev.Mul(decimal.NewFromInt(1).Sub(alpha)))
}

// SaveState implements trader.Strategy.
func (s *Strategy) SaveState() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		return map[string]string{}
	}

	return map[string]string{
		"fast":      s.fast.String(),
		"slow":      s.slow.String(),
		"was_above": fmt.Sprintf("%t", s.wasAbove),
		"long":      fmt.Sprintf("%t", s.long),
	}
}

// LoadState implements trader.Strategy. Malformed values leave the strategy
// cold rather than trading on garbage.
func (s *Strategy) LoadState(state map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fast, errFast := decimal.NewFromString(state["fast"])
	slow, errSlow := decimal.NewFromString(state["slow"])

	if errFast != nil || errSlow != nil {
		return
	}

	s.fast = fast
	s.slow = slow
	s.seeded = true
	s.wasAbove = state["was_above"] == "true"
	s.long = state["long"] == "true"
}

var _ trader.Strategy = (*Strategy)(nil)
