package database

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
)

// BypassDatabase is the non-durable execution database. It keeps everything in
// process memory and never fails, but it never claims to have persisted
// anything: strategy-state saves are no-ops, flush is a no-op, and all state is
// lost with the instance. It exists for single-run and backtest use and must
// not be deployed where crash recovery is required.
type BypassDatabase struct {
	mu        sync.RWMutex
	traderID  types.TraderID
	log       *logger.Logger
	orders    map[string]types.Order
	positions map[string]types.Position
	account   *types.Account
	history   []MessageRecord
}

// NewBypassDatabase returns an empty in-memory database for one trader.
func NewBypassDatabase(traderID types.TraderID, log *logger.Logger) *BypassDatabase {
	log.Warn("execution database running in bypass mode, state will not survive this process",
		zap.String("trader_id", traderID.String()))

	return &BypassDatabase{
		traderID:  traderID,
		log:       log,
		orders:    make(map[string]types.Order),
		positions: make(map[string]types.Position),
		account:   nil,
		history:   nil,
	}
}

// AddOrder implements Database.
func (d *BypassDatabase) AddOrder(_ context.Context, order *types.Order) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.orders[order.OrderID] = *order

	return nil
}

// UpdateOrder implements Database.
func (d *BypassDatabase) UpdateOrder(ctx context.Context, order *types.Order) error {
	return d.AddOrder(ctx, order)
}

// AddPosition implements Database.
func (d *BypassDatabase) AddPosition(_ context.Context, position *types.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.positions[position.PositionID] = *position

	return nil
}

// UpdatePosition implements Database.
func (d *BypassDatabase) UpdatePosition(ctx context.Context, position *types.Position) error {
	return d.AddPosition(ctx, position)
}

// UpdateAccount implements Database.
func (d *BypassDatabase) UpdateAccount(_ context.Context, account *types.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := *account
	d.account = &snapshot

	return nil
}

// AppendMessage implements Database.
func (d *BypassDatabase) AppendMessage(_ context.Context, msg messaging.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, NewMessageRecord(msg))

	return nil
}

// History implements Database.
func (d *BypassDatabase) History(_ context.Context) ([]MessageRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	records := make([]MessageRecord, len(d.history))
	copy(records, d.history)

	return records, nil
}

// LoadOrders implements Database.
func (d *BypassDatabase) LoadOrders(_ context.Context) (map[string]*types.Order, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	orders := make(map[string]*types.Order, len(d.orders))

	for id, order := range d.orders {
		snapshot := order
		orders[id] = &snapshot
	}

	return orders, nil
}

// LoadPositions implements Database.
func (d *BypassDatabase) LoadPositions(_ context.Context) (map[string]*types.Position, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	positions := make(map[string]*types.Position, len(d.positions))

	for id, position := range d.positions {
		snapshot := position
		positions[id] = &snapshot
	}

	return positions, nil
}

// LoadAccount implements Database.
func (d *BypassDatabase) LoadAccount(_ context.Context) (*types.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.account == nil {
		return nil, nil
	}

	snapshot := *d.account

	return &snapshot, nil
}

// LoadStrategyState implements Database. The bypass backend never persists
// strategy state, so loads always return empty.
func (d *BypassDatabase) LoadStrategyState(_ context.Context, _ types.StrategyID) (map[string]string, error) {
	return map[string]string{}, nil
}

// SaveStrategyState implements Database as a no-op: the bypass backend never
// claims to have persisted anything.
func (d *BypassDatabase) SaveStrategyState(_ context.Context, _ types.StrategyID, _ map[string]string) error {
	return nil
}

// Flush implements Database as a no-op.
func (d *BypassDatabase) Flush(_ context.Context) error {
	return nil
}

// Close implements Database.
func (d *BypassDatabase) Close() error {
	return nil
}

// Verify BypassDatabase implements the Database interface.
var _ Database = (*BypassDatabase)(nil)
