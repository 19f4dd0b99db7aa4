package execution

import (
	"context"
	"sync"

	"github.com/meridian-lab/meridian-trading/internal/execution/database"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// StateCache holds the engine's working view of orders, positions and the
// account. Entries are stored by value: the engine loop reads a copy, mutates
// it and puts it back, so concurrent snapshot readers never observe a partial
// update.
type StateCache struct {
	mu        sync.RWMutex
	orders    map[string]types.Order
	positions map[string]types.Position
	account   *types.Account
}

// NewStateCache returns an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{
		orders:    make(map[string]types.Order),
		positions: make(map[string]types.Position),
	}
}

// LoadFrom replaces the cache contents with the database snapshot. Used on
// startup to recover state written by a previous run against a durable
// backend.
func (c *StateCache) LoadFrom(ctx context.Context, db database.Database) error {
	orders, err := db.LoadOrders(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeReadFailed, "state cache: load orders", err)
	}

	positions, err := db.LoadPositions(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeReadFailed, "state cache: load positions", err)
	}

	account, err := db.LoadAccount(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeReadFailed, "state cache: load account", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.orders = make(map[string]types.Order, len(orders))
	for id, order := range orders {
		c.orders[id] = *order
	}

	c.positions = make(map[string]types.Position, len(positions))
	for id, position := range positions {
		c.positions[id] = *position
	}

	c.account = account

	return nil
}

// PutOrder stores or replaces an order snapshot.
func (c *StateCache) PutOrder(order types.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.orders[order.OrderID] = order
}

// Order returns a copy of the order, if known.
func (c *StateCache) Order(orderID string) (types.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order, ok := c.orders[orderID]

	return order, ok
}

// OrdersOpen returns copies of every order that is still working.
func (c *StateCache) OrdersOpen() []types.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var open []types.Order

	for _, order := range c.orders {
		if order.IsOpen() {
			open = append(open, order)
		}
	}

	return open
}

// PutPosition stores or replaces a position snapshot.
func (c *StateCache) PutPosition(position types.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.positions[position.PositionID] = position
}

// Position returns a copy of the position, if known.
func (c *StateCache) Position(positionID string) (types.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	position, ok := c.positions[positionID]

	return position, ok
}

// PositionsOpen returns copies of every position with exposure.
func (c *StateCache) PositionsOpen() []types.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var open []types.Position

	for _, position := range c.positions {
		if position.IsOpen() {
			open = append(open, position)
		}
	}

	return open
}

// PutAccount stores or replaces the account snapshot.
func (c *StateCache) PutAccount(account types.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.account = &account
}

// Account returns a copy of the account snapshot, if one has been received.
func (c *StateCache) Account() (types.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.account == nil {
		return types.Account{}, false
	}

	return *c.account, true
}
