// Package database provides the persistence abstraction for execution state:
// orders, positions, accounts, strategy state, and the append-only log of
// processed message ids. Two implementations exist: a durable redis-backed
// store and a non-durable in-memory bypass.
package database

import (
	"context"
	"time"

	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
)

// MessageRecord is one entry of the append-only processed-message log. The
// sequence of records for a trader reflects exactly the prefix of messages the
// engine has fully processed, in processing order.
type MessageRecord struct {
	MessageID string    `json:"message_id"`
	Category  string    `json:"category"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageRecord builds the log entry for a processed message.
func NewMessageRecord(msg messaging.Message) MessageRecord {
	return MessageRecord{
		MessageID: msg.ID().String(),
		Category:  string(msg.Category()),
		Type:      msg.Type(),
		Timestamp: msg.Timestamp(),
	}
}

// Database is the execution database contract. All writes are upserts keyed
// by entity id, so retrying a write with the same final state is idempotent.
// Blocking operations take a context; the bypass implementation never touches
// the network and never fails.
type Database interface {
	// AddOrder upserts a new order snapshot.
	AddOrder(ctx context.Context, order *types.Order) error

	// UpdateOrder upserts an existing order snapshot.
	UpdateOrder(ctx context.Context, order *types.Order) error

	// AddPosition upserts a new position snapshot.
	AddPosition(ctx context.Context, position *types.Position) error

	// UpdatePosition upserts an existing position snapshot.
	UpdatePosition(ctx context.Context, position *types.Position) error

	// UpdateAccount upserts the account snapshot.
	UpdateAccount(ctx context.Context, account *types.Account) error

	// AppendMessage appends a processed message to the trader's history log.
	AppendMessage(ctx context.Context, msg messaging.Message) error

	// History returns the full processed-message log in processing order.
	History(ctx context.Context) ([]MessageRecord, error)

	// LoadOrders returns all stored order snapshots keyed by order id.
	LoadOrders(ctx context.Context) (map[string]*types.Order, error)

	// LoadPositions returns all stored position snapshots keyed by position id.
	LoadPositions(ctx context.Context) (map[string]*types.Position, error)

	// LoadAccount returns the stored account snapshot, or nil if none exists.
	LoadAccount(ctx context.Context) (*types.Account, error)

	// LoadStrategyState returns previously saved strategy state, or an empty
	// map if none exists. "Not found" is never a hard error.
	LoadStrategyState(ctx context.Context, strategyID types.StrategyID) (map[string]string, error)

	// SaveStrategyState overwrites the saved state for a strategy.
	SaveStrategyState(ctx context.Context, strategyID types.StrategyID, state map[string]string) error

	// Flush blocks until all previously accepted writes are acknowledged by
	// the underlying store.
	Flush(ctx context.Context) error

	// Close releases the connection to the underlying store.
	Close() error
}
