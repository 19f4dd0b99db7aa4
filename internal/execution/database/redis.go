package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// connectMaxRetries bounds the exponential backoff used to verify the
// connection at construction time.
const connectMaxRetries = 5

// RedisConfig holds the connection settings for the redis-backed database.
type RedisConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required,gt=0,lte=65535"`
}

// Addr returns the host:port dial address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisDatabase is the durable execution database. Every command is a
// synchronous round-trip: a write returns only after redis has acknowledged
// it, giving at-least-once semantics with upsert-by-id idempotence.
type RedisDatabase struct {
	client   *redis.Client
	traderID types.TraderID
	log      *logger.Logger
}

// NewRedisDatabase connects to redis, verifying reachability with an
// exponential-backoff ping, and returns the database bound to one trader's
// keyspace.
func NewRedisDatabase(ctx context.Context, cfg RedisConfig, traderID types.TraderID, log *logger.Logger) (*RedisDatabase, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr(),
	})

	ping := func() error {
		return client.Ping(ctx).Err()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectMaxRetries), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		_ = client.Close()

		return nil, errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "redis unreachable at %s", cfg.Addr())
	}

	log.Info("Execution database connected",
		zap.String("backend", "redis"),
		zap.String("addr", cfg.Addr()),
		zap.String("trader_id", traderID.String()),
	)

	return &RedisDatabase{
		client:   client,
		traderID: traderID,
		log:      log,
	}, nil
}

func (d *RedisDatabase) key(kind string) string {
	return fmt.Sprintf("trader:%s:%s", d.traderID, kind)
}

func (d *RedisDatabase) strategyKey(strategyID types.StrategyID) string {
	return fmt.Sprintf("trader:%s:strategies:%s", d.traderID, strategyID)
}

func (d *RedisDatabase) upsert(ctx context.Context, kind, id string, entity any) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeEncodingFailed, err, "encode %s %s", kind, id)
	}

	if err := d.client.HSet(ctx, d.key(kind), id, payload).Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteRejected, err, "upsert %s %s", kind, id)
	}

	return nil
}

// AddOrder implements Database.
func (d *RedisDatabase) AddOrder(ctx context.Context, order *types.Order) error {
	return d.upsert(ctx, "orders", order.OrderID, order)
}

// UpdateOrder implements Database.
func (d *RedisDatabase) UpdateOrder(ctx context.Context, order *types.Order) error {
	return d.upsert(ctx, "orders", order.OrderID, order)
}

// AddPosition implements Database.
func (d *RedisDatabase) AddPosition(ctx context.Context, position *types.Position) error {
	return d.upsert(ctx, "positions", position.PositionID, position)
}

// UpdatePosition implements Database.
func (d *RedisDatabase) UpdatePosition(ctx context.Context, position *types.Position) error {
	return d.upsert(ctx, "positions", position.PositionID, position)
}

// UpdateAccount implements Database.
func (d *RedisDatabase) UpdateAccount(ctx context.Context, account *types.Account) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEncodingFailed, "encode account", err)
	}

	if err := d.client.Set(ctx, d.key("account"), payload, 0).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeWriteRejected, "upsert account", err)
	}

	return nil
}

// AppendMessage implements Database.
func (d *RedisDatabase) AppendMessage(ctx context.Context, msg messaging.Message) error {
	payload, err := json.Marshal(NewMessageRecord(msg))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeEncodingFailed, err, "encode message %s", msg.ID())
	}

	if err := d.client.RPush(ctx, d.key("history"), payload).Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteRejected, err, "append message %s", msg.ID())
	}

	return nil
}

// History implements Database.
func (d *RedisDatabase) History(ctx context.Context) ([]MessageRecord, error) {
	raw, err := d.client.LRange(ctx, d.key("history"), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReadFailed, "read history", err)
	}

	records := make([]MessageRecord, 0, len(raw))

	for _, item := range raw {
		var record MessageRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, errors.Wrap(errors.ErrCodeEncodingFailed, "decode history record", err)
		}

		records = append(records, record)
	}

	return records, nil
}

// LoadOrders implements Database.
func (d *RedisDatabase) LoadOrders(ctx context.Context) (map[string]*types.Order, error) {
	raw, err := d.client.HGetAll(ctx, d.key("orders")).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReadFailed, "load orders", err)
	}

	orders := make(map[string]*types.Order, len(raw))

	for id, item := range raw {
		var order types.Order
		if err := json.Unmarshal([]byte(item), &order); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeEncodingFailed, err, "decode order %s", id)
		}

		orders[id] = &order
	}

	return orders, nil
}

// LoadPositions implements Database.
func (d *RedisDatabase) LoadPositions(ctx context.Context) (map[string]*types.Position, error) {
	raw, err := d.client.HGetAll(ctx, d.key("positions")).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReadFailed, "load positions", err)
	}

	positions := make(map[string]*types.Position, len(raw))

	for id, item := range raw {
		var position types.Position
		if err := json.Unmarshal([]byte(item), &position); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeEncodingFailed, err, "decode position %s", id)
		}

		positions[id] = &position
	}

	return positions, nil
}

// LoadAccount implements Database.
func (d *RedisDatabase) LoadAccount(ctx context.Context) (*types.Account, error) {
	raw, err := d.client.Get(ctx, d.key("account")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, errors.Wrap(errors.ErrCodeReadFailed, "load account", err)
	}

	var account types.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEncodingFailed, "decode account", err)
	}

	return &account, nil
}

// LoadStrategyState implements Database.
func (d *RedisDatabase) LoadStrategyState(ctx context.Context, strategyID types.StrategyID) (map[string]string, error) {
	state, err := d.client.HGetAll(ctx, d.strategyKey(strategyID)).Result()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeReadFailed, err, "load strategy state %s", strategyID)
	}

	// HGetAll returns an empty map for a missing key; "not found" is not an error.
	return state, nil
}

// SaveStrategyState implements Database.
func (d *RedisDatabase) SaveStrategyState(ctx context.Context, strategyID types.StrategyID, state map[string]string) error {
	key := d.strategyKey(strategyID)

	// Overwrite semantics: drop stale fields before writing the new state.
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, key)

	if len(state) > 0 {
		values := make([]any, 0, len(state)*2)
		for k, v := range state {
			values = append(values, k, v)
		}

		pipe.HSet(ctx, key, values...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(errors.ErrCodeWriteRejected, err, "save strategy state %s", strategyID)
	}

	return nil
}

// Flush implements Database. Every write is already a synchronous round-trip,
// so flushing reduces to confirming the store is still reachable.
func (d *RedisDatabase) Flush(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeFlushFailed, "redis flush ping", err)
	}

	return nil
}

// Close implements Database.
func (d *RedisDatabase) Close() error {
	return d.client.Close()
}

// Verify RedisDatabase implements the Database interface.
var _ Database = (*RedisDatabase)(nil)
