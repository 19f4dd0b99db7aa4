package execution

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

func TestStateCacheOpenFilters(t *testing.T) {
	traderID, err := types.NewTraderID("TESTER", "000")
	require.NoError(t, err)

	strategyID, err := types.NewStrategyID("S-001")
	require.NoError(t, err)

	instrumentID, err := types.NewInstrumentID("EURUSD", "SIM")
	require.NoError(t, err)

	cache := NewStateCache()
	ts := time.Unix(0, 0).UTC()

	open := types.NewOrder("O-OPEN", traderID, strategyID, instrumentID,
		types.OrderSideBuy, types.OrderTypeMarket,
		decimal.NewFromInt(10), optional.None[decimal.Decimal](), ts)
	cache.PutOrder(*open)

	closed := types.NewOrder("O-DONE", traderID, strategyID, instrumentID,
		types.OrderSideBuy, types.OrderTypeMarket,
		decimal.NewFromInt(10), optional.None[decimal.Decimal](), ts)
	require.NoError(t, closed.ApplySubmitted(ts))
	require.NoError(t, closed.ApplyRejected("test", ts))
	cache.PutOrder(*closed)

	openOrders := cache.OrdersOpen()
	require.Len(t, openOrders, 1)
	require.Equal(t, "O-OPEN", openOrders[0].OrderID)

	flat := types.NewPosition("P-FLAT", traderID, strategyID, instrumentID, ts)
	cache.PutPosition(*flat)

	long := types.NewPosition("P-LONG", traderID, strategyID, instrumentID, ts)
	long.ApplyFill(types.OrderSideBuy, decimal.NewFromInt(5), decimal.NewFromInt(1), ts)
	cache.PutPosition(*long)

	openPositions := cache.PositionsOpen()
	require.Len(t, openPositions, 1)
	require.Equal(t, "P-LONG", openPositions[0].PositionID)

	_, ok := cache.Account()
	require.False(t, ok)
}

func TestStateCacheStoresCopies(t *testing.T) {
	traderID, err := types.NewTraderID("TESTER", "000")
	require.NoError(t, err)

	strategyID, err := types.NewStrategyID("S-001")
	require.NoError(t, err)

	instrumentID, err := types.NewInstrumentID("EURUSD", "SIM")
	require.NoError(t, err)

	cache := NewStateCache()
	ts := time.Unix(0, 0).UTC()

	order := types.NewOrder("O-1", traderID, strategyID, instrumentID,
		types.OrderSideBuy, types.OrderTypeMarket,
		decimal.NewFromInt(10), optional.None[decimal.Decimal](), ts)
	cache.PutOrder(*order)

	snapshot, ok := cache.Order("O-1")
	require.True(t, ok)

	snapshot.Reason = "mutated"

	fresh, ok := cache.Order("O-1")
	require.True(t, ok)
	require.Empty(t, fresh.Reason)
}
