package database

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
)

func bypassTestIDs(t *testing.T) (types.TraderID, types.StrategyID, types.InstrumentID) {
	t.Helper()

	traderID, err := types.NewTraderID("TESTER", "000")
	require.NoError(t, err)

	strategyID, err := types.NewStrategyID("S-001")
	require.NoError(t, err)

	instrumentID, err := types.NewInstrumentID("EURUSD", "SIM")
	require.NoError(t, err)

	return traderID, strategyID, instrumentID
}

func TestBypassDatabaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	traderID, strategyID, instrumentID := bypassTestIDs(t)
	db := NewBypassDatabase(traderID, logger.NewNopLogger())

	order := types.NewOrder("O-1", traderID, strategyID, instrumentID,
		types.OrderSideBuy, types.OrderTypeMarket,
		decimal.NewFromInt(50), optional.None[decimal.Decimal](), time.Unix(0, 0).UTC())
	require.NoError(t, db.AddOrder(ctx, order))

	position := types.NewPosition("P-1", traderID, strategyID, instrumentID, time.Unix(0, 0).UTC())
	require.NoError(t, db.AddPosition(ctx, position))

	account := types.NewAccount(traderID, "SIM", "USD", decimal.NewFromInt(10000), time.Unix(0, 0).UTC())
	require.NoError(t, db.UpdateAccount(ctx, account))

	orders, err := db.LoadOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	positions, err := db.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	loaded, err := db.LoadAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.True(t, loaded.Balance.Equal(decimal.NewFromInt(10000)))
}

func TestBypassDatabaseSnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	traderID, strategyID, instrumentID := bypassTestIDs(t)
	db := NewBypassDatabase(traderID, logger.NewNopLogger())

	order := types.NewOrder("O-1", traderID, strategyID, instrumentID,
		types.OrderSideBuy, types.OrderTypeMarket,
		decimal.NewFromInt(50), optional.None[decimal.Decimal](), time.Unix(0, 0).UTC())
	require.NoError(t, db.AddOrder(ctx, order))

	orders, err := db.LoadOrders(ctx)
	require.NoError(t, err)
	orders["O-1"].Reason = "mutated"

	reloaded, err := db.LoadOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, reloaded["O-1"].Reason)
}

func TestBypassDatabaseHistoryOrder(t *testing.T) {
	ctx := context.Background()
	traderID, _, _ := bypassTestIDs(t)
	db := NewBypassDatabase(traderID, logger.NewNopLogger())

	var want []string

	for i := 0; i < 3; i++ {
		cmd := messaging.NewCancelOrder(traderID, "O-1", "test", time.Unix(int64(i), 0))
		want = append(want, cmd.ID().String())
		require.NoError(t, db.AppendMessage(ctx, cmd))
	}

	records, err := db.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, record := range records {
		require.Equal(t, want[i], record.MessageID)
	}
}

// Strategy state written through the bypass backend never survives: saves are
// discarded and loads come back empty, even within the same instance.
func TestBypassDatabaseNeverDurable(t *testing.T) {
	ctx := context.Background()
	traderID, strategyID, _ := bypassTestIDs(t)
	db := NewBypassDatabase(traderID, logger.NewNopLogger())

	require.NoError(t, db.SaveStrategyState(ctx, strategyID, map[string]string{"ema_fast": "1.10"}))

	state, err := db.LoadStrategyState(ctx, strategyID)
	require.NoError(t, err)
	require.Empty(t, state)

	require.NoError(t, db.Flush(ctx))
	require.NoError(t, db.Close())

	// A reconstructed instance starts fresh as well.
	fresh := NewBypassDatabase(traderID, logger.NewNopLogger())

	orders, err := fresh.LoadOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, orders)

	state, err = fresh.LoadStrategyState(ctx, strategyID)
	require.NoError(t, err)
	require.Empty(t, state)
}
