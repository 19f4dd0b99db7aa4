package emacross

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lab/meridian-trading/internal/data"
	"github.com/meridian-lab/meridian-trading/internal/execution"
	"github.com/meridian-lab/meridian-trading/internal/execution/database"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/trader"
	"github.com/meridian-lab/meridian-trading/internal/types"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	traderID, err := types.NewTraderID("TESTER", "000")
	require.NoError(t, err)

	instrumentID, err := types.NewInstrumentID("EURUSD", "SIM")
	require.NoError(t, err)

	return Config{
		StrategyID:   "EMAX-001",
		TraderID:     traderID,
		InstrumentID: instrumentID,
		FastPeriod:   2,
		SlowPeriod:   5,
		Quantity:     decimal.NewFromInt(10),
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.FastPeriod = 5
	cfg.SlowPeriod = 2

	_, err := New(cfg)
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Quantity = decimal.Zero

	_, err = New(cfg)
	require.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)

	// Cold strategy saves nothing.
	require.Empty(t, s.SaveState())

	s.fast = decimal.RequireFromString("1.10")
	s.slow = decimal.RequireFromString("1.09")
	s.seeded = true
	s.wasAbove = true
	s.long = true

	state := s.SaveState()

	restored, err := New(testConfig(t))
	require.NoError(t, err)
	restored.LoadState(state)

	require.True(t, restored.seeded)
	require.True(t, restored.wasAbove)
	require.True(t, restored.long)
	require.True(t, restored.fast.Equal(s.fast))
	require.True(t, restored.slow.Equal(s.slow))
}

func TestLoadStateIgnoresGarbage(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)

	s.LoadState(map[string]string{"fast": "not-a-number", "slow": "1.1"})
	require.False(t, s.seeded)
}

// Full stack: ticks through the data engine, orders through the execution
// engine, fills back into the strategy.
func TestCrossTradesRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	clock := types.NewTestClock(time.Unix(1_700_000_000, 0).UTC())
	log := logger.NewNopLogger()
	db := database.NewBypassDatabase(cfg.TraderID, log)

	var client *execution.SimulatedClient

	engine := execution.NewLiveEngine(cfg.TraderID, clock, db,
		func(sink execution.EventSink) execution.ExecutionClient {
			client = execution.NewSimulatedClient(execution.SimulatedClientConfig{
				Venue:    "SIM",
				Currency: "USD",
				Balance:  decimal.NewFromInt(100_000),
			}, clock, sink, log)

			return client
		}, log)

	dataEngine := data.NewEngine(log)
	tr := trader.New(cfg.TraderID, engine, db, clock, log)

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, tr.AddStrategy(s))

	dataEngine.Subscribe(cfg.InstrumentID, s.OnTick)

	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, dataEngine.Start(context.Background()))

	tick := func(mid string) data.Tick {
		price := decimal.RequireFromString(mid)
		clock.Advance(time.Second)

		return data.Tick{
			InstrumentID: cfg.InstrumentID,
			Bid:          price,
			Ask:          price,
			Ts:           clock.Now(),
		}
	}

	client.SetMarkPrice(cfg.InstrumentID, decimal.RequireFromString("1.10"))

	// Seed, then a sharp rise forces the fast average over the slow one.
	require.NoError(t, dataEngine.Publish(tick("1.00")))
	for _, mid := range []string{"1.05", "1.10", "1.15"} {
		require.NoError(t, dataEngine.Publish(tick(mid)))
	}

	require.Eventually(t, func() bool {
		return len(engine.Cache().PositionsOpen()) == 1
	}, 5*time.Second, time.Millisecond, "cross up should open a position")

	// A sharp fall crosses back down and flattens.
	for _, mid := range []string{"0.95", "0.90", "0.85", "0.80"} {
		require.NoError(t, dataEngine.Publish(tick(mid)))
	}

	require.Eventually(t, func() bool {
		return len(engine.Cache().PositionsOpen()) == 0
	}, 5*time.Second, time.Millisecond, "cross down should flatten")

	require.NoError(t, dataEngine.Stop())
	require.NoError(t, engine.Stop())
	<-dataEngine.RunTask()
	<-engine.RunTask()

	require.NoError(t, tr.Stop())
	require.NoError(t, tr.CheckResiduals())

	state := s.SaveState()
	require.Equal(t, "false", state["long"])
}
