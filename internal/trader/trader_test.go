package trader

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lab/meridian-trading/internal/execution"
	"github.com/meridian-lab/meridian-trading/internal/execution/database"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// recordingStrategy captures every callback for assertions.
type recordingStrategy struct {
	id      types.StrategyID
	state   map[string]string
	started bool
	stopped bool
	events  []string
}

func newRecordingStrategy(t *testing.T, id string) *recordingStrategy {
	t.Helper()

	strategyID, err := types.NewStrategyID(id)
	require.NoError(t, err)

	return &recordingStrategy{id: strategyID, state: map[string]string{}}
}

func (s *recordingStrategy) ID() types.StrategyID { return s.id }

func (s *recordingStrategy) OnStart(StrategyContext) error {
	s.started = true

	return nil
}

func (s *recordingStrategy) OnStop() error {
	s.stopped = true

	return nil
}

func (s *recordingStrategy) OnEvent(evt messaging.Event) {
	s.events = append(s.events, evt.Type())
}

func (s *recordingStrategy) SaveState() map[string]string { return s.state }

func (s *recordingStrategy) LoadState(state map[string]string) { s.state = state }

type traderFixture struct {
	trader   *Trader
	engine   *execution.LiveEngine
	client   *execution.SimulatedClient
	clock    *types.TestClock
	traderID types.TraderID
}

func newTraderFixture(t *testing.T, db database.Database) *traderFixture {
	t.Helper()

	traderID, err := types.NewTraderID("TESTER", "000")
	require.NoError(t, err)

	clock := types.NewTestClock(time.Unix(1_700_000_000, 0).UTC())
	log := logger.NewNopLogger()

	f := &traderFixture{clock: clock, traderID: traderID}

	f.engine = execution.NewLiveEngine(traderID, clock, db,
		func(sink execution.EventSink) execution.ExecutionClient {
			f.client = execution.NewSimulatedClient(execution.SimulatedClientConfig{
				Venue:    "SIM",
				Currency: "USD",
				Balance:  decimal.NewFromInt(100_000),
			}, clock, sink, log)

			return f.client
		}, log)

	f.trader = New(traderID, f.engine, db, clock, log)

	return f
}

func bypassDB(t *testing.T) database.Database {
	t.Helper()

	traderID, err := types.NewTraderID("TESTER", "000")
	require.NoError(t, err)

	return database.NewBypassDatabase(traderID, logger.NewNopLogger())
}

func TestTraderAddStrategy(t *testing.T) {
	f := newTraderFixture(t, bypassDB(t))

	require.NoError(t, f.trader.AddStrategy(newRecordingStrategy(t, "S-001")))

	err := f.trader.AddStrategy(newRecordingStrategy(t, "S-001"))
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeInvalidIdentifier, errors.GetCode(err))

	require.NoError(t, f.trader.Start(context.Background()))

	err = f.trader.AddStrategy(newRecordingStrategy(t, "S-002"))
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeInvalidLifecycleState, errors.GetCode(err))

	require.Equal(t, []types.StrategyID{mustStrategyID(t, "S-001")}, f.trader.StrategyIDs())
}

func mustStrategyID(t *testing.T, id string) types.StrategyID {
	t.Helper()

	strategyID, err := types.NewStrategyID(id)
	require.NoError(t, err)

	return strategyID
}

func TestTraderStartStop(t *testing.T) {
	f := newTraderFixture(t, bypassDB(t))
	s := newRecordingStrategy(t, "S-001")
	require.NoError(t, f.trader.AddStrategy(s))

	err := f.trader.Stop()
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeInvalidLifecycleState, errors.GetCode(err))

	require.NoError(t, f.trader.Start(context.Background()))
	require.True(t, s.started)

	err = f.trader.Start(context.Background())
	require.Error(t, err)

	require.NoError(t, f.trader.Stop())
	require.True(t, s.stopped)
}

func TestTraderStrategyReceivesEvents(t *testing.T) {
	f := newTraderFixture(t, bypassDB(t))
	s := newRecordingStrategy(t, "S-001")
	require.NoError(t, f.trader.AddStrategy(s))

	require.NoError(t, f.trader.Start(context.Background()))
	require.NoError(t, f.engine.Start(context.Background()))

	instrumentID, err := types.NewInstrumentID("EURUSD", "SIM")
	require.NoError(t, err)

	f.client.SetMarkPrice(instrumentID, decimal.RequireFromString("1.10"))

	require.NoError(t, f.engine.Execute(messaging.NewSubmitOrder(
		f.traderID, s.ID(), instrumentID, "O-1",
		types.OrderSideBuy, types.OrderTypeMarket,
		decimal.NewFromInt(10), optional.None[decimal.Decimal](), f.clock.Now())))

	require.NoError(t, f.engine.Stop())
	<-f.engine.RunTask()

	require.Equal(t, []string{
		messaging.TypeOrderSubmitted,
		messaging.TypeOrderAccepted,
		messaging.TypeOrderFilled,
		messaging.TypePositionOpened,
	}, s.events)
}

func TestTraderCheckResiduals(t *testing.T) {
	f := newTraderFixture(t, bypassDB(t))
	s := newRecordingStrategy(t, "S-001")
	require.NoError(t, f.trader.AddStrategy(s))

	require.NoError(t, f.engine.Start(context.Background()))

	// Nothing open yet.
	require.NoError(t, f.trader.CheckResiduals())

	instrumentID, err := types.NewInstrumentID("EURUSD", "SIM")
	require.NoError(t, err)

	// A resting limit order never fills at the paper venue.
	require.NoError(t, f.engine.Execute(messaging.NewSubmitOrder(
		f.traderID, s.ID(), instrumentID, "O-REST",
		types.OrderSideBuy, types.OrderTypeLimit,
		decimal.NewFromInt(10), optional.Some(decimal.RequireFromString("1.00")), f.clock.Now())))

	require.NoError(t, f.engine.Stop())
	<-f.engine.RunTask()

	err = f.trader.CheckResiduals()
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeResidualState, errors.GetCode(err))
}

func TestTraderStateRoundTripThroughRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	traderID, err := types.NewTraderID("TESTER", "000")
	require.NoError(t, err)

	port, err := strconv.Atoi(server.Port())
	require.NoError(t, err)

	db, err := database.NewRedisDatabase(context.Background(),
		database.RedisConfig{Host: server.Host(), Port: port},
		traderID, logger.NewNopLogger())
	require.NoError(t, err)
	defer db.Close()

	f := newTraderFixture(t, db)
	s := newRecordingStrategy(t, "S-001")
	s.state = map[string]string{"ema_fast": "1.1012"}
	require.NoError(t, f.trader.AddStrategy(s))

	require.NoError(t, f.trader.Save(context.Background()))

	// A second trader instance restores the saved state.
	g := newTraderFixture(t, db)
	restored := newRecordingStrategy(t, "S-001")
	require.NoError(t, g.trader.AddStrategy(restored))
	require.NoError(t, g.trader.Load(context.Background()))

	require.Equal(t, map[string]string{"ema_fast": "1.1012"}, restored.state)
}

func TestTraderLoadFromBypassIsColdStart(t *testing.T) {
	f := newTraderFixture(t, bypassDB(t))
	s := newRecordingStrategy(t, "S-001")
	s.state = map[string]string{"ema_fast": "1.1012"}
	require.NoError(t, f.trader.AddStrategy(s))

	require.NoError(t, f.trader.Save(context.Background()))

	restored := newRecordingStrategy(t, "S-001")

	g := newTraderFixture(t, bypassDB(t))
	require.NoError(t, g.trader.AddStrategy(restored))
	require.NoError(t, g.trader.Load(context.Background()))

	require.Empty(t, restored.state)
}
