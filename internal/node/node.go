package node

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/data"
	"github.com/meridian-lab/meridian-trading/internal/execution"
	"github.com/meridian-lab/meridian-trading/internal/execution/database"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/trader"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// NodeState is the trading node lifecycle state.
type NodeState string

const (
	NodeInitialized NodeState = "INITIALIZED"
	NodeRunning     NodeState = "RUNNING"
	NodeStopping    NodeState = "STOPPING"
	NodeStopped     NodeState = "STOPPED"
	NodeDisposed    NodeState = "DISPOSED"
)

// TradingNode assembles and runs the execution engine, the data engine and
// the trader over one execution database.
type TradingNode struct {
	cfg   Config
	log   *logger.Logger
	clock types.Clock

	db         database.Database
	engine     *execution.LiveEngine
	dataEngine *data.Engine
	trader     *trader.Trader

	mu       sync.Mutex
	state    NodeState
	stopOnce sync.Once
	stopErr  error
}

// NewTradingNode wires every component from the config. The database backend
// is selected by database.type: "redis" connects a durable store, anything
// else runs the in-memory bypass.
func NewTradingNode(ctx context.Context, cfg Config) (*TradingNode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.NewLoggerWithLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	traderID, err := types.NewTraderID(cfg.Trader.Name, cfg.Trader.IDTag)
	if err != nil {
		return nil, err
	}

	clock := types.NewLiveClock()

	db, err := buildDatabase(ctx, cfg.Database, traderID, log)
	if err != nil {
		return nil, err
	}

	balance, err := cfg.Venue.StartingBalance()
	if err != nil {
		return nil, err
	}

	engine := execution.NewLiveEngine(traderID, clock, db,
		func(sink execution.EventSink) execution.ExecutionClient {
			return execution.NewSimulatedClient(execution.SimulatedClientConfig{
				Venue:    cfg.Venue.Name,
				Currency: cfg.Venue.Currency,
				Balance:  balance,
			}, clock, sink, log)
		}, log)

	n := &TradingNode{
		cfg:        cfg,
		log:        log,
		clock:      clock,
		db:         db,
		engine:     engine,
		dataEngine: data.NewEngine(log),
		trader:     trader.New(traderID, engine, db, clock, log),
		state:      NodeInitialized,
	}

	log.Info("trading node initialized",
		zap.String("trader_id", traderID.String()),
		zap.String("database", cfg.Database.Type))

	return n, nil
}

func buildDatabase(ctx context.Context, cfg DatabaseConfig, traderID types.TraderID,
	log *logger.Logger,
) (database.Database, error) {
	if cfg.Type == "redis" {
		return database.NewRedisDatabase(ctx,
			database.RedisConfig{Host: cfg.Host, Port: cfg.Port}, traderID, log)
	}

	return database.NewBypassDatabase(traderID, log), nil
}

// Trader exposes the trader for strategy registration.
func (n *TradingNode) Trader() *trader.Trader { return n.trader }

// Engine exposes the execution engine.
func (n *TradingNode) Engine() execution.Engine { return n.engine }

// DataEngine exposes the data engine.
func (n *TradingNode) DataEngine() *data.Engine { return n.dataEngine }

// State returns the node lifecycle state.
func (n *TradingNode) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.state
}

func (n *TradingNode) transition(from []NodeState, to NodeState) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, s := range from {
		if n.state == s {
			n.state = to

			return nil
		}
	}

	if n.state == NodeDisposed {
		return errors.New(errors.ErrCodeAlreadyDisposed, "trading node: disposed")
	}

	return errors.Newf(errors.ErrCodeInvalidLifecycleState,
		"trading node: cannot move to %s from %s", to, n.state)
}

// Start brings every component up: state recovery, venue connection, engines,
// strategy state load, strategies. If a later component fails, the components
// already started are stopped again and the node returns to Initialized.
func (n *TradingNode) Start(ctx context.Context) error {
	if err := n.transition([]NodeState{NodeInitialized}, NodeRunning); err != nil {
		return err
	}

	if err := n.engine.Start(ctx); err != nil {
		n.unwindStart(false, false)

		return err
	}

	if err := n.dataEngine.Start(ctx); err != nil {
		n.unwindStart(true, false)

		return err
	}

	if n.cfg.Strategy.LoadState {
		if err := n.trader.Load(ctx); err != nil {
			n.unwindStart(true, true)

			return err
		}
	}

	if err := n.trader.Start(ctx); err != nil {
		n.unwindStart(true, true)

		return err
	}

	n.log.Info("trading node running")

	return nil
}

// unwindStart rolls back a partial Start so a failed node leaves no engine
// goroutines behind. The engines return to Stopped and can be restarted.
func (n *TradingNode) unwindStart(engineUp, dataUp bool) {
	if dataUp {
		if err := n.dataEngine.Stop(); err != nil {
			n.log.Error("data engine stop failed during start rollback", zap.Error(err))
		} else {
			n.joinOrTimeout(n.dataEngine.RunTask(), "data engine rollback")
		}
	}

	if engineUp {
		if err := n.engine.Stop(); err != nil {
			n.log.Error("execution engine stop failed during start rollback", zap.Error(err))
		} else {
			n.joinOrTimeout(n.engine.RunTask(), "execution engine rollback")
		}
	}

	n.mu.Lock()
	n.state = NodeInitialized
	n.mu.Unlock()
}

// Run starts the node and blocks until the context is cancelled, an OS signal
// arrives, or both engines exit. The first signal stops the node exactly
// once; later signals are ignored.
func (n *TradingNode) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	engineDone := n.engine.RunTask()
	dataDone := n.dataEngine.RunTask()

	select {
	case <-ctx.Done():
		n.log.Info("run context cancelled")
	case sig := <-signals:
		n.log.Info("signal received", zap.String("signal", sig.String()))
	case <-engineDone:
	case <-dataDone:
	}

	err := n.Stop()

	<-engineDone
	<-dataDone

	return err
}

// Stop shuts the node down in order: strategies, queue drain, residual check,
// optional state save, engines, shutdown joins, database flush. Safe to call
// concurrently with signal delivery; only the first call does the work.
func (n *TradingNode) Stop() error {
	n.stopOnce.Do(func() {
		n.stopErr = n.stop()
	})

	return n.stopErr
}

func (n *TradingNode) stop() error {
	if err := n.transition([]NodeState{NodeRunning}, NodeStopping); err != nil {
		return err
	}

	n.log.Info("trading node stopping")

	if err := n.trader.Stop(); err != nil {
		n.log.Error("trader stop failed", zap.Error(err))
	}

	if !n.drainQueues() {
		n.log.Warn("drain timed out, forcing engine stop",
			zap.Int("execution_qsize", n.engine.QSize()),
			zap.Int("data_qsize", n.dataEngine.QSize()))
	}

	// Residual open state is reported but never blocks shutdown.
	if err := n.trader.CheckResiduals(); err != nil {
		n.log.Warn("residual state at shutdown", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Stop.DrainTimeout.Std())
	defer cancel()

	if n.cfg.Strategy.SaveState {
		if err := n.trader.Save(ctx); err != nil {
			n.log.Error("strategy state save failed", zap.Error(err))
		}
	}

	engineShutdown := n.engine.ShutdownTask()
	dataShutdown := n.dataEngine.ShutdownTask()

	if err := n.engine.Stop(); err != nil {
		n.log.Error("execution engine stop failed", zap.Error(err))
	}

	if err := n.dataEngine.Stop(); err != nil {
		n.log.Error("data engine stop failed", zap.Error(err))
	}

	n.joinOrTimeout(engineShutdown, "execution engine shutdown")
	n.joinOrTimeout(dataShutdown, "data engine shutdown")
	n.joinOrTimeout(n.engine.RunTask(), "execution engine run task")
	n.joinOrTimeout(n.dataEngine.RunTask(), "data engine run task")

	if err := n.db.Flush(ctx); err != nil {
		n.log.Error("database flush failed", zap.Error(err))
	}

	n.mu.Lock()
	n.state = NodeStopped
	n.mu.Unlock()

	n.log.Info("trading node stopped")

	return nil
}

// drainQueues polls both queues until empty or the drain timeout elapses.
func (n *TradingNode) drainQueues() bool {
	deadline := time.Now().Add(n.cfg.Stop.DrainTimeout.Std())

	for time.Now().Before(deadline) {
		if n.engine.QSize() == 0 && n.dataEngine.QSize() == 0 {
			return true
		}

		time.Sleep(n.cfg.Stop.DrainPollInterval.Std())
	}

	return false
}

func (n *TradingNode) joinOrTimeout(done <-chan struct{}, name string) {
	select {
	case <-done:
	case <-time.After(n.cfg.Stop.DrainTimeout.Std()):
		n.log.Error("timed out joining task", zap.String("task", name))
	}
}

// Dispose releases every component. Idempotent; once disposed all lifecycle
// methods fail fast.
func (n *TradingNode) Dispose(ctx context.Context) error {
	n.mu.Lock()
	state := n.state
	n.mu.Unlock()

	if state == NodeDisposed {
		return nil
	}

	if state == NodeRunning {
		if err := n.Stop(); err != nil {
			return err
		}
	}

	if err := n.engine.Dispose(ctx); err != nil {
		n.log.Error("engine dispose failed", zap.Error(err))
	}

	if err := n.dataEngine.Dispose(ctx); err != nil {
		n.log.Error("data engine dispose failed", zap.Error(err))
	}

	n.trader.Dispose()

	if err := n.db.Close(); err != nil {
		n.log.Error("database close failed", zap.Error(err))
	}

	n.mu.Lock()
	n.state = NodeDisposed
	n.mu.Unlock()

	n.log.Info("trading node disposed")
	_ = n.log.Sync()

	return nil
}
