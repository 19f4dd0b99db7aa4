package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/messaging"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// EventSink receives the events a client generates in response to commands.
// The engine wires its own enqueue here so venue responses flow through the
// same FIFO as everything else.
type EventSink func(messaging.Event)

// ExecutionClient is the venue-facing side of the engine. Implementations
// translate commands into venue requests and feed the resulting events back
// through the sink.
type ExecutionClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	SubmitOrder(ctx context.Context, cmd *messaging.SubmitOrder) error
	CancelOrder(ctx context.Context, cmd *messaging.CancelOrder) error
	ModifyOrder(ctx context.Context, cmd *messaging.ModifyOrder) error
	AccountInquiry(ctx context.Context, cmd *messaging.AccountInquiry) error
}

// SimulatedClientConfig parameterizes the paper venue.
type SimulatedClientConfig struct {
	Venue    string          `yaml:"venue" validate:"required"`
	Currency string          `yaml:"currency" validate:"required"`
	Balance  decimal.Decimal `yaml:"balance"`
}

// SimulatedClient is a paper venue that acknowledges every order immediately.
// Market orders fill at the instrument's mark price; limit orders rest until
// cancelled. It exists for single-node runs and engine tests.
type SimulatedClient struct {
	cfg   SimulatedClientConfig
	clock types.Clock
	sink  EventSink
	log   *logger.Logger

	mu        sync.RWMutex
	connected bool
	marks     map[string]decimal.Decimal
}

// NewSimulatedClient wires a paper venue onto the given sink.
func NewSimulatedClient(cfg SimulatedClientConfig, clock types.Clock, sink EventSink, log *logger.Logger) *SimulatedClient {
	return &SimulatedClient{
		cfg:   cfg,
		clock: clock,
		sink:  sink,
		log:   log,
		marks: make(map[string]decimal.Decimal),
	}
}

// SetMarkPrice sets the price market orders fill at for one instrument.
func (c *SimulatedClient) SetMarkPrice(instrumentID types.InstrumentID, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.marks[instrumentID.String()] = price
}

func (c *SimulatedClient) markPrice(instrumentID types.InstrumentID) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	price, ok := c.marks[instrumentID.String()]

	return price, ok
}

// Connect implements ExecutionClient.
func (c *SimulatedClient) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = true
	c.log.Info("simulated venue connected", zap.String("venue", c.cfg.Venue))

	return nil
}

// Disconnect implements ExecutionClient.
func (c *SimulatedClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false

	return nil
}

func (c *SimulatedClient) checkConnected() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return errors.New(errors.ErrCodeNotAccepting, "simulated venue: not connected")
	}

	return nil
}

// SubmitOrder implements ExecutionClient. The paper venue acknowledges and
// fills synchronously through the sink.
func (c *SimulatedClient) SubmitOrder(_ context.Context, cmd *messaging.SubmitOrder) error {
	if err := c.checkConnected(); err != nil {
		return err
	}

	now := c.clock.Now()
	c.sink(messaging.NewOrderSubmitted(cmd.TraderID, cmd.OrderID, now))

	if cmd.OrderType == types.OrderTypeMarket {
		price, ok := c.markPrice(cmd.InstrumentID)
		if !ok {
			c.sink(messaging.NewOrderRejected(cmd.TraderID, cmd.OrderID,
				fmt.Sprintf("no mark price for %s", cmd.InstrumentID), now))

			return nil
		}

		venueOrderID := fmt.Sprintf("%s-%s", c.cfg.Venue, uuid.NewString())
		c.sink(messaging.NewOrderAccepted(cmd.TraderID, cmd.OrderID, venueOrderID, now))
		c.sink(messaging.NewOrderFilled(cmd.TraderID, cmd.StrategyID, cmd.InstrumentID,
			cmd.OrderID, cmd.Side, cmd.Quantity, price, now))

		return nil
	}

	// Limit orders rest at the venue until cancelled.
	venueOrderID := fmt.Sprintf("%s-%s", c.cfg.Venue, uuid.NewString())
	c.sink(messaging.NewOrderAccepted(cmd.TraderID, cmd.OrderID, venueOrderID, now))

	return nil
}

// CancelOrder implements ExecutionClient.
func (c *SimulatedClient) CancelOrder(_ context.Context, cmd *messaging.CancelOrder) error {
	if err := c.checkConnected(); err != nil {
		return err
	}

	c.sink(messaging.NewOrderCancelled(cmd.TraderID, cmd.OrderID, c.clock.Now()))

	return nil
}

// ModifyOrder implements ExecutionClient.
func (c *SimulatedClient) ModifyOrder(_ context.Context, cmd *messaging.ModifyOrder) error {
	if err := c.checkConnected(); err != nil {
		return err
	}

	c.sink(messaging.NewOrderModified(cmd.TraderID, cmd.OrderID, cmd.NewQuantity, cmd.NewPrice, c.clock.Now()))

	return nil
}

// AccountInquiry implements ExecutionClient.
func (c *SimulatedClient) AccountInquiry(_ context.Context, cmd *messaging.AccountInquiry) error {
	if err := c.checkConnected(); err != nil {
		return err
	}

	c.sink(messaging.NewAccountState(cmd.TraderID, c.cfg.Venue, c.cfg.Currency,
		c.cfg.Balance, decimal.Zero, c.clock.Now()))

	return nil
}

var _ ExecutionClient = (*SimulatedClient)(nil)
