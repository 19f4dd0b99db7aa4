package messaging

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// Event type names used for dispatch.
const (
	TypeOrderSubmitted  = "OrderSubmitted"
	TypeOrderAccepted   = "OrderAccepted"
	TypeOrderRejected   = "OrderRejected"
	TypeOrderCancelled  = "OrderCancelled"
	TypeOrderModified   = "OrderModified"
	TypeOrderFilled     = "OrderFilled"
	TypePositionOpened  = "PositionOpened"
	TypePositionChanged = "PositionChanged"
	TypePositionClosed  = "PositionClosed"
	TypeAccountState    = "AccountState"
)

// OrderSubmitted records that an order left the engine towards the venue.
type OrderSubmitted struct {
	eventBase

	TraderID types.TraderID
	OrderID  string
}

// NewOrderSubmitted constructs the event stamped at ts.
func NewOrderSubmitted(traderID types.TraderID, orderID string, ts time.Time) *OrderSubmitted {
	return &OrderSubmitted{
		eventBase: eventBase{newMessageBase(ts)},
		TraderID:  traderID,
		OrderID:   orderID,
	}
}

// Type implements Message.
func (*OrderSubmitted) Type() string { return TypeOrderSubmitted }

// OrderAccepted records that the venue is working the order.
type OrderAccepted struct {
	eventBase

	TraderID     types.TraderID
	OrderID      string
	VenueOrderID string
}

// NewOrderAccepted constructs the event stamped at ts.
func NewOrderAccepted(traderID types.TraderID, orderID, venueOrderID string, ts time.Time) *OrderAccepted {
	return &OrderAccepted{
		eventBase:    eventBase{newMessageBase(ts)},
		TraderID:     traderID,
		OrderID:      orderID,
		VenueOrderID: venueOrderID,
	}
}

// Type implements Message.
func (*OrderAccepted) Type() string { return TypeOrderAccepted }

// OrderRejected records that the venue refused the order.
type OrderRejected struct {
	eventBase

	TraderID types.TraderID
	OrderID  string
	Reason   string
}

// NewOrderRejected constructs the event stamped at ts.
func NewOrderRejected(traderID types.TraderID, orderID, reason string, ts time.Time) *OrderRejected {
	return &OrderRejected{
		eventBase: eventBase{newMessageBase(ts)},
		TraderID:  traderID,
		OrderID:   orderID,
		Reason:    reason,
	}
}

// Type implements Message.
func (*OrderRejected) Type() string { return TypeOrderRejected }

// OrderCancelled records that a working order was cancelled.
type OrderCancelled struct {
	eventBase

	TraderID types.TraderID
	OrderID  string
}

// NewOrderCancelled constructs the event stamped at ts.
func NewOrderCancelled(traderID types.TraderID, orderID string, ts time.Time) *OrderCancelled {
	return &OrderCancelled{
		eventBase: eventBase{newMessageBase(ts)},
		TraderID:  traderID,
		OrderID:   orderID,
	}
}

// Type implements Message.
func (*OrderCancelled) Type() string { return TypeOrderCancelled }

// OrderModified records an accepted amendment of a working order.
type OrderModified struct {
	eventBase

	TraderID    types.TraderID
	OrderID     string
	NewQuantity optional.Option[decimal.Decimal]
	NewPrice    optional.Option[decimal.Decimal]
}

// NewOrderModified constructs the event stamped at ts.
func NewOrderModified(traderID types.TraderID, orderID string,
	newQuantity, newPrice optional.Option[decimal.Decimal], ts time.Time,
) *OrderModified {
	return &OrderModified{
		eventBase:   eventBase{newMessageBase(ts)},
		TraderID:    traderID,
		OrderID:     orderID,
		NewQuantity: newQuantity,
		NewPrice:    newPrice,
	}
}

// Type implements Message.
func (*OrderModified) Type() string { return TypeOrderModified }

// OrderFilled records a (partial) execution of a working order.
type OrderFilled struct {
	eventBase

	TraderID     types.TraderID
	StrategyID   types.StrategyID
	InstrumentID types.InstrumentID
	OrderID      string
	Side         types.OrderSide
	FillQty      decimal.Decimal
	FillPrice    decimal.Decimal
}

// NewOrderFilled constructs the event stamped at ts.
func NewOrderFilled(traderID types.TraderID, strategyID types.StrategyID, instrumentID types.InstrumentID,
	orderID string, side types.OrderSide, fillQty, fillPrice decimal.Decimal, ts time.Time,
) *OrderFilled {
	return &OrderFilled{
		eventBase:    eventBase{newMessageBase(ts)},
		TraderID:     traderID,
		StrategyID:   strategyID,
		InstrumentID: instrumentID,
		OrderID:      orderID,
		Side:         side,
		FillQty:      fillQty,
		FillPrice:    fillPrice,
	}
}

// Type implements Message.
func (*OrderFilled) Type() string { return TypeOrderFilled }

// PositionOpened records exposure opened from flat.
type PositionOpened struct {
	eventBase

	TraderID     types.TraderID
	StrategyID   types.StrategyID
	InstrumentID types.InstrumentID
	PositionID   string
	Side         types.PositionSide
	Quantity     decimal.Decimal
}

// NewPositionOpened constructs the event stamped at ts.
func NewPositionOpened(traderID types.TraderID, strategyID types.StrategyID, instrumentID types.InstrumentID,
	positionID string, side types.PositionSide, quantity decimal.Decimal, ts time.Time,
) *PositionOpened {
	return &PositionOpened{
		eventBase:    eventBase{newMessageBase(ts)},
		TraderID:     traderID,
		StrategyID:   strategyID,
		InstrumentID: instrumentID,
		PositionID:   positionID,
		Side:         side,
		Quantity:     quantity,
	}
}

// Type implements Message.
func (*PositionOpened) Type() string { return TypePositionOpened }

// PositionChanged records a change of exposure on an open position.
type PositionChanged struct {
	eventBase

	TraderID   types.TraderID
	PositionID string
	Side       types.PositionSide
	Quantity   decimal.Decimal
}

// NewPositionChanged constructs the event stamped at ts.
func NewPositionChanged(traderID types.TraderID, positionID string,
	side types.PositionSide, quantity decimal.Decimal, ts time.Time,
) *PositionChanged {
	return &PositionChanged{
		eventBase:  eventBase{newMessageBase(ts)},
		TraderID:   traderID,
		PositionID: positionID,
		Side:       side,
		Quantity:   quantity,
	}
}

// Type implements Message.
func (*PositionChanged) Type() string { return TypePositionChanged }

// PositionClosed records a position returning to flat.
type PositionClosed struct {
	eventBase

	TraderID    types.TraderID
	PositionID  string
	RealizedPnL decimal.Decimal
}

// NewPositionClosed constructs the event stamped at ts.
func NewPositionClosed(traderID types.TraderID, positionID string, realizedPnL decimal.Decimal, ts time.Time) *PositionClosed {
	return &PositionClosed{
		eventBase:   eventBase{newMessageBase(ts)},
		TraderID:    traderID,
		PositionID:  positionID,
		RealizedPnL: realizedPnL,
	}
}

// Type implements Message.
func (*PositionClosed) Type() string { return TypePositionClosed }

// AccountState records the venue's view of balances and margin.
type AccountState struct {
	eventBase

	TraderID   types.TraderID
	Venue      string
	Currency   string
	Balance    decimal.Decimal
	MarginUsed decimal.Decimal
}

// NewAccountState constructs the event stamped at ts.
func NewAccountState(traderID types.TraderID, venue, currency string,
	balance, marginUsed decimal.Decimal, ts time.Time,
) *AccountState {
	return &AccountState{
		eventBase:  eventBase{newMessageBase(ts)},
		TraderID:   traderID,
		Venue:      venue,
		Currency:   currency,
		Balance:    balance,
		MarginUsed: marginUsed,
	}
}

// Type implements Message.
func (*AccountState) Type() string { return TypeAccountState }
