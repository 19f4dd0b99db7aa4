package messaging

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// Command type names used for dispatch.
const (
	TypeSubmitOrder    = "SubmitOrder"
	TypeCancelOrder    = "CancelOrder"
	TypeModifyOrder    = "ModifyOrder"
	TypeAccountInquiry = "AccountInquiry"
)

// SubmitOrder requests a new order to be worked at the venue.
type SubmitOrder struct {
	commandBase

	TraderID     types.TraderID
	StrategyID   types.StrategyID
	InstrumentID types.InstrumentID
	OrderID      string
	Side         types.OrderSide
	OrderType    types.OrderType
	Quantity     decimal.Decimal
	Price        optional.Option[decimal.Decimal]
}

// NewSubmitOrder constructs an immutable SubmitOrder command stamped at ts.
func NewSubmitOrder(traderID types.TraderID, strategyID types.StrategyID, instrumentID types.InstrumentID,
	orderID string, side types.OrderSide, orderType types.OrderType,
	quantity decimal.Decimal, price optional.Option[decimal.Decimal], ts time.Time,
) *SubmitOrder {
	return &SubmitOrder{
		commandBase:  commandBase{newMessageBase(ts)},
		TraderID:     traderID,
		StrategyID:   strategyID,
		InstrumentID: instrumentID,
		OrderID:      orderID,
		Side:         side,
		OrderType:    orderType,
		Quantity:     quantity,
		Price:        price,
	}
}

// Type implements Message.
func (*SubmitOrder) Type() string { return TypeSubmitOrder }

// Validate checks the command is well-formed before it enters the queue.
func (c *SubmitOrder) Validate() error {
	if c.TraderID.IsZero() || c.StrategyID.IsZero() || c.InstrumentID.IsZero() {
		return errors.New(errors.ErrCodeInvalidCommand, "submit order: missing identifiers")
	}

	if c.OrderID == "" {
		return errors.New(errors.ErrCodeInvalidCommand, "submit order: missing order id")
	}

	if c.Side != types.OrderSideBuy && c.Side != types.OrderSideSell {
		return errors.Newf(errors.ErrCodeInvalidCommand, "submit order: invalid side %q", c.Side)
	}

	if c.Quantity.LessThanOrEqual(decimal.Zero) {
		return errors.Newf(errors.ErrCodeInvalidCommand, "submit order: quantity must be positive, got %s", c.Quantity)
	}

	if c.OrderType == types.OrderTypeLimit && c.Price.IsNone() {
		return errors.New(errors.ErrCodeInvalidCommand, "submit order: limit order requires a price")
	}

	return nil
}

// CancelOrder requests cancellation of a working order.
type CancelOrder struct {
	commandBase

	TraderID types.TraderID
	OrderID  string
	Reason   string
}

// NewCancelOrder constructs an immutable CancelOrder command stamped at ts.
func NewCancelOrder(traderID types.TraderID, orderID, reason string, ts time.Time) *CancelOrder {
	return &CancelOrder{
		commandBase: commandBase{newMessageBase(ts)},
		TraderID:    traderID,
		OrderID:     orderID,
		Reason:      reason,
	}
}

// Type implements Message.
func (*CancelOrder) Type() string { return TypeCancelOrder }

// ModifyOrder requests a quantity and/or price amendment of a working order.
type ModifyOrder struct {
	commandBase

	TraderID    types.TraderID
	OrderID     string
	NewQuantity optional.Option[decimal.Decimal]
	NewPrice    optional.Option[decimal.Decimal]
}

// NewModifyOrder constructs an immutable ModifyOrder command stamped at ts.
func NewModifyOrder(traderID types.TraderID, orderID string,
	newQuantity, newPrice optional.Option[decimal.Decimal], ts time.Time,
) *ModifyOrder {
	return &ModifyOrder{
		commandBase: commandBase{newMessageBase(ts)},
		TraderID:    traderID,
		OrderID:     orderID,
		NewQuantity: newQuantity,
		NewPrice:    newPrice,
	}
}

// Type implements Message.
func (*ModifyOrder) Type() string { return TypeModifyOrder }

// AccountInquiry requests a fresh account-state event from the venue.
type AccountInquiry struct {
	commandBase

	TraderID types.TraderID
	Venue    string
}

// NewAccountInquiry constructs an immutable AccountInquiry command stamped at ts.
func NewAccountInquiry(traderID types.TraderID, venue string, ts time.Time) *AccountInquiry {
	return &AccountInquiry{
		commandBase: commandBase{newMessageBase(ts)},
		TraderID:    traderID,
		Venue:       venue,
	}
}

// Type implements Message.
func (*AccountInquiry) Type() string { return TypeAccountInquiry }
