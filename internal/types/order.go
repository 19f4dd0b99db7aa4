package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

type OrderSide string

type OrderType string

type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	OrderStatusInitialized     OrderStatus = "INITIALIZED"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// orderTransitions is the set of legal status transitions. Order state moves
// only through Apply* methods, driven by events processed in the execution
// engine; commands never mutate an order directly.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusInitialized:     {OrderStatusSubmitted},
	OrderStatusSubmitted:       {OrderStatusAccepted, OrderStatusRejected},
	OrderStatusAccepted:        {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled},
	OrderStatusPartiallyFilled: {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled},
}

// Order is the mutable aggregate tracking one order's lifecycle.
type Order struct {
	OrderID      string                           `json:"order_id" validate:"required"`
	TraderID     string                           `json:"trader_id" validate:"required"`
	StrategyID   string                           `json:"strategy_id" validate:"required"`
	InstrumentID string                           `json:"instrument_id" validate:"required"`
	Side         OrderSide                        `json:"side" validate:"required,oneof=BUY SELL"`
	Type         OrderType                        `json:"type" validate:"required,oneof=MARKET LIMIT"`
	Quantity     decimal.Decimal                  `json:"quantity"`
	Price        optional.Option[decimal.Decimal] `json:"price"`
	Status       OrderStatus                      `json:"status"`
	FilledQty    decimal.Decimal                  `json:"filled_qty"`
	AvgFillPrice decimal.Decimal                  `json:"avg_fill_price"`
	Reason       string                           `json:"reason"`
	InitTime     time.Time                        `json:"init_time"`
	UpdateTime   time.Time                        `json:"update_time"`
}

// NewOrder returns an order in the INITIALIZED state.
func NewOrder(orderID string, traderID TraderID, strategyID StrategyID, instrumentID InstrumentID,
	side OrderSide, orderType OrderType, quantity decimal.Decimal,
	price optional.Option[decimal.Decimal], ts time.Time,
) *Order {
	return &Order{
		OrderID:      orderID,
		TraderID:     traderID.String(),
		StrategyID:   strategyID.String(),
		InstrumentID: instrumentID.String(),
		Side:         side,
		Type:         orderType,
		Quantity:     quantity,
		Price:        price,
		Status:       OrderStatusInitialized,
		FilledQty:    decimal.Zero,
		AvgFillPrice: decimal.Zero,
		Reason:       "",
		InitTime:     ts,
		UpdateTime:   ts,
	}
}

// IsOpen reports whether the order can still generate fills.
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return false
	default:
		return true
	}
}

// IsClosed is the inverse of IsOpen.
func (o *Order) IsClosed() bool {
	return !o.IsOpen()
}

func (o *Order) transition(to OrderStatus, ts time.Time) error {
	for _, next := range orderTransitions[o.Status] {
		if next == to {
			o.Status = to
			o.UpdateTime = ts

			return nil
		}
	}

	return errors.Newf(errors.ErrCodeInvalidTransition,
		"order %s: illegal transition %s -> %s", o.OrderID, o.Status, to)
}

// ApplySubmitted transitions the order to SUBMITTED.
func (o *Order) ApplySubmitted(ts time.Time) error {
	return o.transition(OrderStatusSubmitted, ts)
}

// ApplyAccepted transitions the order to ACCEPTED.
func (o *Order) ApplyAccepted(ts time.Time) error {
	return o.transition(OrderStatusAccepted, ts)
}

// ApplyRejected transitions the order to REJECTED, recording the venue reason.
func (o *Order) ApplyRejected(reason string, ts time.Time) error {
	if err := o.transition(OrderStatusRejected, ts); err != nil {
		return err
	}

	o.Reason = reason

	return nil
}

// ApplyCancelled transitions the order to CANCELLED.
func (o *Order) ApplyCancelled(ts time.Time) error {
	return o.transition(OrderStatusCancelled, ts)
}

// ApplyFilled records a (partial) fill, accumulating filled quantity and the
// volume-weighted average fill price, and transitions to PARTIALLY_FILLED or
// FILLED accordingly.
func (o *Order) ApplyFilled(qty, price decimal.Decimal, ts time.Time) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"order %s: fill quantity must be positive, got %s", o.OrderID, qty)
	}

	newFilled := o.FilledQty.Add(qty)
	if newFilled.GreaterThan(o.Quantity) {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"order %s: fill quantity %s exceeds remaining %s",
			o.OrderID, qty, o.Quantity.Sub(o.FilledQty))
	}

	to := OrderStatusPartiallyFilled
	if newFilled.Equal(o.Quantity) {
		to = OrderStatusFilled
	}

	if err := o.transition(to, ts); err != nil {
		return err
	}

	// Volume-weighted average across all fills received so far.
	notional := o.AvgFillPrice.Mul(o.FilledQty).Add(price.Mul(qty))
	o.FilledQty = newFilled
	o.AvgFillPrice = notional.Div(newFilled)

	return nil
}

// RemainingQty returns the unfilled quantity.
func (o *Order) RemainingQty() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}
