package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	PositionSideFlat  PositionSide = "FLAT"
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Position aggregates the fills for one instrument/strategy pair. It is owned
// and mutated only by the execution engine's processing task; all other
// components read snapshots.
type Position struct {
	PositionID    string          `json:"position_id"`
	TraderID      string          `json:"trader_id"`
	StrategyID    string          `json:"strategy_id"`
	InstrumentID  string          `json:"instrument_id"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	OpenTime      time.Time       `json:"open_time"`
	UpdateTime    time.Time       `json:"update_time"`
}

// NewPosition returns a FLAT position ready to absorb fills.
func NewPosition(positionID string, traderID TraderID, strategyID StrategyID, instrumentID InstrumentID, ts time.Time) *Position {
	return &Position{
		PositionID:    positionID,
		TraderID:      traderID.String(),
		StrategyID:    strategyID.String(),
		InstrumentID:  instrumentID.String(),
		Side:          PositionSideFlat,
		Quantity:      decimal.Zero,
		AvgEntryPrice: decimal.Zero,
		RealizedPnL:   decimal.Zero,
		OpenTime:      ts,
		UpdateTime:    ts,
	}
}

// IsOpen reports whether the position has exposure.
func (p *Position) IsOpen() bool {
	return p.Side != PositionSideFlat
}

// signedQty maps a fill to a signed quantity: buys are positive, sells negative.
func signedQty(side OrderSide, qty decimal.Decimal) decimal.Decimal {
	if side == OrderSideSell {
		return qty.Neg()
	}

	return qty
}

func (p *Position) signedNet() decimal.Decimal {
	if p.Side == PositionSideShort {
		return p.Quantity.Neg()
	}

	return p.Quantity
}

// ApplyFill folds one fill into the position, updating exposure, the average
// entry price, and realized PnL when the fill reduces or flips exposure.
func (p *Position) ApplyFill(side OrderSide, qty, price decimal.Decimal, ts time.Time) {
	net := p.signedNet()
	fill := signedQty(side, qty)
	p.UpdateTime = ts

	switch {
	case net.IsZero():
		// Opening from flat.
		p.AvgEntryPrice = price
		p.OpenTime = ts

	case net.Sign() == fill.Sign():
		// Increasing exposure: re-weight the average entry price.
		notional := p.AvgEntryPrice.Mul(net.Abs()).Add(price.Mul(fill.Abs()))
		p.AvgEntryPrice = notional.Div(net.Abs().Add(fill.Abs()))

	default:
		// Reducing, closing, or flipping exposure: realize PnL on the closed
		// quantity at the difference between fill price and entry price.
		closed := decimal.Min(net.Abs(), fill.Abs())

		diff := price.Sub(p.AvgEntryPrice)
		if net.Sign() < 0 {
			diff = diff.Neg()
		}

		p.RealizedPnL = p.RealizedPnL.Add(diff.Mul(closed))

		if fill.Abs().GreaterThan(net.Abs()) {
			// Flip: the remainder opens a new exposure at the fill price.
			p.AvgEntryPrice = price
			p.OpenTime = ts
		}
	}

	newNet := net.Add(fill)
	p.Quantity = newNet.Abs()

	switch newNet.Sign() {
	case 0:
		p.Side = PositionSideFlat
		p.AvgEntryPrice = decimal.Zero
	case 1:
		p.Side = PositionSideLong
	default:
		p.Side = PositionSideShort
	}
}
