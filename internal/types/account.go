package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the single mutable record per venue connection tracking balances
// and margin. It is updated only by account-state events processed in the
// execution engine.
type Account struct {
	TraderID   string          `json:"trader_id"`
	Venue      string          `json:"venue"`
	Currency   string          `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	MarginUsed decimal.Decimal `json:"margin_used"`
	UpdateTime time.Time       `json:"update_time"`
}

// NewAccount returns an account with the given starting balance.
func NewAccount(traderID TraderID, venue, currency string, balance decimal.Decimal, ts time.Time) *Account {
	return &Account{
		TraderID:   traderID.String(),
		Venue:      venue,
		Currency:   currency,
		Balance:    balance,
		MarginUsed: decimal.Zero,
		UpdateTime: ts,
	}
}

// FreeEquity returns the balance not locked as margin.
func (a *Account) FreeEquity() decimal.Decimal {
	return a.Balance.Sub(a.MarginUsed)
}

// ApplyState overwrites the account's balances from an account-state event.
func (a *Account) ApplyState(balance, marginUsed decimal.Decimal, ts time.Time) {
	a.Balance = balance
	a.MarginUsed = marginUsed
	a.UpdateTime = ts
}
