package types

import (
	"fmt"
	"strings"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// checkValidString validates an identifier value: non-empty and free of whitespace.
func checkValidString(value, field string) error {
	if value == "" {
		return errors.Newf(errors.ErrCodeInvalidIdentifier, "%s must not be empty", field)
	}

	if strings.ContainsAny(value, " \t\r\n") {
		return errors.Newf(errors.ErrCodeInvalidIdentifier, "%s must not contain whitespace: %q", field, value)
	}

	return nil
}

// checkValidPart additionally rejects the separator characters used when
// rendering composite ids.
func checkValidPart(value, field string) error {
	if err := checkValidString(value, field); err != nil {
		return err
	}

	if strings.ContainsAny(value, "-.") {
		return errors.Newf(errors.ErrCodeInvalidIdentifier, "%s must not contain separator characters: %q", field, value)
	}

	return nil
}

// TraderID uniquely identifies one trader within a deployment.
// Rendered as "{name}-{id_tag}", e.g. "TESTER-000".
type TraderID struct {
	name  string
	idTag string
}

// NewTraderID validates the parts and returns an immutable TraderID.
func NewTraderID(name, idTag string) (TraderID, error) {
	if err := checkValidPart(name, "trader name"); err != nil {
		return TraderID{}, err
	}

	if err := checkValidPart(idTag, "trader id_tag"); err != nil {
		return TraderID{}, err
	}

	return TraderID{name: name, idTag: idTag}, nil
}

// Name returns the trader's name component.
func (id TraderID) Name() string { return id.name }

// IDTag returns the trader's order id tag component.
func (id TraderID) IDTag() string { return id.idTag }

// IsZero reports whether the identifier was never constructed.
func (id TraderID) IsZero() bool { return id.name == "" }

func (id TraderID) String() string {
	return fmt.Sprintf("%s-%s", id.name, id.idTag)
}

// StrategyID uniquely identifies a strategy instance, e.g. "EMACross-001".
type StrategyID struct {
	value string
}

// NewStrategyID validates the value and returns an immutable StrategyID.
func NewStrategyID(value string) (StrategyID, error) {
	if err := checkValidString(value, "strategy id"); err != nil {
		return StrategyID{}, err
	}

	return StrategyID{value: value}, nil
}

// IsZero reports whether the identifier was never constructed.
func (id StrategyID) IsZero() bool { return id.value == "" }

func (id StrategyID) String() string { return id.value }

// InstrumentID identifies a tradeable instrument on a venue,
// rendered as "{symbol}.{venue}", e.g. "EURUSD.SIM".
type InstrumentID struct {
	symbol string
	venue  string
}

// NewInstrumentID validates the parts and returns an immutable InstrumentID.
func NewInstrumentID(symbol, venue string) (InstrumentID, error) {
	if err := checkValidPart(symbol, "symbol"); err != nil {
		return InstrumentID{}, err
	}

	if err := checkValidPart(venue, "venue"); err != nil {
		return InstrumentID{}, err
	}

	return InstrumentID{symbol: symbol, venue: venue}, nil
}

// Symbol returns the instrument's symbol component.
func (id InstrumentID) Symbol() string { return id.symbol }

// Venue returns the instrument's venue component.
func (id InstrumentID) Venue() string { return id.venue }

// IsZero reports whether the identifier was never constructed.
func (id InstrumentID) IsZero() bool { return id.symbol == "" }

func (id InstrumentID) String() string {
	return fmt.Sprintf("%s.%s", id.symbol, id.venue)
}
