package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument is the static definition the Cache owns for a tradeable
// symbol: precision, increments, lot sizing, and fee rates. It is replaced
// atomically when a venue changes tick size — callers must rebuild any
// cached order-book at the new precision afterward.
type Instrument struct {
	ID InstrumentId

	PricePrecision    int32
	SizePrecision     int32
	PriceIncrement    decimal.Decimal
	SizeIncrement     decimal.Decimal
	LotSize           decimal.Decimal
	MinQuantity       decimal.Decimal
	MaxQuantity       decimal.Decimal
	Multiplier        decimal.Decimal
	MakerFee          decimal.Decimal
	TakerFee          decimal.Decimal
	QuoteCurrency     string
	SettlementCurrency string
	ExpirationNs      UnixNanos // 0 = perpetual/never
}

// RoundPrice rounds p to the instrument's price precision.
func (i Instrument) RoundPrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(i.PricePrecision)
}

// RoundSize rounds q to the instrument's size precision.
func (i Instrument) RoundSize(q decimal.Decimal) decimal.Decimal {
	return q.Round(i.SizePrecision)
}

// ValidatePrice reports whether p matches the instrument's current price
// precision exactly (no silent truncation is ever applied by the engine).
func (i Instrument) ValidatePrice(p decimal.Decimal) error {
	if !p.Round(i.PricePrecision).Equal(p) {
		return fmt.Errorf("price %s exceeds precision %d for %s", p, i.PricePrecision, i.ID)
	}
	return nil
}

// ValidateQuantity checks precision and the instrument's min/max bounds.
func (i Instrument) ValidateQuantity(q decimal.Decimal) error {
	if !q.Round(i.SizePrecision).Equal(q) {
		return fmt.Errorf("quantity %s exceeds precision %d for %s", q, i.SizePrecision, i.ID)
	}
	if q.LessThan(i.MinQuantity) {
		return fmt.Errorf("quantity %s below minimum %s for %s", q, i.MinQuantity, i.ID)
	}
	if !i.MaxQuantity.IsZero() && q.GreaterThan(i.MaxQuantity) {
		return fmt.Errorf("quantity %s above maximum %s for %s", q, i.MaxQuantity, i.ID)
	}
	return nil
}
