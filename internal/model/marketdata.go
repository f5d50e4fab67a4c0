package model

import "github.com/shopspring/decimal"

// PriceLevel is one level of an order book side.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBookSnapshot is a depth snapshot for one instrument, generalized
// from a CLOB-style book format to any venue's top-of-book/depth feed.
type OrderBookSnapshot struct {
	InstrumentID InstrumentId
	Bids         []PriceLevel
	Asks         []PriceLevel
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// BestBid returns the highest bid, or zero value if the book is empty.
func (b OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or zero value if the book is empty.
func (b OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// TradeTick is a single public trade print.
type TradeTick struct {
	InstrumentID InstrumentId
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	AggressorSide OrderSide
	TradeID      TradeID
	TsEvent      UnixNanos
}
