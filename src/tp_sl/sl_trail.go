package tp_sl

import (
	"positionmonitor/src/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TrailStopLoss ratchets the stop-loss of an open trailing position.
//
// BUY:
// - gate: bid above the current entry price
// - level: bid * stopLoss/100
// - update: stopLoss = level/entry*100, entry = bid
//
// SELL:
// - gate: ask below the current entry price
// - level: ask * stopLoss/100
// - update: stopLoss = level/entry*100, entry = ask
//
// Zero quotes, a zero entry or a zero stop-loss never move anything.
func TrailStopLoss(
	side model.OrderType,
	entryPrice, stopLoss, bid, ask float64,
) (newEntry, newStopLoss float64, moved bool) {
	if bid == 0 || ask == 0 || entryPrice == 0 || stopLoss == 0 {
		return entryPrice, stopLoss, false
	}

	entry := decimal.NewFromFloat(entryPrice)
	sl := decimal.NewFromFloat(stopLoss)

	var price decimal.Decimal
	switch side {
	case model.OrderTypeBuy:
		price = decimal.NewFromFloat(bid)
		if !price.GreaterThan(entry) {
			return entryPrice, stopLoss, false
		}
	case model.OrderTypeSell:
		price = decimal.NewFromFloat(ask)
		if !price.LessThan(entry) {
			return entryPrice, stopLoss, false
		}
	default:
		return entryPrice, stopLoss, false
	}

	level := price.Mul(sl.Div(hundred))
	next := level.Div(entry).Mul(hundred)

	return price.InexactFloat64(), next.InexactFloat64(), true
}

// TrailLimitEntry moves a pending limit entry along with a favourable price.
//
// BUY: bid below initialPrice lowers entry by bid*limitOrder and resets initialPrice to bid.
// SELL: ask above initialPrice raises entry by ask*limitOrder and resets initialPrice to ask.
func TrailLimitEntry(
	side model.OrderType,
	entryPrice, initialPrice, limitOrder, bid, ask float64,
) (newEntry, newInitial float64, moved bool) {
	if limitOrder == 0 || initialPrice == 0 || bid == 0 || ask == 0 {
		return entryPrice, initialPrice, false
	}

	entry := decimal.NewFromFloat(entryPrice)
	initial := decimal.NewFromFloat(initialPrice)
	offset := decimal.NewFromFloat(limitOrder)

	switch side {
	case model.OrderTypeBuy:
		b := decimal.NewFromFloat(bid)
		if !b.LessThan(initial) {
			return entryPrice, initialPrice, false
		}
		return entry.Sub(b.Mul(offset)).InexactFloat64(), bid, true

	case model.OrderTypeSell:
		a := decimal.NewFromFloat(ask)
		if !a.GreaterThan(initial) {
			return entryPrice, initialPrice, false
		}
		return entry.Add(a.Mul(offset)).InexactFloat64(), ask, true

	default:
		return entryPrice, initialPrice, false
	}
}

// LimitTriggered reports whether a pending limit order fills at the current quote.
// BUY fills when bid <= entry, SELL when ask >= entry. The returned price is the
// side of the book the order fills against.
func LimitTriggered(side model.OrderType, entryPrice, bid, ask float64) (fillPrice float64, triggered bool) {
	if bid == 0 || ask == 0 {
		return 0, false
	}
	switch side {
	case model.OrderTypeBuy:
		if bid <= entryPrice {
			return bid, true
		}
	case model.OrderTypeSell:
		if ask >= entryPrice {
			return ask, true
		}
	}
	return 0, false
}

// CloseOnTakeProfit is false for trailing positions, non-positive P/L or a disabled
// take-profit; otherwise it reports profitLoss >= takeProfit.
func CloseOnTakeProfit(trailing bool, profitLoss, takeProfit float64) bool {
	if trailing || profitLoss <= 0 || takeProfit <= 0 {
		return false
	}
	return profitLoss >= takeProfit
}

// CloseOnStopLoss is false for trailing positions, positive P/L or a disabled
// stop-loss; otherwise it reports profitLoss <= -stopLoss.
func CloseOnStopLoss(trailing bool, profitLoss, stopLoss float64) bool {
	if trailing || profitLoss > 0 || stopLoss <= 0 {
		return false
	}
	return profitLoss <= -stopLoss
}
