// Package pnl holds the fee and profit/loss arithmetic for leveraged positions.
// Everything here is pure; decimal math keeps the published figures exact.
package pnl

import (
	"positionmonitor/src/model"

	"github.com/shopspring/decimal"
)

var (
	forexFeeRate   = decimal.RequireFromString("0.00007")
	defaultFeeRate = decimal.RequireFromString("0.002")
	hundred        = decimal.NewFromInt(100)
)

// FeeDecimal returns the fee charged for a position of the given leverage.
func FeeDecimal(leverage decimal.Decimal, assetType model.AssetType) decimal.Decimal {
	if assetType == model.AssetTypeForex {
		return forexFeeRate.Mul(leverage)
	}
	return defaultFeeRate.Mul(leverage)
}

// Fee is 0.00007*leverage for forex and 0.002*leverage for every other asset class.
func Fee(leverage float64, assetType model.AssetType) float64 {
	return FeeDecimal(decimal.NewFromFloat(leverage), assetType).InexactFloat64()
}

// ProfitLoss returns the fee-adjusted profit/loss in percent:
//
//	((directional delta * leverage) - fee) / (entry * leverage) * 100
//
// A zero entry*leverage yields 0. FLAT and unknown sides contribute no delta.
func ProfitLoss(entryPrice, currentPrice, leverage float64, side model.OrderType, assetType model.AssetType) float64 {
	return profitLoss(entryPrice, currentPrice, leverage, side, assetType, true)
}

// ProfitLossWithoutFee is ProfitLoss with the fee left out.
func ProfitLossWithoutFee(entryPrice, currentPrice, leverage float64, side model.OrderType, assetType model.AssetType) float64 {
	return profitLoss(entryPrice, currentPrice, leverage, side, assetType, false)
}

func profitLoss(entryPrice, currentPrice, leverage float64, side model.OrderType, assetType model.AssetType, withFee bool) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	current := decimal.NewFromFloat(currentPrice)
	lev := decimal.NewFromFloat(leverage)

	notional := entry.Mul(lev)
	if notional.IsZero() {
		return 0
	}

	var delta decimal.Decimal
	switch side {
	case model.OrderTypeBuy:
		delta = current.Sub(entry)
	case model.OrderTypeSell:
		delta = entry.Sub(current)
	default:
		delta = decimal.Zero
	}

	net := delta.Mul(lev)
	if withFee {
		net = net.Sub(FeeDecimal(lev, assetType))
	}

	return net.Div(notional).Mul(hundred).InexactFloat64()
}

// VenueReturnToPercent converts a venue return ratio (1.05 == +5%) into percent.
// A zero ratio means the venue reported nothing and maps to 0.
func VenueReturnToPercent(ratio float64) float64 {
	if ratio == 0 {
		return 0
	}
	return decimal.NewFromFloat(ratio).Mul(hundred).Sub(hundred).InexactFloat64()
}
