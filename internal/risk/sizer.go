package risk

import "math"

// Sizing 是仓位计算结果。Quantity 为 0 表示不交易，调用方不得下微量单。
type Sizing struct {
	Quantity   float64 `json:"quantity"`
	QuoteValue float64 `json:"quote_value"`
}

// SizeBuy 计算买入仓位：min(余额×比例上限, 绝对上限)×(置信度/100)×风险乘数，
// 再夹到 [最小交易额, 余额−安全垫]。低于最小交易额直接归零。
func (l Limits) SizeBuy(confidence int, quoteBalance, price, multiplier float64) Sizing {
	if price <= 0 || quoteBalance <= 0 || confidence <= 0 {
		return Sizing{}
	}
	candidate := math.Min(quoteBalance*l.MaxTradeFraction, l.MaxTradeQuote)
	candidate *= float64(confidence) / 100.0
	candidate *= multiplier

	upper := quoteBalance - l.SafetyBufferQuote
	if upper <= 0 {
		return Sizing{}
	}
	if candidate > upper {
		candidate = upper
	}
	if candidate < l.MinTradeQuote {
		return Sizing{}
	}
	return Sizing{
		Quantity:   candidate / price,
		QuoteValue: candidate,
	}
}

// SizeSell 计算卖出仓位，单位是资产数量：
// min(持仓×比例上限, 绝对上限/价格)×(置信度/100)×风险乘数，
// 夹到 [最小交易额对应数量, 持仓×(1−安全垫比例)]。低于最小交易额归零。
func (l Limits) SizeSell(confidence int, assetHeld, price, multiplier float64) Sizing {
	if price <= 0 || assetHeld <= 0 || confidence <= 0 {
		return Sizing{}
	}
	capUnits := assetHeld * l.MaxTradeFraction
	if l.MaxTradeQuote > 0 {
		capUnits = math.Min(capUnits, l.MaxTradeQuote/price)
	}
	candidate := capUnits * float64(confidence) / 100.0 * multiplier

	upper := assetHeld * (1 - l.SafetyBufferFrac)
	if upper <= 0 {
		return Sizing{}
	}
	if candidate > upper {
		candidate = upper
	}
	minUnits := l.MinTradeQuote / price
	if candidate < minUnits {
		return Sizing{}
	}
	return Sizing{
		Quantity:   candidate,
		QuoteValue: candidate * price,
	}
}
