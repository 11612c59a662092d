package risk

import "strings"

// Limits 汇总风控管线与仓位计算的全部阈值，启动时由配置装配，
// 之后视为只读，便于在测试里用合成配置驱动单个阶段。
type Limits struct {
	// 置信度门槛，买卖独立配置，默认偏向 SELL。
	ThresholdBuy  int
	ThresholdSell int

	// 指标共振加减分。
	TrendBonus          int
	CounterTrendPenalty int

	// 配仓保护：资产最低占比下限与计价货币占比上限（百分比）。
	MinAssetAllocationPct float64
	MaxQuoteAllocationPct float64

	// 仓位边界，以计价货币计。
	MinTradeQuote     float64
	MaxTradeQuote     float64
	MaxTradeFraction  float64
	SafetyBufferQuote float64
	SafetyBufferFrac  float64
}

const (
	multiplierLow    = 1.0
	multiplierMedium = 0.6
	multiplierHigh   = 0.3
)

// Multiplier 把粗粒度风险级别折算成仓位乘数。
// 大小写不敏感，未知级别回落到 MEDIUM。
func Multiplier(level string) float64 {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "LOW":
		return multiplierLow
	case "HIGH":
		return multiplierHigh
	case "MEDIUM":
		return multiplierMedium
	default:
		return multiplierMedium
	}
}
