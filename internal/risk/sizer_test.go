package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, Multiplier("LOW"))
	assert.Equal(t, 1.0, Multiplier("low"))
	assert.Equal(t, 1.0, Multiplier("  Low "))
	assert.Equal(t, multiplierMedium, Multiplier("MEDIUM"))
	assert.Equal(t, multiplierHigh, Multiplier("HIGH"))
	// 未知级别回落到 MEDIUM。
	assert.Equal(t, multiplierMedium, Multiplier("EXTREME"))
	assert.Equal(t, multiplierMedium, Multiplier(""))
	assert.Less(t, Multiplier("HIGH"), Multiplier("MEDIUM"))
}

func TestSizeBuyFormula(t *testing.T) {
	l := testLimits()
	// min(10000*0.25, 1000) = 1000; ×0.9×1.0 = 900
	s := l.SizeBuy(90, 10000, 50000, 1.0)
	assert.InDelta(t, 900.0, s.QuoteValue, 1e-9)
	assert.InDelta(t, 900.0/50000, s.Quantity, 1e-12)
}

func TestSizeBuyClampsToBufferedBalance(t *testing.T) {
	l := testLimits()
	l.MaxTradeFraction = 1
	l.MaxTradeQuote = 100000
	// candidate = 500×1.0×1.0 = 500,但余额扣掉安全垫只剩 450。
	s := l.SizeBuy(100, 500, 100, 1.0)
	assert.InDelta(t, 450.0, s.QuoteValue, 1e-9)
}

func TestSizeBuyBelowMinimumCollapsesToZero(t *testing.T) {
	l := testLimits()
	// min(100*0.25, 1000)=25; ×0.3×1.0 = 7.5 < 10 → 归零而不是下微量单。
	s := l.SizeBuy(30, 100, 100, 1.0)
	assert.Zero(t, s.Quantity)
	assert.Zero(t, s.QuoteValue)
}

func TestSizeBuyDegenerateInputs(t *testing.T) {
	l := testLimits()
	assert.Zero(t, l.SizeBuy(80, 0, 100, 1.0).Quantity)
	assert.Zero(t, l.SizeBuy(80, 1000, 0, 1.0).Quantity)
	assert.Zero(t, l.SizeBuy(0, 1000, 100, 1.0).Quantity)
	// 余额低于安全垫时不能交易。
	assert.Zero(t, l.SizeBuy(100, 40, 100, 1.0).Quantity)
}

func TestSizeSellFormula(t *testing.T) {
	l := testLimits()
	// capUnits = min(2×0.25, 1000/100=10) = 0.5; ×0.8×1.0 = 0.4
	s := l.SizeSell(80, 2, 100, 1.0)
	assert.InDelta(t, 0.4, s.Quantity, 1e-12)
	assert.InDelta(t, 40.0, s.QuoteValue, 1e-9)
}

func TestSizeSellClampsToBufferedHolding(t *testing.T) {
	l := testLimits()
	l.MaxTradeFraction = 1
	l.MaxTradeQuote = 1000000
	s := l.SizeSell(100, 2, 100, 1.0)
	// 上限 2×(1−0.02) = 1.96
	assert.InDelta(t, 1.96, s.Quantity, 1e-12)
}

func TestSizeSellBelowMinimumCollapsesToZero(t *testing.T) {
	l := testLimits()
	// capUnits = min(0.001×0.25, 10) = 0.00025; ×0.5×0.3 = 0.0000375
	// 对应 3.75 的计价额 < 最小交易额 10 → 归零。
	s := l.SizeSell(50, 0.001, 100000, 0.3)
	assert.Zero(t, s.Quantity)
}

func TestRiskMultiplierScalesSize(t *testing.T) {
	l := testLimits()
	low := l.SizeBuy(100, 10000, 100, Multiplier("LOW"))
	high := l.SizeBuy(100, 10000, 100, Multiplier("HIGH"))
	assert.Greater(t, low.QuoteValue, high.QuoteValue)
	assert.InDelta(t, low.QuoteValue*multiplierHigh, high.QuoteValue, 1e-9)
}
