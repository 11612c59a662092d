package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	results []TradeResult
}

func (s *recordingSink) AppendTrade(res TradeResult) {
	s.results = append(s.results, res)
}

type stubFetcher struct {
	snap ExchangeSnapshot
	err  error
}

func (f stubFetcher) FetchPortfolio(context.Context) (ExchangeSnapshot, error) {
	return f.snap, f.err
}

func newTestManager(t *testing.T, sink TradeSink) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	return NewManager(NewFileStore(path, "USD"), []string{"BTC", "ETH"}, sink)
}

func seedUSD(t *testing.T, m *Manager, usd float64) {
	t.Helper()
	res := m.UpdateFromExchange(ExchangeSnapshot{
		Balances: map[string]float64{"USD": usd},
	})
	require.True(t, res.OK, res.Error)
}

func TestExecuteTradeBuyUpdatesBalances(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(t, sink)
	seedUSD(t, m, 1000)

	res := m.ExecuteTrade("BTC", SideBuy, 0.019, 50000)
	require.True(t, res.Success, res.Reason)
	assert.InDelta(t, 950.0, res.QuoteValue, 1e-9)
	assert.InDelta(t, 50.0, m.GetAssetAmount("USD"), 1e-9)
	assert.InDelta(t, 0.019, m.GetAssetAmount("BTC"), 1e-12)
	assert.InDelta(t, 50000.0, m.GetAssetPrice("BTC"), 1e-9)
	require.Len(t, sink.results, 1)
	assert.Equal(t, SideBuy, sink.results[0].Side)
}

func TestExecuteTradeBuyRequiresStrictlyLessThanBalance(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(t, sink)
	seedUSD(t, m, 1000)

	// 成本恰好等于余额也算不足：买入后必须留下非零余量。
	res := m.ExecuteTrade("BTC", SideBuy, 0.02, 50000)
	require.False(t, res.Success)
	assert.Equal(t, "insufficient_usd", res.Reason)
	assert.InDelta(t, 1000.0, m.GetAssetAmount("USD"), 1e-9)
	assert.Zero(t, m.GetAssetAmount("BTC"))
	assert.Empty(t, sink.results)
	assert.Zero(t, m.Snapshot().TradesExecuted)
}

func TestExecuteTradeSellInsufficientAsset(t *testing.T) {
	m := newTestManager(t, nil)
	seedUSD(t, m, 1000)

	res := m.ExecuteTrade("BTC", SideSell, 0.5, 50000)
	require.False(t, res.Success)
	assert.Equal(t, "insufficient_btc", res.Reason)
	assert.InDelta(t, 1000.0, m.GetAssetAmount("USD"), 1e-9)
}

func TestExecuteTradeSellRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	seedUSD(t, m, 1000)
	require.True(t, m.ExecuteTrade("BTC", SideBuy, 0.01, 50000).Success)

	res := m.ExecuteTrade("BTC", SideSell, 0.01, 52000)
	require.True(t, res.Success, res.Reason)
	assert.InDelta(t, 520.0, res.QuoteValue, 1e-9)
	assert.InDelta(t, 1020.0, m.GetAssetAmount("USD"), 1e-9)
	assert.Zero(t, m.GetAssetAmount("BTC"))
}

func TestExecuteTradeRejectsInvalidInputs(t *testing.T) {
	m := newTestManager(t, nil)
	seedUSD(t, m, 1000)

	assert.Equal(t, "cannot_trade_base_currency", m.ExecuteTrade("USD", SideBuy, 1, 1).Reason)
	assert.Equal(t, "invalid_action", m.ExecuteTrade("BTC", TradeSide("short"), 1, 50000).Reason)
	assert.Equal(t, "invalid_amount_or_price", m.ExecuteTrade("BTC", SideBuy, 0, 50000).Reason)
	assert.Equal(t, "invalid_amount_or_price", m.ExecuteTrade("BTC", SideBuy, 0.01, -1).Reason)
	assert.InDelta(t, 1000.0, m.GetAssetAmount("USD"), 1e-9)
}

func TestExecuteTradePreservesPortfolioValueAtTradePrice(t *testing.T) {
	m := newTestManager(t, nil)
	seedUSD(t, m, 1000)
	before := m.Value()

	require.True(t, m.ExecuteTrade("BTC", SideBuy, 0.015, 50000).Success)

	// 价格未变时，买入只是结算货币与资产之间的形态转换。
	assert.InDelta(t, before, m.Value(), 1e-6)
}

func TestAssetAllocationSumsToHundred(t *testing.T) {
	m := newTestManager(t, nil)
	res := m.UpdateFromExchange(ExchangeSnapshot{
		Balances: map[string]float64{"USD": 300, "BTC": 0.01, "ETH": 0.1},
		Prices:   map[string]float64{"BTC": 50000, "ETH": 2000},
	})
	require.True(t, res.OK, res.Error)

	alloc := m.AssetAllocation()
	sum := 0.0
	for _, pct := range alloc {
		assert.GreaterOrEqual(t, pct, 0.0)
		sum += pct
	}
	assert.InDelta(t, 100.0, sum, 1e-6)
	assert.InDelta(t, 50.0, alloc["BTC"], 1e-6)
}

func TestAssetAllocationAllZeroOnEmptyLedger(t *testing.T) {
	m := newTestManager(t, nil)
	for sym, pct := range m.AssetAllocation() {
		assert.Zero(t, pct, sym)
	}
}

func TestUpdateFromExchangeIsPartialTruth(t *testing.T) {
	m := newTestManager(t, nil)
	res := m.UpdateFromExchange(ExchangeSnapshot{
		Balances: map[string]float64{"USD": 500, "BTC": 0.02},
		Prices:   map[string]float64{"BTC": 40000},
	})
	require.True(t, res.OK)

	// 快照缺席的资产保持不变，出现的资产整体覆盖。
	res = m.UpdateFromExchange(ExchangeSnapshot{
		Balances: map[string]float64{"BTC": 0.03},
	})
	require.True(t, res.OK)
	assert.InDelta(t, 500.0, m.GetAssetAmount("USD"), 1e-9)
	assert.InDelta(t, 0.03, m.GetAssetAmount("BTC"), 1e-12)
	assert.InDelta(t, 40000.0, m.GetAssetPrice("BTC"), 1e-9)
}

func TestUpdateFromExchangeSkipsNegativeAndUnknownJunk(t *testing.T) {
	m := newTestManager(t, nil)
	seedUSD(t, m, 100)

	res := m.UpdateFromExchange(ExchangeSnapshot{
		Balances: map[string]float64{"BTC": -5, "": 3},
		Prices:   map[string]float64{"USD": 2, "ETH": -1},
	})
	require.True(t, res.OK)
	assert.Zero(t, m.GetAssetAmount("BTC"))
	assert.InDelta(t, 1.0, m.GetAssetPrice("USD"), 1e-12)
	assert.Zero(t, m.GetAssetPrice("ETH"))
}

func TestLoadPrefersExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	first := NewManager(NewFileStore(path, "USD"), []string{"BTC"}, nil)
	seedUSD(t, first, 750)
	require.True(t, first.ExecuteTrade("BTC", SideBuy, 0.005, 50000).Success)

	second := NewManager(NewFileStore(path, "USD"), []string{"BTC"}, nil)
	led := second.Load(context.Background(), stubFetcher{
		snap: ExchangeSnapshot{Balances: map[string]float64{"USD": 999999}},
	})
	// 文件存在时交易所快照不参与。
	assert.InDelta(t, 500.0, led.AmountOf("USD"), 1e-9)
	assert.InDelta(t, 0.005, led.AmountOf("BTC"), 1e-12)
	assert.Equal(t, int64(1), led.TradesExecuted)
}

func TestLoadFallsBackToExchangeSnapshot(t *testing.T) {
	m := newTestManager(t, nil)
	led := m.Load(context.Background(), stubFetcher{
		snap: ExchangeSnapshot{
			Balances: map[string]float64{"USD": 1200, "BTC": 0.01},
			Prices:   map[string]float64{"BTC": 30000},
		},
	})
	assert.InDelta(t, 1200.0, led.AmountOf("USD"), 1e-9)
	assert.InDelta(t, 1500.0, led.PortfolioValue, 1e-6)
}

func TestLoadDegradesToZeroLedger(t *testing.T) {
	m := newTestManager(t, nil)
	led := m.Load(context.Background(), stubFetcher{err: errors.New("api down")})
	assert.Equal(t, "USD", led.Base)
	assert.Zero(t, led.PortfolioValue)
	assert.Contains(t, led.Assets, "BTC")
	assert.Contains(t, led.Assets, "USD")
}

func TestLoadSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))

	m := NewManager(NewFileStore(path, "USD"), []string{"BTC"}, nil)
	led := m.Load(context.Background(), stubFetcher{
		snap: ExchangeSnapshot{Balances: map[string]float64{"USD": 42}},
	})
	assert.InDelta(t, 42.0, led.AmountOf("USD"), 1e-9)
}
