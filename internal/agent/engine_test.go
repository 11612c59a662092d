package agent

import (
	"context"
	"path/filepath"
	"testing"

	"coinpilot/internal/gateway/exchange"
	"coinpilot/internal/gateway/provider"
	"coinpilot/internal/ledger"
	"coinpilot/internal/market"
	"coinpilot/internal/profile"
	"coinpilot/internal/risk"
	"coinpilot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
	vision bool
}

func (m *MockProvider) ID() string           { return "mock:model" }
func (m *MockProvider) SupportsVision() bool { return m.vision }
func (m *MockProvider) Call(ctx context.Context, payload provider.ChatPayload) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

type MockSource struct {
	mock.Mock
}

func (m *MockSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]market.Candle), args.Error(1)
}
func (m *MockSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}
func (m *MockSource) Close() error { return nil }

type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) Name() string { return "mock" }
func (m *MockExchange) GetPortfolio(ctx context.Context) (exchange.BalanceSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(exchange.BalanceSnapshot), args.Error(1)
}
func (m *MockExchange) GetProductPrice(ctx context.Context, pair string) (float64, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(float64), args.Error(1)
}
func (m *MockExchange) PlaceMarketOrder(ctx context.Context, pair string, side exchange.Side, qty float64) (exchange.OrderResult, error) {
	args := m.Called(ctx, pair, side, qty)
	return args.Get(0).(exchange.OrderResult), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) AppendDecision(ctx context.Context, rec store.DecisionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
func (m *MockStore) ListDecisions(ctx context.Context, q store.DecisionQuery) ([]store.DecisionRecord, int64, error) {
	return nil, 0, nil
}
func (m *MockStore) AppendTrade(ctx context.Context, rec store.TradeRecord) error { return nil }
func (m *MockStore) ListTrades(ctx context.Context, limit int) ([]store.TradeRecord, error) {
	return nil, nil
}
func (m *MockStore) AppendEquity(ctx context.Context, point store.EquityPoint) error {
	args := m.Called(ctx, point)
	return args.Error(0)
}
func (m *MockStore) EquitySeries(ctx context.Context, limit int) ([]store.EquityPoint, error) {
	return nil, nil
}
func (m *MockStore) Close() error { return nil }

func testManager(t *testing.T, quote float64) *ledger.Manager {
	t.Helper()
	fs := &ledger.FileStore{Path: filepath.Join(t.TempDir(), "ledger.json"), Base: "USDT"}
	pm := ledger.NewManager(fs, []string{"BTC"}, nil)
	pm.Load(context.Background(), nil)
	res := pm.UpdateFromExchange(ledger.ExchangeSnapshot{Balances: map[string]float64{"USDT": quote}})
	require.True(t, res.OK)
	return pm
}

func testProfiles(t *testing.T) *profile.Manager {
	t.Helper()
	m, err := profile.NewManager("", "MEDIUM")
	require.NoError(t, err)
	return m
}

func risingCandles(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := 40000.0
	for i := 0; i < n; i++ {
		price *= 1.001
		out = append(out, market.Candle{
			OpenTime:  int64(i) * 3600_000,
			CloseTime: int64(i+1)*3600_000 - 1,
			Open:      price * 0.999,
			High:      price * 1.002,
			Low:       price * 0.997,
			Close:     price,
			Volume:    10 + float64(i%5),
		})
	}
	return out
}

func testLimits() risk.Limits {
	return risk.Limits{
		ThresholdBuy:          70,
		ThresholdSell:         60,
		TrendBonus:            10,
		CounterTrendPenalty:   15,
		MinAssetAllocationPct: 5,
		MaxQuoteAllocationPct: 95,
		MinTradeQuote:         10,
		MaxTradeQuote:         1000,
		MaxTradeFraction:      0.25,
		SafetyBufferQuote:     50,
		SafetyBufferFrac:      0.02,
	}
}

func TestRunCycleExecutesApprovedBuy(t *testing.T) {
	pm := testManager(t, 10000)
	prov := &MockProvider{}
	src := &MockSource{}
	exch := &MockExchange{}
	st := &MockStore{}

	src.On("FetchHistory", mock.Anything, "BTC/USDT", "1h", 300).Return(risingCandles(300), nil)
	src.On("LatestPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	prov.On("Call", mock.Anything, mock.Anything).
		Return(`{"action":"BUY","confidence":85,"reasoning":"momentum continuation"}`, nil)
	exch.On("PlaceMarketOrder", mock.Anything, "BTC/USDT", exchange.SideBuy, mock.Anything).
		Return(exchange.OrderResult{Success: true, OrderID: "1", ExecutedPrice: 50000, ExecutedQty: 0.01}, nil)
	st.On("AppendDecision", mock.Anything, mock.MatchedBy(func(rec store.DecisionRecord) bool {
		return rec.Pair == "BTC/USDT" && rec.RawAction == "BUY" && rec.FinalAction == "BUY"
	})).Return(nil)
	st.On("AppendEquity", mock.Anything, mock.Anything).Return(nil)

	eng := NewEngine(Options{
		Pairs:      []string{"BTC/USDT"},
		Interval:   "1h",
		KlineLimit: 300,
		Simulation: true,
	}, pm, testLimits(), prov, src, exch, st, nil, nil, testProfiles(t))

	eng.RunCycle(context.Background())

	assert.InDelta(t, 0.01, pm.GetAssetAmount("BTC"), 1e-12)
	assert.InDelta(t, 10000-500, pm.GetAssetAmount("USDT"), 1e-9)
	st.AssertExpectations(t)
	exch.AssertExpectations(t)
}

func TestRunCycleDowngradesLowConfidenceBuy(t *testing.T) {
	pm := testManager(t, 10000)
	prov := &MockProvider{}
	src := &MockSource{}
	exch := &MockExchange{}
	st := &MockStore{}

	src.On("FetchHistory", mock.Anything, "BTC/USDT", "1h", 300).Return(risingCandles(300), nil)
	src.On("LatestPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	prov.On("Call", mock.Anything, mock.Anything).
		Return(`{"action":"BUY","confidence":55,"reasoning":"weak setup"}`, nil)
	st.On("AppendDecision", mock.Anything, mock.MatchedBy(func(rec store.DecisionRecord) bool {
		return rec.RawAction == "BUY" && rec.FinalAction == "HOLD" &&
			rec.Reason == risk.ReasonConfidenceTooLowBuy
	})).Return(nil)
	st.On("AppendEquity", mock.Anything, mock.Anything).Return(nil)

	eng := NewEngine(Options{
		Pairs:      []string{"BTC/USDT"},
		Interval:   "1h",
		KlineLimit: 300,
		Simulation: true,
	}, pm, testLimits(), prov, src, exch, st, nil, nil, testProfiles(t))

	eng.RunCycle(context.Background())

	exch.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, pm.GetAssetAmount("BTC"))
	st.AssertExpectations(t)
}

func TestRunCycleIsolatesPairFailures(t *testing.T) {
	pm := testManager(t, 10000)
	prov := &MockProvider{}
	src := &MockSource{}
	exch := &MockExchange{}
	st := &MockStore{}

	// 第一个对子拉行情失败，第二个照常决策。
	src.On("FetchHistory", mock.Anything, "ETH/USDT", "1h", 300).
		Return(nil, assert.AnError)
	src.On("FetchHistory", mock.Anything, "BTC/USDT", "1h", 300).Return(risingCandles(300), nil)
	src.On("LatestPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	prov.On("Call", mock.Anything, mock.Anything).
		Return(`{"action":"HOLD","confidence":40,"reasoning":"chop"}`, nil)
	st.On("AppendDecision", mock.Anything, mock.MatchedBy(func(rec store.DecisionRecord) bool {
		return rec.Pair == "BTC/USDT" && rec.FinalAction == "HOLD"
	})).Return(nil)
	st.On("AppendEquity", mock.Anything, mock.Anything).Return(nil)

	eng := NewEngine(Options{
		Pairs:      []string{"ETH/USDT", "BTC/USDT"},
		Interval:   "1h",
		KlineLimit: 300,
		Simulation: true,
	}, pm, testLimits(), prov, src, exch, st, nil, nil, testProfiles(t))

	eng.RunCycle(context.Background())

	st.AssertExpectations(t)
}

func TestRefreshPortfolioSimulationKeepsLedgerAuthoritative(t *testing.T) {
	pm := testManager(t, 10000)
	tr := pm.ExecuteTrade("BTC", ledger.SideBuy, 0.1, 50000)
	require.True(t, tr.Success)
	require.InDelta(t, 5000, pm.GetAssetAmount("USDT"), 1e-9)

	prov := &MockProvider{}
	src := &MockSource{}
	exch := &MockExchange{}

	eng := NewEngine(Options{
		Pairs:      []string{"BTC/USDT"},
		Interval:   "1h",
		KlineLimit: 300,
		Simulation: true,
	}, pm, testLimits(), prov, src, exch, nil, nil, nil, testProfiles(t))

	// 模拟盘刷新不得把初始余额灌回账本。
	res := eng.RefreshPortfolio(context.Background())

	assert.True(t, res.OK)
	assert.Zero(t, res.Updated)
	assert.InDelta(t, 5000, pm.GetAssetAmount("USDT"), 1e-9)
	assert.InDelta(t, 0.1, pm.GetAssetAmount("BTC"), 1e-12)
	assert.InDelta(t, 10000, pm.Value(), 1e-6)
	exch.AssertNotCalled(t, "GetPortfolio", mock.Anything)
}

func TestRefreshPortfolioLiveMergesSnapshot(t *testing.T) {
	pm := testManager(t, 10000)
	prov := &MockProvider{}
	src := &MockSource{}
	exch := &MockExchange{}
	exch.On("GetPortfolio", mock.Anything).Return(exchange.BalanceSnapshot{
		Balances: map[string]float64{"USDT": 8000, "BTC": 0.05},
		Prices:   map[string]float64{"BTC": 52000},
	}, nil)

	eng := NewEngine(Options{
		Pairs:      []string{"BTC/USDT"},
		Interval:   "1h",
		KlineLimit: 300,
	}, pm, testLimits(), prov, src, exch, nil, nil, nil, testProfiles(t))

	res := eng.RefreshPortfolio(context.Background())

	assert.True(t, res.OK)
	assert.InDelta(t, 8000, pm.GetAssetAmount("USDT"), 1e-9)
	assert.InDelta(t, 0.05, pm.GetAssetAmount("BTC"), 1e-12)
	exch.AssertExpectations(t)
}

func TestRunCycleUnparseableOutputFallsBackToHold(t *testing.T) {
	pm := testManager(t, 10000)
	prov := &MockProvider{}
	src := &MockSource{}
	exch := &MockExchange{}
	st := &MockStore{}

	src.On("FetchHistory", mock.Anything, "BTC/USDT", "1h", 300).Return(risingCandles(300), nil)
	src.On("LatestPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	prov.On("Call", mock.Anything, mock.Anything).Return("I cannot decide right now.", nil)
	st.On("AppendDecision", mock.Anything, mock.MatchedBy(func(rec store.DecisionRecord) bool {
		return rec.FinalAction == "HOLD" && rec.RawConfidence == 50
	})).Return(nil)
	st.On("AppendEquity", mock.Anything, mock.Anything).Return(nil)

	eng := NewEngine(Options{
		Pairs:      []string{"BTC/USDT"},
		Interval:   "1h",
		KlineLimit: 300,
		Simulation: true,
	}, pm, testLimits(), prov, src, exch, st, nil, nil, testProfiles(t))

	eng.RunCycle(context.Background())

	exch.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	st.AssertExpectations(t)
}
