package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededManager(t *testing.T, balances, prices map[string]float64) *Manager {
	t.Helper()
	m := newTestManager(t, nil)
	res := m.UpdateFromExchange(ExchangeSnapshot{Balances: balances, Prices: prices})
	require.True(t, res.OK, res.Error)
	return m
}

func TestRebalanceSellsOverweightAsset(t *testing.T) {
	// BTC 70% / USD 30%，目标 50/50：应该卖出 20% 的价值。
	m := seededManager(t,
		map[string]float64{"USD": 3000, "BTC": 0.14},
		map[string]float64{"BTC": 50000},
	)

	actions, err := m.CalculateRebalanceActions(map[string]float64{"BTC": 50, "USD": 50})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, SideSell, actions[0].Action)
	assert.Equal(t, "BTC", actions[0].Asset)
	assert.InDelta(t, 2000.0, actions[0].QuoteValue, 1e-6)
	assert.InDelta(t, 0.04, actions[0].Amount, 1e-9)
}

func TestRebalanceWithinToleranceDoesNothing(t *testing.T) {
	m := seededManager(t,
		map[string]float64{"USD": 3000, "BTC": 0.14},
		map[string]float64{"BTC": 50000},
	)

	// 偏差 0.5 个百分点，在滞回带内。
	actions, err := m.CalculateRebalanceActions(map[string]float64{"BTC": 70.5, "USD": 29.5})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestRebalanceBuysAreClippedToAvailableQuote(t *testing.T) {
	// USD 10% / BTC 45% / ETH 45%。目标把 BTC 拉到 70% 需要 250，
	// 但手上只有 100：计划被截断，不会要求负余额。
	m := seededManager(t,
		map[string]float64{"USD": 100, "BTC": 0.009, "ETH": 0.15},
		map[string]float64{"BTC": 50000, "ETH": 3000},
	)

	actions, err := m.CalculateRebalanceActions(map[string]float64{"BTC": 70, "ETH": 30, "USD": 0})
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, SideBuy, actions[0].Action)
	assert.Equal(t, "BTC", actions[0].Asset)
	assert.InDelta(t, 100.0, actions[0].QuoteValue, 1e-6)
	assert.InDelta(t, 0.002, actions[0].Amount, 1e-9)

	assert.Equal(t, SideSell, actions[1].Action)
	assert.Equal(t, "ETH", actions[1].Asset)
	assert.InDelta(t, 150.0, actions[1].QuoteValue, 1e-6)
	assert.InDelta(t, 0.05, actions[1].Amount, 1e-9)
}

func TestRebalanceIsDeterministic(t *testing.T) {
	m := seededManager(t,
		map[string]float64{"USD": 1000, "BTC": 0.02, "ETH": 0.5},
		map[string]float64{"BTC": 50000, "ETH": 2000},
	)
	target := map[string]float64{"BTC": 30, "ETH": 40, "USD": 30}

	first, err := m.CalculateRebalanceActions(target)
	require.NoError(t, err)
	second, err := m.CalculateRebalanceActions(target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRebalancePlanningDoesNotMutateLedger(t *testing.T) {
	m := seededManager(t,
		map[string]float64{"USD": 3000, "BTC": 0.14},
		map[string]float64{"BTC": 50000},
	)
	before := m.Snapshot()

	_, err := m.CalculateRebalanceActions(map[string]float64{"BTC": 50, "USD": 50})
	require.NoError(t, err)

	after := m.Snapshot()
	assert.Equal(t, before.Assets["BTC"].Amount, after.Assets["BTC"].Amount)
	assert.Equal(t, before.Assets["USD"].Amount, after.Assets["USD"].Amount)
	assert.Equal(t, before.TradesExecuted, after.TradesExecuted)
}

func TestRebalanceTargetValidation(t *testing.T) {
	m := seededManager(t,
		map[string]float64{"USD": 1000, "BTC": 0.01},
		map[string]float64{"BTC": 50000},
	)

	var invalid *ErrInvalidTarget

	_, err := m.CalculateRebalanceActions(nil)
	require.ErrorAs(t, err, &invalid)

	_, err = m.CalculateRebalanceActions(map[string]float64{"DOGE": 100})
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "DOGE")

	_, err = m.CalculateRebalanceActions(map[string]float64{"BTC": -10, "USD": 110})
	require.ErrorAs(t, err, &invalid)

	_, err = m.CalculateRebalanceActions(map[string]float64{"BTC": 60, "USD": 60})
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "120")
}
