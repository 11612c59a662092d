package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// 再平衡计算器：把目标配比转换成一组买卖计划。
// 这是规划调用，不会改动账本；把计划真正执行要由调用方逐条喂回 ExecuteTrade。

// RebalanceTolerancePct 偏差在 ±1 个百分点以内视为已平衡（滞回带，防止噪声抖动）。
const RebalanceTolerancePct = 1.0

// targetSumTolerance 目标配比之和允许的浮点误差。
const targetSumTolerance = 0.01

// RebalanceAction 一条再平衡计划。Amount 是资产数量，QuoteValue 是对应的结算货币价值。
type RebalanceAction struct {
	Action     TradeSide `json:"action"`
	Asset      string    `json:"asset"`
	Amount     float64   `json:"amount"`
	QuoteValue float64   `json:"usd_value"`
	Reason     string    `json:"reason"`
}

// ErrInvalidTarget 标记再平衡目标不合法。这是调用方的契约错误，
// 与业务上的"预期拒绝"不同，这里允许向上抛。
type ErrInvalidTarget struct{ msg string }

func (e *ErrInvalidTarget) Error() string { return "invalid rebalance target: " + e.msg }

// CalculateRebalanceActions 计算把当前配比拉向 target 所需的动作列表。
//
// target 的键必须是账本中已存在的资产，值为目标百分比，总和须为 100（允许浮点误差）。
// 超配 1 个百分点以上的非结算资产生成卖出；欠配 1 个百分点以上的生成买入，
// 买入按遍历顺序依次占用当前可用结算货币余额，余额耗尽即截断，
// 计划永远不会要求负余额。
func (m *Manager) CalculateRebalanceActions(target map[string]float64) ([]RebalanceAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
	}

	if err := validateTarget(m.ledger, target); err != nil {
		return nil, err
	}

	l := m.ledger
	current := l.allocation()
	total := l.PortfolioValue
	if total <= 0 {
		return nil, nil
	}

	// 固定遍历顺序，保证同一输入产出同一计划。
	symbols := make([]string, 0, len(target))
	for sym := range target {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	available := l.AmountOf(m.base)
	var actions []RebalanceAction

	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == m.base {
			// 结算货币无法用自身买卖，由其它腿的变化间接调整。
			continue
		}
		diff := current[upper] - target[sym]
		if math.Abs(diff) <= RebalanceTolerancePct {
			continue
		}
		price := l.PriceOf(upper)
		if price <= 0 {
			continue
		}
		if diff > 0 {
			value := diff / 100 * total
			actions = append(actions, RebalanceAction{
				Action:     SideSell,
				Asset:      upper,
				Amount:     value / price,
				QuoteValue: value,
				Reason:     "rebalance",
			})
			continue
		}
		value := -diff / 100 * total
		if value > available {
			value = available
		}
		if value <= 0 {
			continue
		}
		available -= value
		actions = append(actions, RebalanceAction{
			Action:     SideBuy,
			Asset:      upper,
			Amount:     value / price,
			QuoteValue: value,
			Reason:     "rebalance",
		})
	}
	return actions, nil
}

func validateTarget(l *Ledger, target map[string]float64) error {
	if len(target) == 0 {
		return &ErrInvalidTarget{msg: "empty target allocation"}
	}
	sum := 0.0
	for sym, pct := range target {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if _, ok := l.Assets[upper]; !ok {
			return &ErrInvalidTarget{msg: fmt.Sprintf("unknown asset %q", sym)}
		}
		if pct < 0 {
			return &ErrInvalidTarget{msg: fmt.Sprintf("negative allocation for %q", sym)}
		}
		sum += pct
	}
	if math.Abs(sum-100) > targetSumTolerance {
		return &ErrInvalidTarget{msg: fmt.Sprintf("allocations sum to %.4f, want 100", sum)}
	}
	return nil
}
