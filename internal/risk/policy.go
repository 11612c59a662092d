package risk

import (
	"context"
	"fmt"

	"coinpilot/internal/analysis/indicator"
	"coinpilot/internal/decision"
	"coinpilot/internal/logger"
)

// 降级原因标签。下游只依赖这些字符串做审计展示，保持稳定。
const (
	ReasonConfidenceTooLowBuy  = "confidence_too_low_for_buy"
	ReasonConfidenceTooLowSell = "confidence_too_low_for_sell"
	ReasonBalanceCheckFailed   = "balance_check_failed"
	ReasonInsufficientQuote    = "insufficient_quote_balance"
	ReasonInsufficientAsset    = "insufficient_asset_balance"
	ReasonMinAllocation        = "min_allocation_protection"
	ReasonMaxQuoteAllocation   = "max_quote_allocation_protection"
	ReasonInternalError        = "internal_error_fallback"
)

// internalErrorConfidence 是管线内部异常兜底时的置信度。
const internalErrorConfidence = 50

// Balances 是风控需要的余额快照。
type Balances struct {
	Quote      float64 // 计价货币余额
	Asset      float64 // 标的持仓数量
	TotalValue float64 // 组合总值（计价货币）
}

// BalanceReader 由组合账本实现。查询失败必须返回 error，
// 管线会把它当成安全降级（HOLD），而不是忽略。
type BalanceReader interface {
	Balances(ctx context.Context, asset string) (Balances, error)
}

// Input 是一次风控评估的输入。
type Input struct {
	Pair      string
	Asset     string
	Price     float64
	Raw       decision.Recommendation
	Signals   []indicator.Signal
	RiskLevel string
}

// Verdict 是管线输出：最终动作、调整后的置信度、仓位与降级原因。
// Reason 为空表示原始建议原样放行。
type Verdict struct {
	Action      decision.Action
	Confidence  int
	Reason      string
	Adjustments []string
	Size        Sizing
}

func (v Verdict) Downgraded(raw decision.Action) bool {
	return raw.IsTrade() && v.Action == decision.ActionHold
}

// Policy 按固定顺序执行各道闸门，任何一道都只能把交易降级为 HOLD，
// 永远不会把 HOLD 升级成交易。
type Policy struct {
	limits   Limits
	balances BalanceReader
}

func NewPolicy(limits Limits, balances BalanceReader) *Policy {
	return &Policy{limits: limits, balances: balances}
}

// Evaluate 执行完整管线。任何内部 panic 都会被捕获并折算成
// HOLD/50 的兜底结论，绝不向调用方抛出。
func (p *Policy) Evaluate(ctx context.Context, in Input) (out Verdict) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("风控管线内部异常，已兜底为 HOLD pair=%s err=%v", in.Pair, r)
			out = Verdict{
				Action:     decision.ActionHold,
				Confidence: internalErrorConfidence,
				Reason:     ReasonInternalError,
			}
		}
	}()

	action := decision.NormalizeAction(string(in.Raw.Action))
	confidence := decision.ClampConfidence(in.Raw.Confidence)

	// 1. HOLD 直通，不做任何门槛或余额检查。
	if action == decision.ActionHold {
		return Verdict{Action: decision.ActionHold, Confidence: confidence}
	}

	// 2. 置信度门槛，买卖独立。
	if action == decision.ActionBuy && confidence < p.limits.ThresholdBuy {
		return p.hold(in, confidence, ReasonConfidenceTooLowBuy)
	}
	if action == decision.ActionSell && confidence < p.limits.ThresholdSell {
		return p.hold(in, confidence, ReasonConfidenceTooLowSell)
	}

	// 3. 指标共振调整，出错回落到原始置信度。
	confidence, note := p.adjustByAlignment(action, confidence, in.Signals)

	// 4. 余额充足性。查询失败是安全降级，不是可忽略的 I/O 错误。
	bal, err := p.balances.Balances(ctx, in.Asset)
	if err != nil {
		logger.Warnf("余额查询失败，降级为 HOLD pair=%s err=%v", in.Pair, err)
		return p.hold(in, confidence, ReasonBalanceCheckFailed)
	}
	if action == decision.ActionBuy && bal.Quote <= p.limits.MinTradeQuote {
		return p.hold(in, confidence, ReasonInsufficientQuote)
	}
	if action == decision.ActionSell && bal.Asset*in.Price <= p.limits.MinTradeQuote {
		return p.hold(in, confidence, ReasonInsufficientAsset)
	}

	// 6 的仓位先算出来，5 的配仓保护要用成交后的投影。
	mult := Multiplier(in.RiskLevel)
	var size Sizing
	if action == decision.ActionBuy {
		size = p.limits.SizeBuy(confidence, bal.Quote, in.Price, mult)
	} else {
		size = p.limits.SizeSell(confidence, bal.Asset, in.Price, mult)
	}

	// 5. 配仓保护只作用于卖出（即计价货币累积）路径。
	if action == decision.ActionSell && size.Quantity > 0 {
		if reason := p.allocationBreach(bal, in.Price, size); reason != "" {
			return p.hold(in, confidence, reason)
		}
	}

	out = Verdict{
		Action:     action,
		Confidence: confidence,
		Size:       size,
	}
	if note != "" {
		out.Adjustments = append(out.Adjustments, note)
	}
	return out
}

func (p *Policy) hold(in Input, confidence int, reason string) Verdict {
	logger.Infof("风控降级 pair=%s raw=%s reason=%s confidence=%d", in.Pair, in.Raw.Action, reason, confidence)
	return Verdict{
		Action:     decision.ActionHold,
		Confidence: confidence,
		Reason:     reason,
	}
}

// adjustByAlignment 统计与建议方向一致的指标占比：
// 非中性指标 ≥ 2/3 同向加分，零同向减分，其余不动。
// 没有可用指标时视为错误路径，放行原始置信度。
func (p *Policy) adjustByAlignment(action decision.Action, confidence int, signals []indicator.Signal) (int, string) {
	want := indicator.StanceBullish
	if action == decision.ActionSell {
		want = indicator.StanceBearish
	}
	agree, decisive := 0, 0
	for _, sig := range signals {
		if sig.Stance == indicator.StanceNeutral {
			continue
		}
		decisive++
		if sig.Stance == want {
			agree++
		}
	}
	if decisive == 0 {
		return confidence, "neutral_indicators"
	}
	frac := float64(agree) / float64(decisive)
	switch {
	case frac >= 2.0/3.0:
		adjusted := decision.ClampConfidence(confidence + p.limits.TrendBonus)
		return adjusted, fmt.Sprintf("trend_aligned(+%d)", p.limits.TrendBonus)
	case agree == 0:
		adjusted := decision.ClampConfidence(confidence - p.limits.CounterTrendPenalty)
		return adjusted, fmt.Sprintf("counter_trend(-%d)", p.limits.CounterTrendPenalty)
	default:
		return confidence, "neutral_indicators"
	}
}

// allocationBreach 用成交后的投影判断配仓保护，不改动账本。
func (p *Policy) allocationBreach(bal Balances, price float64, size Sizing) string {
	if bal.TotalValue <= 0 {
		return ""
	}
	tradeValue := size.Quantity * price
	assetPctAfter := (bal.Asset - size.Quantity) * price / bal.TotalValue * 100
	quotePctAfter := (bal.Quote + tradeValue) / bal.TotalValue * 100
	if assetPctAfter < p.limits.MinAssetAllocationPct {
		return ReasonMinAllocation
	}
	if quotePctAfter > p.limits.MaxQuoteAllocationPct {
		return ReasonMaxQuoteAllocation
	}
	return ""
}
