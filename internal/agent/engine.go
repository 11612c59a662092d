package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coinpilot/internal/analysis/indicator"
	"coinpilot/internal/analysis/visual"
	"coinpilot/internal/decision"
	"coinpilot/internal/gateway/exchange"
	"coinpilot/internal/gateway/notifier"
	"coinpilot/internal/gateway/provider"
	"coinpilot/internal/ledger"
	"coinpilot/internal/logger"
	"coinpilot/internal/market"
	"coinpilot/internal/pkg/circuit"
	symbolpkg "coinpilot/internal/pkg/symbol"
	"coinpilot/internal/profile"
	"coinpilot/internal/risk"
	"coinpilot/internal/store"
	"coinpilot/internal/store/llmlog"
)

// 中文说明：
// Engine 是决策轮的编排者：拉行情 → 要建议 → 过风控 → 定仓位 → 执行 → 落库。
// 交易对串行处理，单个对子失败只跳过本轮，不拖垮整个周期。

const (
	breakerThreshold = 5
	breakerCooldown  = 2 * time.Minute
)

// Options 引擎的静态配置。
type Options struct {
	Pairs      []string
	Interval   string
	KlineLimit int
	PairDelay  time.Duration
	Simulation bool
}

type Engine struct {
	opts     Options
	pm       *ledger.Manager
	policy   *risk.Policy
	provider provider.ModelProvider
	source   market.Source
	exch     exchange.Exchange
	store    store.Store
	llmlog   *llmlog.Store
	notify   notifier.TextNotifier
	profiles *profile.Manager

	breakers map[string]*circuit.CircuitBreaker
}

func NewEngine(
	opts Options,
	pm *ledger.Manager,
	limits risk.Limits,
	mp provider.ModelProvider,
	source market.Source,
	exch exchange.Exchange,
	st store.Store,
	llmStore *llmlog.Store,
	notify notifier.TextNotifier,
	profiles *profile.Manager,
) *Engine {
	if notify == nil {
		notify = notifier.Noop{}
	}
	e := &Engine{
		opts:     opts,
		pm:       pm,
		provider: mp,
		source:   source,
		exch:     exch,
		store:    st,
		llmlog:   llmStore,
		notify:   notify,
		profiles: profiles,
		breakers: make(map[string]*circuit.CircuitBreaker, len(opts.Pairs)),
	}
	e.policy = risk.NewPolicy(limits, balanceReader{pm: pm, exch: exch, live: !opts.Simulation})
	for _, pair := range opts.Pairs {
		key := symbolpkg.Normalize(pair)
		e.breakers[key] = circuit.NewCircuitBreaker(key, breakerThreshold, breakerCooldown)
	}
	return e
}

// RunCycle 执行一轮完整决策：所有交易对串行，一个失败不影响其它。
func (e *Engine) RunCycle(ctx context.Context) {
	traceID := uuid.NewString()
	logger.Infof("决策轮开始 trace=%s pairs=%d simulation=%v", traceID, len(e.opts.Pairs), e.opts.Simulation)
	for i, pair := range e.opts.Pairs {
		if i > 0 && e.opts.PairDelay > 0 {
			select {
			case <-ctx.Done():
				logger.Warnf("决策轮被取消 trace=%s", traceID)
				return
			case <-time.After(e.opts.PairDelay):
			}
		}
		key := symbolpkg.Normalize(pair)
		breaker := e.breakers[key]
		if breaker != nil && !breaker.Allow() {
			logger.Warnf("熔断中，跳过 pair=%s", key)
			continue
		}
		err := e.processPairSafe(ctx, traceID, key)
		if breaker != nil {
			if err != nil {
				breaker.RecordFailure()
			} else {
				breaker.RecordSuccess()
			}
		}
		if err != nil {
			logger.Errorf("交易对处理失败，跳到下一个 pair=%s err=%v", key, err)
		}
	}
	e.snapshotEquity(ctx)
	logger.Infof("决策轮结束 trace=%s", traceID)
}

// processPairSafe 是每个交易对的错误边界，panic 也只损失当前对子。
func (e *Engine) processPairSafe(ctx context.Context, traceID, pair string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.processPair(ctx, traceID, pair)
}

func (e *Engine) processPair(ctx context.Context, traceID, pair string) error {
	sym := symbolpkg.Parse(pair)
	if sym.Base == "" {
		return fmt.Errorf("invalid pair %q", pair)
	}
	asset := sym.Base
	prof := e.profiles.Get(pair)

	interval := strings.TrimSpace(prof.Interval)
	if interval == "" {
		interval = e.opts.Interval
	}
	limit := prof.KlineLimit
	if limit <= 0 {
		limit = e.opts.KlineLimit
	}

	candles, err := e.source.FetchHistory(ctx, pair, interval, limit)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	price, err := e.source.LatestPrice(ctx, pair)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}

	rep, repErr := indicator.ComputeAll(candles, indicator.Settings{Symbol: pair, Interval: interval})
	var signals []indicator.Signal
	if repErr != nil {
		// 指标失败不终止流程，共振阶段会按无指标放行原始置信度。
		logger.Warnf("指标计算失败 pair=%s err=%v", pair, repErr)
	} else {
		signals = indicator.Signals(rep)
	}

	led := e.pm.Snapshot()
	userPrompt := BuildUserPrompt(PromptInput{
		Pair:       pair,
		Asset:      asset,
		Price:      price,
		Ledger:     led,
		Allocation: e.pm.AssetAllocation(),
		Candles:    candles,
		Report:     rep,
		Hint:       prof.PromptHint,
	})
	payload := provider.ChatPayload{System: systemPrompt, User: userPrompt, ExpectJSON: true}
	if e.provider.SupportsVision() {
		if img, verr := visual.RenderKline(visual.KlineInput{
			Context: ctx, Pair: pair, Interval: interval, Candles: candles, Report: rep,
		}); verr != nil {
			logger.Warnf("K线截图失败，退回纯文本 pair=%s err=%v", pair, verr)
		} else {
			payload.Images = []provider.ImagePayload{{DataURI: img.DataURI(), Description: img.Description}}
		}
	}

	raw, callErr := e.provider.Call(ctx, payload)
	e.appendLLMTrace(ctx, traceID, pair, userPrompt, raw, callErr)
	if callErr != nil {
		return fmt.Errorf("model call: %w", callErr)
	}

	parsed := decision.Parse(raw)
	verdict := e.policy.Evaluate(ctx, risk.Input{
		Pair:      pair,
		Asset:     asset,
		Price:     price,
		Raw:       parsed.Rec,
		Signals:   signals,
		RiskLevel: prof.RiskLevel,
	})

	execPrice, execErr := e.execute(ctx, pair, asset, price, verdict)
	e.recordDecision(ctx, traceID, pair, parsed, verdict, execPrice)
	e.notifyOutcome(pair, parsed.Rec, verdict, execErr)
	return execErr
}

// execute 把通过风控的交易落到交易所与账本。
// 开关在：只有交易所确认成交后才改账本；失败保持账本原样。
func (e *Engine) execute(ctx context.Context, pair, asset string, price float64, verdict risk.Verdict) (float64, error) {
	if !verdict.Action.IsTrade() || verdict.Size.Quantity <= 0 {
		return price, nil
	}
	side := exchange.SideBuy
	ledgerSide := ledger.SideBuy
	if verdict.Action == decision.ActionSell {
		side = exchange.SideSell
		ledgerSide = ledger.SideSell
	}
	res, err := e.exch.PlaceMarketOrder(ctx, pair, side, verdict.Size.Quantity)
	if err != nil || !res.Success {
		if err == nil {
			err = fmt.Errorf("order rejected: %s", res.Reason)
		}
		return price, fmt.Errorf("place order %s %s: %w", side, pair, err)
	}
	fillPrice := res.ExecutedPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	tr := e.pm.ExecuteTrade(asset, ledgerSide, res.ExecutedQty, fillPrice)
	if !tr.Success {
		// 成交后账本拒绝记账属于对账异常，必须显式暴露。
		return fillPrice, fmt.Errorf("ledger rejected fill %s %s: %s", side, pair, tr.Reason)
	}
	logger.Infof("交易完成 pair=%s side=%s qty=%v price=%v value=%.2f",
		pair, side, res.ExecutedQty, fillPrice, tr.QuoteValue)
	return fillPrice, nil
}

// recordDecision 每轮评估都落一条审计记录：原始建议与最终结论并排。
func (e *Engine) recordDecision(ctx context.Context, traceID, pair string, parsed decision.ParseResult, verdict risk.Verdict, price float64) {
	if e.store == nil {
		return
	}
	reason := verdict.Reason
	if reason == "" && parsed.Fallback {
		reason = parsed.Reason
	}
	rec := store.DecisionRecord{
		TraceID:         traceID,
		Pair:            pair,
		RawAction:       strings.ToUpper(string(parsed.Rec.Action)),
		RawConfidence:   parsed.Rec.Confidence,
		FinalAction:     strings.ToUpper(string(verdict.Action)),
		FinalConfidence: verdict.Confidence,
		Reason:          reason,
		Adjustments:     verdict.Adjustments,
		Reasoning:       parsed.Rec.Reasoning,
		Quantity:        verdict.Size.Quantity,
		QuoteValue:      verdict.Size.QuoteValue,
		Price:           price,
		CreatedAt:       time.Now(),
	}
	if err := e.store.AppendDecision(ctx, rec); err != nil {
		logger.Errorf("决策落库失败 pair=%s err=%v", pair, err)
	}
}

func (e *Engine) appendLLMTrace(ctx context.Context, traceID, pair, userPrompt, raw string, callErr error) {
	if e.llmlog == nil {
		return
	}
	rec := llmlog.Record{
		TraceID:    traceID,
		Pair:       pair,
		ProviderID: e.provider.ID(),
		System:     systemPrompt,
		User:       userPrompt,
		RawOutput:  raw,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	if err := e.llmlog.Append(ctx, rec); err != nil {
		logger.Warnf("LLM 轨迹落库失败 pair=%s err=%v", pair, err)
	}
}

func (e *Engine) notifyOutcome(pair string, raw decision.Recommendation, verdict risk.Verdict, execErr error) {
	switch {
	case execErr != nil:
		e.sendText(fmt.Sprintf("⚠️ %s 执行失败: %v", pair, execErr))
	case verdict.Action.IsTrade() && verdict.Size.Quantity > 0:
		e.sendText(fmt.Sprintf("✅ %s %s qty=%.6g (confidence %d)",
			pair, strings.ToUpper(string(verdict.Action)), verdict.Size.Quantity, verdict.Confidence))
	case verdict.Downgraded(decision.NormalizeAction(string(raw.Action))):
		e.sendText(fmt.Sprintf("🛑 %s %s→HOLD: %s",
			pair, strings.ToUpper(string(raw.Action)), verdict.Reason))
	}
}

func (e *Engine) sendText(text string) {
	if err := e.notify.SendText(text); err != nil {
		logger.Warnf("通知发送失败: %v", err)
	}
}

func (e *Engine) snapshotEquity(ctx context.Context) {
	if e.store == nil {
		return
	}
	point := store.EquityPoint{
		TotalValue:   e.pm.Value(),
		QuoteBalance: e.pm.GetAssetAmount(e.pm.Base()),
		CreatedAt:    time.Now(),
	}
	if err := e.store.AppendEquity(ctx, point); err != nil {
		logger.Warnf("权益快照落库失败: %v", err)
	}
}

// RefreshPortfolio 供仪表盘手动刷新：从交易所拉快照并合并进账本。
// 走 Manager 的 load/save 通道，不直接碰共享状态。
// 模拟盘没有权威外部账户，本地账本即事实：刷新不回灌初始余额，
// 否则成交后的结算货币会被重置、总值凭空膨胀。
func (e *Engine) RefreshPortfolio(ctx context.Context) ledger.SyncResult {
	if e.opts.Simulation {
		return ledger.SyncResult{OK: true}
	}
	snap, err := e.exch.GetPortfolio(ctx)
	if err != nil {
		return ledger.SyncResult{Error: err.Error()}
	}
	return e.pm.UpdateFromExchange(ledger.ExchangeSnapshot{
		Balances: snap.Balances,
		Prices:   snap.Prices,
	})
}
