package exchange

import (
	"context"
	"fmt"
	"sync/atomic"

	"coinpilot/internal/logger"
	"coinpilot/internal/market"
	symbolpkg "coinpilot/internal/pkg/symbol"
)

// PaperExchange 是模拟盘：不向交易所下单，按当前行情价假定全额成交。
// 账本仍由上层正常更新，保证报表与实盘路径一致。
type PaperExchange struct {
	source  market.Source
	seq     atomic.Int64
	initial map[string]float64
}

func NewPaper(source market.Source, initialBalances map[string]float64) *PaperExchange {
	init := make(map[string]float64, len(initialBalances))
	for k, v := range initialBalances {
		init[k] = v
	}
	return &PaperExchange{source: source, initial: init}
}

func (p *PaperExchange) Name() string { return "paper" }

// GetPortfolio 返回配置的初始余额。模拟盘没有权威外部账户，
// 持仓的真实来源是本地账本。
func (p *PaperExchange) GetPortfolio(context.Context) (BalanceSnapshot, error) {
	snap := BalanceSnapshot{Balances: make(map[string]float64, len(p.initial))}
	for k, v := range p.initial {
		snap.Balances[k] = v
	}
	return snap, nil
}

func (p *PaperExchange) GetProductPrice(ctx context.Context, pair string) (float64, error) {
	return p.source.LatestPrice(ctx, pair)
}

func (p *PaperExchange) PlaceMarketOrder(ctx context.Context, pair string, side Side, quantity float64) (OrderResult, error) {
	if quantity <= 0 {
		return OrderResult{Reason: "quantity must be positive"}, fmt.Errorf("quantity must be positive, got %v", quantity)
	}
	price, err := p.source.LatestPrice(ctx, pair)
	if err != nil {
		return OrderResult{Reason: err.Error()}, err
	}
	id := p.seq.Add(1)
	logger.Infof("模拟成交 pair=%s side=%s qty=%v price=%v", symbolpkg.Normalize(pair), side, quantity, price)
	return OrderResult{
		Success:       true,
		OrderID:       fmt.Sprintf("paper-%d", id),
		ExecutedPrice: price,
		ExecutedQty:   quantity,
	}, nil
}
