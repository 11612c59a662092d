package agent

import (
	"context"
	"fmt"

	"coinpilot/internal/gateway/exchange"
	"coinpilot/internal/ledger"
	"coinpilot/internal/risk"
)

// balanceReader 把账本适配成风控的余额视图。
// 实盘模式先向交易所拉权威快照并合并进账本，拉取失败原样上抛，
// 让风控走 balance_check_failed 的安全降级。
type balanceReader struct {
	pm   *ledger.Manager
	exch exchange.Exchange
	live bool
}

func (b balanceReader) Balances(ctx context.Context, asset string) (risk.Balances, error) {
	if b.live {
		snap, err := b.exch.GetPortfolio(ctx)
		if err != nil {
			return risk.Balances{}, fmt.Errorf("fetch exchange portfolio: %w", err)
		}
		res := b.pm.UpdateFromExchange(ledger.ExchangeSnapshot{
			Balances: snap.Balances,
			Prices:   snap.Prices,
		})
		if !res.OK {
			return risk.Balances{}, fmt.Errorf("merge exchange snapshot: %s", res.Error)
		}
	}
	return risk.Balances{
		Quote:      b.pm.GetAssetAmount(b.pm.Base()),
		Asset:      b.pm.GetAssetAmount(asset),
		TotalValue: b.pm.Value(),
	}, nil
}
