package exchange

import "context"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// BalanceSnapshot 是交易所侧的权威余额快照：币种 → 可用数量。
type BalanceSnapshot struct {
	Balances map[string]float64 `json:"balances"`
	Prices   map[string]float64 `json:"prices,omitempty"`
}

// OrderResult 描述一笔市价单的结果。Success 为假时上层不得改动账本。
type OrderResult struct {
	Success       bool    `json:"success"`
	OrderID       string  `json:"order_id,omitempty"`
	ExecutedPrice float64 `json:"executed_price"`
	ExecutedQty   float64 `json:"executed_qty"`
	Reason        string  `json:"reason,omitempty"`
}

// Exchange 抽象下单与余额查询。行情走 market.Source，这里只管资金与成交。
type Exchange interface {
	Name() string

	GetPortfolio(ctx context.Context) (BalanceSnapshot, error)

	GetProductPrice(ctx context.Context, pair string) (float64, error)

	PlaceMarketOrder(ctx context.Context, pair string, side Side, quantity float64) (OrderResult, error)
}
