package market

import "context"

// Source 抽象行情来源：历史 K 线与最新成交价。
// 轮询式决策只需要拉取，不需要推送订阅。
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	LatestPrice(ctx context.Context, symbol string) (float64, error)

	Close() error
}
