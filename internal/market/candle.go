package market

import "time"

// Candle 一根 OHLCV K 线，时间戳为毫秒。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// ClosedBy 报告这根 K 线在给定时刻是否已经收盘。
func (c Candle) ClosedBy(t time.Time) bool {
	return c.CloseTime <= t.UnixMilli()
}
