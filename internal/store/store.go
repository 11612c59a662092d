package store

import (
	"context"
	"time"
)

// DecisionRecord 是一条完整的决策审计记录。
type DecisionRecord struct {
	ID              int64     `json:"id"`
	TraceID         string    `json:"trace_id"`
	Pair            string    `json:"pair"`
	RawAction       string    `json:"raw_action"`
	RawConfidence   int       `json:"raw_confidence"`
	FinalAction     string    `json:"final_action"`
	FinalConfidence int       `json:"final_confidence"`
	Reason          string    `json:"reason,omitempty"`
	Adjustments     []string  `json:"adjustments,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
	Quantity        float64   `json:"quantity"`
	QuoteValue      float64   `json:"quote_value"`
	Price           float64   `json:"price"`
	CreatedAt       time.Time `json:"created_at"`
}

// TradeRecord 是一条成交（或被拒绝的尝试）记录。
type TradeRecord struct {
	ID         int64     `json:"id"`
	Asset      string    `json:"asset"`
	Side       string    `json:"side"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	QuoteValue float64   `json:"quote_value"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	Simulated  bool      `json:"simulated"`
	CreatedAt  time.Time `json:"created_at"`
}

// EquityPoint 是权益曲线上的一个点。
type EquityPoint struct {
	TotalValue   float64   `json:"total_value"`
	QuoteBalance float64   `json:"quote_balance"`
	CreatedAt    time.Time `json:"created_at"`
}

// DecisionQuery 分页筛选参数。
type DecisionQuery struct {
	Pair   string
	Limit  int
	Offset int
}

// Store 聚合决策、成交与权益的持久化入口。实现必须是只追加的：
// 历史记录不更新、不删除。
type Store interface {
	AppendDecision(ctx context.Context, rec DecisionRecord) error
	ListDecisions(ctx context.Context, q DecisionQuery) ([]DecisionRecord, int64, error)

	AppendTrade(ctx context.Context, rec TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]TradeRecord, error)

	AppendEquity(ctx context.Context, point EquityPoint) error
	EquitySeries(ctx context.Context, limit int) ([]EquityPoint, error)

	Close() error
}
