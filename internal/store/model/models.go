package model

import (
	"time"

	"gorm.io/datatypes"
)

// DecisionModel 每轮风控评估落一条：原始建议与最终结论并排存，
// 降级原因与调整轨迹单独成列，审计时无需回放。
type DecisionModel struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TraceID         string         `gorm:"column:trace_id;index"`
	Pair            string         `gorm:"column:pair;index"`
	RawAction       string         `gorm:"column:raw_action"`
	RawConfidence   int            `gorm:"column:raw_confidence"`
	FinalAction     string         `gorm:"column:final_action"`
	FinalConfidence int            `gorm:"column:final_confidence"`
	Reason          string         `gorm:"column:reason"`
	Adjustments     datatypes.JSON `gorm:"column:adjustments;type:TEXT"`
	Reasoning       string         `gorm:"column:reasoning;type:TEXT"`
	Quantity        float64        `gorm:"column:quantity"`
	QuoteValue      float64        `gorm:"column:quote_value"`
	Price           float64        `gorm:"column:price"`
	CreatedAt       time.Time      `gorm:"column:created_at;index"`
}

func (DecisionModel) TableName() string { return "decisions" }

// TradeModel 只追加的成交/拒绝日志。
type TradeModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Asset      string    `gorm:"column:asset;index"`
	Side       string    `gorm:"column:side"`
	Amount     float64   `gorm:"column:amount"`
	Price      float64   `gorm:"column:price"`
	QuoteValue float64   `gorm:"column:quote_value"`
	Success    bool      `gorm:"column:success"`
	Reason     string    `gorm:"column:reason"`
	Simulated  bool      `gorm:"column:simulated"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
}

func (TradeModel) TableName() string { return "trades" }

// EquityModel 组合估值快照，喂给权益曲线。
type EquityModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TotalValue   float64   `gorm:"column:total_value"`
	QuoteBalance float64   `gorm:"column:quote_balance"`
	CreatedAt    time.Time `gorm:"column:created_at;index"`
}

func (EquityModel) TableName() string { return "equity_snapshots" }
