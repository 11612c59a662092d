package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"coinpilot/internal/store"
	storemodel "coinpilot/internal/store/model"
)

// GormStore 用 Gorm + SQLite 实现 store.Store。
type GormStore struct {
	db *gorm.DB
}

func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 决策日志路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.DecisionModel{},
		&storemodel.TradeModel{},
		&storemodel.EquityModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) AppendDecision(ctx context.Context, rec store.DecisionRecord) error {
	m := storemodel.DecisionModel{
		TraceID:         rec.TraceID,
		Pair:            rec.Pair,
		RawAction:       rec.RawAction,
		RawConfidence:   rec.RawConfidence,
		FinalAction:     rec.FinalAction,
		FinalConfidence: rec.FinalConfidence,
		Reason:          rec.Reason,
		Adjustments:     datatypes.JSON(marshalStrings(rec.Adjustments)),
		Reasoning:       rec.Reasoning,
		Quantity:        rec.Quantity,
		QuoteValue:      rec.QuoteValue,
		Price:           rec.Price,
		CreatedAt:       orNow(rec.CreatedAt),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ListDecisions(ctx context.Context, q store.DecisionQuery) ([]store.DecisionRecord, int64, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&storemodel.DecisionModel{})
	if pair := strings.TrimSpace(q.Pair); pair != "" {
		query = query.Where("pair = ?", strings.ToUpper(pair))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []storemodel.DecisionModel
	if err := query.Order("created_at DESC").Limit(limit).Offset(q.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]store.DecisionRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, store.DecisionRecord{
			ID:              m.ID,
			TraceID:         m.TraceID,
			Pair:            m.Pair,
			RawAction:       m.RawAction,
			RawConfidence:   m.RawConfidence,
			FinalAction:     m.FinalAction,
			FinalConfidence: m.FinalConfidence,
			Reason:          m.Reason,
			Adjustments:     unmarshalStrings(m.Adjustments),
			Reasoning:       m.Reasoning,
			Quantity:        m.Quantity,
			QuoteValue:      m.QuoteValue,
			Price:           m.Price,
			CreatedAt:       m.CreatedAt,
		})
	}
	return out, total, nil
}

func (s *GormStore) AppendTrade(ctx context.Context, rec store.TradeRecord) error {
	m := storemodel.TradeModel{
		Asset:      rec.Asset,
		Side:       rec.Side,
		Amount:     rec.Amount,
		Price:      rec.Price,
		QuoteValue: rec.QuoteValue,
		Success:    rec.Success,
		Reason:     rec.Reason,
		Simulated:  rec.Simulated,
		CreatedAt:  orNow(rec.CreatedAt),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ListTrades(ctx context.Context, limit int) ([]store.TradeRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []storemodel.TradeModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.TradeRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, store.TradeRecord{
			ID:         m.ID,
			Asset:      m.Asset,
			Side:       m.Side,
			Amount:     m.Amount,
			Price:      m.Price,
			QuoteValue: m.QuoteValue,
			Success:    m.Success,
			Reason:     m.Reason,
			Simulated:  m.Simulated,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}

func (s *GormStore) AppendEquity(ctx context.Context, point store.EquityPoint) error {
	m := storemodel.EquityModel{
		TotalValue:   point.TotalValue,
		QuoteBalance: point.QuoteBalance,
		CreatedAt:    orNow(point.CreatedAt),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) EquitySeries(ctx context.Context, limit int) ([]store.EquityPoint, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	var rows []storemodel.EquityModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	// 倒序取最近 N 条，再翻回时间升序方便画曲线。
	out := make([]store.EquityPoint, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = store.EquityPoint{
			TotalValue:   m.TotalValue,
			QuoteBalance: m.QuoteBalance,
			CreatedAt:    m.CreatedAt,
		}
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func marshalStrings(items []string) []byte {
	if len(items) == 0 {
		return []byte("[]")
	}
	b, err := json.Marshal(items)
	if err != nil {
		return []byte("[]")
	}
	return b
}

func unmarshalStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
