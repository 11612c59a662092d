package ledger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"coinpilot/internal/logger"

	"github.com/shopspring/decimal"
)

// TradeSide 交易方向。
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeResult 一次 ExecuteTrade 的结构化结果。
// 预期内的拒绝（余额不足、非法方向等）通过 Success=false + Reason 表达，不是错误。
type TradeResult struct {
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	Asset      string    `json:"asset"`
	Side       TradeSide `json:"side"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	QuoteValue float64   `json:"quote_value"`
	Timestamp  time.Time `json:"timestamp"`
}

// SyncResult UpdateFromExchange 的结构化结果；内部错误被捕获进 Error 字段。
type SyncResult struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Updated int    `json:"updated"`
	Added   int    `json:"added"`
}

// ExchangeSnapshot 交易所侧的余额/价格快照。只覆盖出现的资产（部分真相）。
type ExchangeSnapshot struct {
	Balances map[string]float64
	Prices   map[string]float64
}

// SnapshotFetcher 供 Load 的降级路径使用。
type SnapshotFetcher interface {
	FetchPortfolio(ctx context.Context) (ExchangeSnapshot, error)
}

// TradeSink 外部只追加交易日志。
type TradeSink interface {
	AppendTrade(res TradeResult)
}

// Manager 是账本的唯一修改入口。
//
// 并发约定：账本文件是单一事实来源，进程内所有写路径都经过同一个 Manager，
// 每次依赖余额的写操作前先重读文件（read-modify-write），写出走原子 rename。
// 跨进程仍然假设单写者，这是一条文档化的前置条件而非运行时保证。
type Manager struct {
	mu     sync.Mutex
	store  *FileStore
	base   string
	assets []string
	sink   TradeSink

	ledger *Ledger
}

func NewManager(store *FileStore, assets []string, sink TradeSink) *Manager {
	return &Manager{
		store:  store,
		base:   store.Base,
		assets: assets,
		sink:   sink,
	}
}

// Base 返回结算货币符号。
func (m *Manager) Base() string { return m.base }

// Load 按优先级物化账本：文件 → 交易所快照 → 零值默认。
// 永不返回错误；任何失败都降级并记录原因。
func (m *Manager) Load(ctx context.Context, fetcher SnapshotFetcher) *Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx, fetcher)
	return m.ledger.clone()
}

func (m *Manager) loadLocked(ctx context.Context, fetcher SnapshotFetcher) {
	if l, err := m.store.Load(); err == nil {
		m.ledger = l
		m.ledger.recomputeValue()
		return
	} else if !os.IsNotExist(err) {
		logger.Warnf("ledger: 账本文件不可用（%v），尝试交易所快照", err)
	}

	l := NewLedger(m.base, m.assets)
	if fetcher != nil {
		if snap, err := fetcher.FetchPortfolio(ctx); err == nil {
			applySnapshot(l, snap)
		} else {
			logger.Warnf("ledger: 交易所快照失败（%v），使用零值账本", err)
		}
	}
	l.recomputeValue()
	m.ledger = l
	if err := m.store.Save(l); err != nil {
		logger.Warnf("ledger: 初始账本落盘失败: %v", err)
	}
}

// reloadLocked 在写操作前重读磁盘，缩小并发读者观察到陈旧数据的窗口。
func (m *Manager) reloadLocked() {
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
		return
	}
	l, err := m.store.Load()
	if err != nil {
		// 文件暂时不可读时继续使用内存副本，这里不中断交易路径。
		return
	}
	l.recomputeValue()
	m.ledger = l
}

// Value 重算并返回以结算货币计的总估值，同时刷新缓存字段。
func (m *Manager) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
	}
	m.ledger.recomputeValue()
	return m.ledger.PortfolioValue
}

// AssetAllocation 返回各资产占比（百分数）。总值不为正时全部为 0。
func (m *Manager) AssetAllocation() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
	}
	return m.ledger.allocation()
}

// GetAssetAmount 未知资产返回 0 而不是报错。
func (m *Manager) GetAssetAmount(asset string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
	}
	return m.ledger.AmountOf(asset)
}

// GetAssetPrice 未知资产返回 0；结算货币恒为 1。
func (m *Manager) GetAssetPrice(asset string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
	}
	return m.ledger.PriceOf(asset)
}

// Snapshot 返回账本的只读拷贝，供 HTTP/报表等读者使用。
func (m *Manager) Snapshot() *Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
	}
	return m.ledger.clone()
}

// ExecuteTrade 对账本应用一笔成交。校验全部通过才发生任何改动；
// 任何拒绝都不留下部分状态。成功路径：改持仓 → 计数 → 重算估值 → 落盘 → 追加交易日志。
func (m *Manager) ExecuteTrade(asset string, side TradeSide, amount, price float64) TradeResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := TradeResult{
		Asset:     strings.ToUpper(strings.TrimSpace(asset)),
		Side:      side,
		Amount:    amount,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}

	m.reloadLocked()

	if res.Asset == m.base {
		res.Reason = "cannot_trade_base_currency"
		return res
	}
	if side != SideBuy && side != SideSell {
		res.Reason = "invalid_action"
		return res
	}
	if amount <= 0 || price <= 0 {
		res.Reason = "invalid_amount_or_price"
		return res
	}

	cost := quoteValue(amount, price)
	res.QuoteValue = cost

	l := m.ledger
	quotePos := l.ensureAsset(m.base)
	assetPos := l.ensureAsset(res.Asset)

	switch side {
	case SideBuy:
		// 成本必须严格小于可用余额：买入后至少留下非零余量。
		if cost >= quotePos.Amount {
			res.Reason = fmt.Sprintf("insufficient_%s", strings.ToLower(m.base))
			return res
		}
		quotePos.Amount = subFloat(quotePos.Amount, cost)
		assetPos.Amount = addFloat(assetPos.Amount, amount)
	case SideSell:
		if amount > assetPos.Amount {
			res.Reason = fmt.Sprintf("insufficient_%s", strings.ToLower(res.Asset))
			return res
		}
		assetPos.Amount = subFloat(assetPos.Amount, amount)
		quotePos.Amount = addFloat(quotePos.Amount, cost)
	}

	assetPos.LastPrice = price
	if assetPos.InitialAmount == 0 && assetPos.Amount > 0 {
		assetPos.InitialAmount = assetPos.Amount
	}
	l.TradesExecuted++
	l.recomputeValue()

	if err := m.store.Save(l); err != nil {
		logger.Errorf("ledger: 交易后落盘失败: %v", err)
	}
	res.Success = true
	if m.sink != nil {
		m.sink.AppendTrade(res)
	}
	return res
}

// UpdateFromExchange 将交易所快照合并进账本。
// 快照中出现的资产覆盖数量/价格，缺席的资产保持不变（快照只是部分真相）。
// 永不向调用方抛错：内部错误进入 SyncResult.Error。
func (m *Manager) UpdateFromExchange(snap ExchangeSnapshot) (out SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			out = SyncResult{Error: fmt.Sprintf("internal: %v", r)}
		}
	}()

	m.reloadLocked()
	if m.ledger == nil {
		m.loadLocked(context.Background(), nil)
	}

	updated, added := applySnapshot(m.ledger, snap)
	m.ledger.recomputeValue()
	if err := m.store.Save(m.ledger); err != nil {
		return SyncResult{Error: err.Error(), Updated: updated, Added: added}
	}
	return SyncResult{OK: true, Updated: updated, Added: added}
}

func applySnapshot(l *Ledger, snap ExchangeSnapshot) (updated, added int) {
	for sym, amount := range snap.Balances {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || amount < 0 {
			continue
		}
		if _, known := l.Assets[sym]; !known {
			added++
		} else {
			updated++
		}
		pos := l.ensureAsset(sym)
		pos.Amount = amount
		if pos.InitialAmount == 0 && amount > 0 {
			pos.InitialAmount = amount
		}
	}
	for sym, price := range snap.Prices {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || sym == l.Base || price <= 0 {
			continue
		}
		l.ensureAsset(sym).LastPrice = price
	}
	return updated, added
}

// quoteValue 用 decimal 计算 amount×price，避免长链 float 误差渗进账本。
func quoteValue(amount, price float64) float64 {
	v, _ := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(price)).Round(8).Float64()
	return v
}

func addFloat(a, b float64) float64 {
	v, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(8).Float64()
	return v
}

func subFloat(a, b float64) float64 {
	v, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(8).Float64()
	return v
}
