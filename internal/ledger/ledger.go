package ledger

import (
	"encoding/json"
	"strings"
	"time"
)

// 中文说明：
// Ledger 是资产账本的内存形态：每个资产的持仓数量、首次观察数量与最近单价，
// 外加账本级别的估值缓存。磁盘格式见 store.go。

// AssetPosition 单个资产的持仓记录。
type AssetPosition struct {
	Amount        float64 `json:"amount"`
	InitialAmount float64 `json:"initial_amount"`
	// LastPrice 以结算货币计价的最近单价；结算货币自身恒为 1。
	LastPrice float64 `json:"-"`
}

// Ledger 账本主体。Base 为结算货币（USD/USDT/EUR 等，大写）。
type Ledger struct {
	Base           string
	Assets         map[string]*AssetPosition
	PortfolioValue float64
	InitialValue   float64
	TradesExecuted int64
	LastUpdated    time.Time

	// extra 保留磁盘文件里未识别的顶层键，保存时原样写回。
	extra map[string]json.RawMessage
}

// NewLedger 构造一个结构合法、价值为零的账本。
// base 与 assets 中的每个资产都会得到一个零持仓条目。
func NewLedger(base string, assets []string) *Ledger {
	base = strings.ToUpper(strings.TrimSpace(base))
	l := &Ledger{
		Base:   base,
		Assets: make(map[string]*AssetPosition),
	}
	l.ensureAsset(base)
	for _, a := range assets {
		l.ensureAsset(a)
	}
	return l
}

func (l *Ledger) ensureAsset(symbol string) *AssetPosition {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil
	}
	if l.Assets == nil {
		l.Assets = make(map[string]*AssetPosition)
	}
	pos, ok := l.Assets[symbol]
	if !ok {
		pos = &AssetPosition{}
		if symbol == l.Base {
			pos.LastPrice = 1
		}
		l.Assets[symbol] = pos
	}
	return pos
}

// PriceOf 返回资产单价；结算货币恒为 1，未知资产为 0。
func (l *Ledger) PriceOf(symbol string) float64 {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == l.Base {
		return 1
	}
	if pos, ok := l.Assets[symbol]; ok {
		return pos.LastPrice
	}
	return 0
}

// AmountOf 返回资产持仓数量，未知资产为 0。
func (l *Ledger) AmountOf(symbol string) float64 {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if pos, ok := l.Assets[symbol]; ok {
		return pos.Amount
	}
	return 0
}

// recomputeValue 同步重算估值缓存。每次账本变更后必须调用，
// 保证 PortfolioValue 永远不会是陈旧值。
func (l *Ledger) recomputeValue() {
	total := 0.0
	for sym, pos := range l.Assets {
		if pos == nil {
			continue
		}
		total += pos.Amount * l.PriceOf(sym)
	}
	l.PortfolioValue = total
	if l.InitialValue == 0 && total > 0 {
		l.InitialValue = total
	}
	l.LastUpdated = time.Now().UTC()
}

// allocation 返回每个资产占总值的百分比；总值不为正时全部为 0。
func (l *Ledger) allocation() map[string]float64 {
	out := make(map[string]float64, len(l.Assets))
	total := 0.0
	for sym, pos := range l.Assets {
		if pos == nil {
			continue
		}
		total += pos.Amount * l.PriceOf(sym)
	}
	for sym, pos := range l.Assets {
		if pos == nil {
			out[sym] = 0
			continue
		}
		if total <= 0 {
			out[sym] = 0
			continue
		}
		out[sym] = pos.Amount * l.PriceOf(sym) / total * 100
	}
	return out
}

// clone 深拷贝账本（extra 共享底层字节，只读）。
func (l *Ledger) clone() *Ledger {
	cp := &Ledger{
		Base:           l.Base,
		Assets:         make(map[string]*AssetPosition, len(l.Assets)),
		PortfolioValue: l.PortfolioValue,
		InitialValue:   l.InitialValue,
		TradesExecuted: l.TradesExecuted,
		LastUpdated:    l.LastUpdated,
		extra:          l.extra,
	}
	for sym, pos := range l.Assets {
		if pos == nil {
			continue
		}
		dup := *pos
		cp.Assets[sym] = &dup
	}
	return cp
}
