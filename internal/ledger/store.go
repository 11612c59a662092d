package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coinpilot/internal/logger"
	"coinpilot/internal/pkg/maputil"
)

// FileStore 负责账本的磁盘读写。
// 磁盘格式是一个 JSON 对象：资产表挂在 "assets" 下，价格与估值键带结算货币
// 后缀（如 last_price_usd / portfolio_value_usd）；未识别的顶层键在读入时保留、
// 写出时原样回写。写入使用临时文件加 rename，保证单写者下的原子性。
type FileStore struct {
	Path string
	Base string
}

func NewFileStore(path, base string) *FileStore {
	return &FileStore{
		Path: strings.TrimSpace(path),
		Base: strings.ToUpper(strings.TrimSpace(base)),
	}
}

func (s *FileStore) priceKey() string {
	return "last_price_" + strings.ToLower(s.Base)
}

func (s *FileStore) valueKey(prefix string) string {
	return prefix + "_" + strings.ToLower(s.Base)
}

// Load 读取并校验账本文件。资产条目不是对象时被强制回退为默认形态，
// 缺失的必需键补零值；文件不存在或不可解析时返回错误，由上层决定降级路径。
func (s *FileStore) Load() (*Ledger, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("ledger file is not a JSON object: %w", err)
	}

	l := NewLedger(s.Base, nil)
	l.extra = make(map[string]json.RawMessage)

	for key, val := range top {
		switch key {
		case "assets":
			s.decodeAssets(l, val)
		case s.valueKey("portfolio_value"):
			l.PortfolioValue = asFloat(val)
		case s.valueKey("initial_value"):
			l.InitialValue = asFloat(val)
		case "trades_executed":
			l.TradesExecuted = int64(asFloat(val))
		case "last_updated":
			var ts string
			if json.Unmarshal(val, &ts) == nil {
				if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
					l.LastUpdated = t
				}
			}
		default:
			l.extra[key] = val
		}
	}
	l.ensureAsset(s.Base)
	return l, nil
}

func (s *FileStore) decodeAssets(l *Ledger, raw json.RawMessage) {
	var assets map[string]json.RawMessage
	if err := json.Unmarshal(raw, &assets); err != nil {
		logger.Warnf("ledger: assets 节点不是对象，忽略并使用默认资产表")
		return
	}
	for sym, entry := range assets {
		pos := l.ensureAsset(sym)
		if pos == nil {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(entry, &fields); err != nil {
			// 非对象条目强制回退为默认形态，而不是让整个加载失败。
			logger.Warnf("ledger: 资产 %s 的条目损坏，已重置为默认形态", sym)
			continue
		}
		pos.Amount = maputil.Float(fields, "amount")
		pos.InitialAmount = maputil.Float(fields, "initial_amount")
		if strings.ToUpper(sym) == l.Base {
			pos.LastPrice = 1
		} else {
			pos.LastPrice = maputil.Float(fields, s.priceKey())
		}
		if pos.Amount < 0 {
			logger.Warnf("ledger: 资产 %s 数量为负（%f），已钳为 0", sym, pos.Amount)
			pos.Amount = 0
		}
	}
}

// Save 以临时文件加 rename 的方式原子写回账本。
func (s *FileStore) Save(l *Ledger) error {
	if l == nil {
		return fmt.Errorf("nil ledger")
	}
	top := make(map[string]any, len(l.extra)+5)
	for key, val := range l.extra {
		top[key] = val
	}

	assets := make(map[string]map[string]any, len(l.Assets))
	for sym, pos := range l.Assets {
		if pos == nil {
			continue
		}
		entry := map[string]any{
			"amount":         pos.Amount,
			"initial_amount": pos.InitialAmount,
		}
		if sym != l.Base {
			entry[s.priceKey()] = pos.LastPrice
		}
		assets[sym] = entry
	}
	top["assets"] = assets
	top[s.valueKey("portfolio_value")] = l.PortfolioValue
	top[s.valueKey("initial_value")] = l.InitialValue
	top["trades_executed"] = l.TradesExecuted
	top["last_updated"] = l.LastUpdated.UTC().Format(time.RFC3339)

	buf, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func asFloat(raw json.RawMessage) float64 {
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		return maputil.FloatValue(str)
	}
	return 0
}
