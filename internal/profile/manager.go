package profile

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"coinpilot/internal/logger"
	symbolpkg "coinpilot/internal/pkg/symbol"
)

// 中文说明：
// 每个交易对一份风险档案，yaml 文件可热更：改风险级别不用重启进程。

// Profile 描述单个交易对的风险档案。
type Profile struct {
	RiskLevel  string `mapstructure:"risk_level" yaml:"risk_level"`
	Interval   string `mapstructure:"interval" yaml:"interval"`
	KlineLimit int    `mapstructure:"kline_limit" yaml:"kline_limit"`
	PromptHint string `mapstructure:"prompt_hint" yaml:"prompt_hint"`
}

// FileConfig 映射 profiles 文件的顶层结构。
type FileConfig struct {
	Pairs map[string]Profile `mapstructure:"pairs" yaml:"pairs"`
}

// Snapshot 某个时刻的档案全集。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Pairs    map[string]Profile
}

// ChangeListener 在档案重载后触发。
type ChangeListener func(Snapshot)

// Manager 管理交易对档案并监听文件变化。
type Manager struct {
	path             string
	v                *viper.Viper
	defaultRiskLevel string

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewManager 读取档案文件并开始监听。path 为空时返回只有默认值的管理器。
func NewManager(path, defaultRiskLevel string) (*Manager, error) {
	m := &Manager{
		path:             strings.TrimSpace(path),
		defaultRiskLevel: strings.TrimSpace(defaultRiskLevel),
		snapshot:         Snapshot{Pairs: map[string]Profile{}},
	}
	if m.path == "" {
		return m, nil
	}
	v := viper.New()
	v.SetConfigFile(m.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profiles failed: %w", err)
	}
	m.v = v
	if err := m.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := m.reload(); err != nil {
			logger.Errorf("profiles reload failed: %v", err)
			return
		}
		m.notifyListeners()
	})
	v.WatchConfig()
	return m, nil
}

// Get 返回交易对的档案；没配的对子拿默认风险级别。
func (m *Manager) Get(pair string) Profile {
	key := symbolpkg.Normalize(pair)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.snapshot.Pairs[key]; ok {
		if strings.TrimSpace(p.RiskLevel) == "" {
			p.RiskLevel = m.defaultRiskLevel
		}
		return p
	}
	return Profile{RiskLevel: m.defaultRiskLevel}
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSnapshot(m.snapshot)
}

func (m *Manager) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) reload() error {
	var cfg FileConfig
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal profiles: %w", err)
	}
	pairs := make(map[string]Profile, len(cfg.Pairs))
	for raw, p := range cfg.Pairs {
		key := symbolpkg.Normalize(raw)
		if key == "" {
			logger.Warnf("profiles: 跳过无法识别的交易对 %q", raw)
			continue
		}
		p.RiskLevel = strings.TrimSpace(p.RiskLevel)
		pairs[key] = p
	}
	m.mu.Lock()
	m.snapshot = Snapshot{
		Version:  m.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Pairs:    pairs,
	}
	m.mu.Unlock()
	logger.Infof("profiles loaded %d pairs from %s", len(pairs), filepath.Base(m.path))
	return nil
}

func (m *Manager) notifyListeners() {
	m.mu.RLock()
	snap := cloneSnapshot(m.snapshot)
	listeners := append([]ChangeListener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("profiles listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{Version: s.Version, LoadedAt: s.LoadedAt, Pairs: make(map[string]Profile, len(s.Pairs))}
	for k, v := range s.Pairs {
		out.Pairs[k] = v
	}
	return out
}
