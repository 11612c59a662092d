package config

import "strings"

// Config 是 coinpilot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	Trading   TradingConfig   `toml:"trading"`
	Risk      RiskConfig      `toml:"risk"`
	Market    MarketConfig    `toml:"market"`
	AI        AIConfig        `toml:"ai"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// PortfolioConfig 描述账本文件与计价货币。
type PortfolioConfig struct {
	LedgerPath   string `toml:"ledger_path"`
	BaseCurrency string `toml:"base_currency"` // 结算货币，如 USD/USDT/EUR
	ProfilesPath string `toml:"profiles_path"` // 每个交易对的风险档案（yaml，可热更）
}

// TradingConfig 控制周期、交易对与仓位边界。
type TradingConfig struct {
	Pairs                []string `toml:"pairs"` // e.g. ["BTC/USDT","ETH/USDT"]
	CycleIntervalMinutes int      `toml:"cycle_interval_minutes"`
	PairDelaySeconds     int      `toml:"pair_delay_seconds"` // 对外部 API 的限速间隔
	Simulation           bool     `toml:"simulation"`
	MinTradeUSD          float64  `toml:"min_trade_usd"`
	MaxTradeUSD          float64  `toml:"max_trade_usd"`      // 单笔绝对上限
	MaxTradeFraction     float64  `toml:"max_trade_fraction"` // 单笔最大占可用余额比例 0~1
	SafetyBufferUSD      float64  `toml:"safety_buffer_usd"`  // 买入后必须保留的余量
	SafetyBufferFrac     float64  `toml:"safety_buffer_frac"` // 卖出保留的持仓比例 0~1
	RiskLevel            string   `toml:"risk_level"`         // LOW/MEDIUM/HIGH（大小写不敏感）
	SimInitialQuote      float64  `toml:"sim_initial_quote"`  // 模拟盘初始计价货币余额
}

// RiskConfig 是决策调整管线的阈值集合。
// 买卖阈值相互独立：默认偏向 SELL，以避免风险资产过度累积。
type RiskConfig struct {
	ConfidenceThresholdBuy  int     `toml:"confidence_threshold_buy"`
	ConfidenceThresholdSell int     `toml:"confidence_threshold_sell"`
	TrendBonus              int     `toml:"trend_bonus"`           // 指标共振时的置信度加成
	CounterTrendPenalty     int     `toml:"counter_trend_penalty"` // 完全逆势时的扣减
	MinAssetAllocationPct   float64 `toml:"min_asset_allocation_pct"`
	MaxQuoteAllocationPct   float64 `toml:"max_quote_allocation_pct"`
}

type MarketConfig struct {
	ActiveSource string         `toml:"active_source"`
	KlineLimit   int            `toml:"kline_limit"`
	Interval     string         `toml:"interval"`
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name        string      `toml:"name"`
	Enabled     bool        `toml:"enabled"`
	RESTBaseURL string      `toml:"rest_base_url"`
	APIKey      string      `toml:"api_key"`
	APISecret   string      `toml:"api_secret"`
	Proxy       ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

// AIConfig 描述外部推理服务（LLM）的访问方式。
type AIConfig struct {
	Provider       string            `toml:"provider"`
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	MaxRetries     int               `toml:"max_retries"`
	Headers        map[string]string `toml:"headers"`
	ExpectJSON     bool              `toml:"expect_json"`
	SupportsVision bool              `toml:"supports_vision"` // 为真时附带 K 线图截图
}

type StoreConfig struct {
	DecisionLogPath string `toml:"decision_log_path"` // sqlite 文件
	LLMTracePath    string `toml:"llm_trace_path"`    // LLM 请求/响应轨迹，单独分库
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{
			Name:        "binance",
			Enabled:     true,
			RESTBaseURL: "https://api.binance.com",
		}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// PairsUpper 返回规范化（大写、去空白）后的交易对列表。
func (t TradingConfig) PairsUpper() []string {
	out := make([]string, 0, len(t.Pairs))
	for _, p := range t.Pairs {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
