package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9980"
	defaultAppLogPath   = "data/logs/coinpilot.log"
	defaultAppLLMLog    = "data/logs/coinpilot-llm.log"
	defaultLedgerPath   = "data/ledger.json"
	defaultBaseCurrency = "USD"
	defaultProfilesPath = "configs/profiles.yaml"
	defaultCycleMinutes = 15
	defaultPairDelaySec = 2
	defaultMinTradeUSD  = 10
	defaultMaxTradeUSD  = 1000
	defaultMaxTradeFrac = 0.25
	defaultBufferUSD    = 50
	defaultBufferFrac   = 0.02
	defaultRiskLevel    = "MEDIUM"
	defaultThresholdBuy = 70
	defaultThresholdSel = 60
	defaultTrendBonus   = 10
	defaultCounterPen   = 15
	defaultMinAllocPct  = 5
	defaultMaxQuotePct  = 80
	defaultMarketName   = "binance"
	defaultMarketREST   = "https://api.binance.com"
	defaultKlineLimit   = 200
	defaultKlineIvl     = "1h"
	defaultAITimeout    = 60
	defaultAIRetries    = 2
	defaultDecisionDB   = "data/decisions.db"
	defaultLLMTraceDB   = "data/llm_traces.db"
	defaultSimQuote     = 10000
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Portfolio.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLog),
	)
}

func (p *PortfolioConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("portfolio.ledger_path", &p.LedgerPath, defaultLedgerPath),
		stringFieldDefault("portfolio.base_currency", &p.BaseCurrency, defaultBaseCurrency),
		stringFieldDefault("portfolio.profiles_path", &p.ProfilesPath, defaultProfilesPath),
	)
	p.BaseCurrency = strings.ToUpper(strings.TrimSpace(p.BaseCurrency))
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "trading.cycle_interval_minutes",
			need:  func() bool { return t.CycleIntervalMinutes <= 0 },
			apply: func() { t.CycleIntervalMinutes = defaultCycleMinutes },
		},
		fieldDefault{
			key:   "trading.pair_delay_seconds",
			need:  func() bool { return t.PairDelaySeconds <= 0 },
			apply: func() { t.PairDelaySeconds = defaultPairDelaySec },
		},
		fieldDefault{
			key:   "trading.min_trade_usd",
			need:  func() bool { return t.MinTradeUSD <= 0 },
			apply: func() { t.MinTradeUSD = defaultMinTradeUSD },
		},
		fieldDefault{
			key:   "trading.max_trade_usd",
			need:  func() bool { return t.MaxTradeUSD <= 0 },
			apply: func() { t.MaxTradeUSD = defaultMaxTradeUSD },
		},
		fieldDefault{
			key:   "trading.max_trade_fraction",
			need:  func() bool { return t.MaxTradeFraction <= 0 || t.MaxTradeFraction > 1 },
			apply: func() { t.MaxTradeFraction = defaultMaxTradeFrac },
		},
		fieldDefault{
			key:   "trading.safety_buffer_usd",
			need:  func() bool { return t.SafetyBufferUSD < 0 },
			apply: func() { t.SafetyBufferUSD = defaultBufferUSD },
		},
		fieldDefault{
			key:   "trading.safety_buffer_frac",
			need:  func() bool { return t.SafetyBufferFrac < 0 || t.SafetyBufferFrac >= 1 },
			apply: func() { t.SafetyBufferFrac = defaultBufferFrac },
		},
		stringFieldDefault("trading.risk_level", &t.RiskLevel, defaultRiskLevel),
		fieldDefault{
			key:   "trading.sim_initial_quote",
			need:  func() bool { return t.SimInitialQuote <= 0 },
			apply: func() { t.SimInitialQuote = defaultSimQuote },
		},
	)
	if !keys.isSet("trading.safety_buffer_usd") && t.SafetyBufferUSD == 0 {
		t.SafetyBufferUSD = defaultBufferUSD
	}
	if !keys.isSet("trading.safety_buffer_frac") && t.SafetyBufferFrac == 0 {
		t.SafetyBufferFrac = defaultBufferFrac
	}
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.confidence_threshold_buy",
			need:  func() bool { return r.ConfidenceThresholdBuy <= 0 },
			apply: func() { r.ConfidenceThresholdBuy = defaultThresholdBuy },
		},
		fieldDefault{
			key:   "risk.confidence_threshold_sell",
			need:  func() bool { return r.ConfidenceThresholdSell <= 0 },
			apply: func() { r.ConfidenceThresholdSell = defaultThresholdSel },
		},
		fieldDefault{
			key:   "risk.trend_bonus",
			need:  func() bool { return r.TrendBonus <= 0 },
			apply: func() { r.TrendBonus = defaultTrendBonus },
		},
		fieldDefault{
			key:   "risk.counter_trend_penalty",
			need:  func() bool { return r.CounterTrendPenalty <= 0 },
			apply: func() { r.CounterTrendPenalty = defaultCounterPen },
		},
		fieldDefault{
			key:   "risk.min_asset_allocation_pct",
			need:  func() bool { return r.MinAssetAllocationPct <= 0 },
			apply: func() { r.MinAssetAllocationPct = defaultMinAllocPct },
		},
		fieldDefault{
			key:   "risk.max_quote_allocation_pct",
			need:  func() bool { return r.MaxQuoteAllocationPct <= 0 },
			apply: func() { r.MaxQuoteAllocationPct = defaultMaxQuotePct },
		},
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "market.kline_limit",
			need:  func() bool { return m.KlineLimit <= 0 },
			apply: func() { m.KlineLimit = defaultKlineLimit },
		},
		stringFieldDefault("market.interval", &m.Interval, defaultKlineIvl),
	)
	if strings.TrimSpace(m.ActiveSource) == "" {
		m.ActiveSource = firstEnabledMarket(m.Sources)
	}
	if len(m.Sources) == 0 {
		m.Sources = []MarketSource{{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}}
	}
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ai.provider", &a.Provider, "openai"),
		stringFieldDefault("ai.api_url", &a.APIURL, "https://api.openai.com/v1"),
		fieldDefault{
			key:   "ai.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAITimeout },
		},
		fieldDefault{
			key:   "ai.max_retries",
			need:  func() bool { return a.MaxRetries < 0 },
			apply: func() { a.MaxRetries = defaultAIRetries },
		},
	)
	if !keys.isSet("ai.max_retries") && a.MaxRetries == 0 {
		a.MaxRetries = defaultAIRetries
	}
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.decision_log_path", &s.DecisionLogPath, defaultDecisionDB),
		stringFieldDefault("store.llm_trace_path", &s.LLMTracePath, defaultLLMTraceDB),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
