package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Portfolio.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(c.Portfolio.BaseCurrency); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (p *PortfolioConfig) validate() error {
	if strings.TrimSpace(p.LedgerPath) == "" {
		return fmt.Errorf("portfolio.ledger_path cannot be empty")
	}
	if strings.TrimSpace(p.BaseCurrency) == "" {
		return fmt.Errorf("portfolio.base_currency cannot be empty")
	}
	return nil
}

func (t *TradingConfig) validate(baseCurrency string) error {
	pairs := t.PairsUpper()
	if len(pairs) == 0 {
		return fmt.Errorf("trading.pairs requires at least one pair")
	}
	for _, p := range pairs {
		parts := strings.Split(p, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("trading.pairs entry %q must look like BTC/%s", p, baseCurrency)
		}
		if parts[0] == baseCurrency {
			return fmt.Errorf("trading.pairs entry %q trades the base currency against itself", p)
		}
		if parts[1] != baseCurrency {
			return fmt.Errorf("trading.pairs entry %q is not quoted in portfolio.base_currency %s", p, baseCurrency)
		}
	}
	if t.MaxTradeFraction <= 0 || t.MaxTradeFraction > 1 {
		return fmt.Errorf("trading.max_trade_fraction must be in (0,1]")
	}
	if t.SafetyBufferFrac < 0 || t.SafetyBufferFrac >= 1 {
		return fmt.Errorf("trading.safety_buffer_frac must be in [0,1)")
	}
	if t.MinTradeUSD > t.MaxTradeUSD {
		return fmt.Errorf("trading.min_trade_usd exceeds trading.max_trade_usd")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.ConfidenceThresholdBuy < 0 || r.ConfidenceThresholdBuy > 100 {
		return fmt.Errorf("risk.confidence_threshold_buy must be in [0,100]")
	}
	if r.ConfidenceThresholdSell < 0 || r.ConfidenceThresholdSell > 100 {
		return fmt.Errorf("risk.confidence_threshold_sell must be in [0,100]")
	}
	if r.MinAssetAllocationPct < 0 || r.MinAssetAllocationPct > 100 {
		return fmt.Errorf("risk.min_asset_allocation_pct must be in [0,100]")
	}
	if r.MaxQuoteAllocationPct <= 0 || r.MaxQuoteAllocationPct > 100 {
		return fmt.Errorf("risk.max_quote_allocation_pct must be in (0,100]")
	}
	return nil
}

func (a *AIConfig) validate() error {
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("ai.model cannot be empty")
	}
	if strings.TrimSpace(a.APIURL) == "" {
		return fmt.Errorf("ai.api_url cannot be empty")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
