package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"coinpilot/internal/market"
	symbolpkg "coinpilot/internal/pkg/symbol"
)

const maxHistoryLimit = 1000

// Config 描述连接 Binance 现货行情所需的参数。
type Config struct {
	RESTBaseURL  string
	APIKey       string
	APISecret    string
	HTTPTimeout  time.Duration
	ProxyEnabled bool
	RESTProxyURL string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.RESTBaseURL) == "" {
		c.RESTBaseURL = "https://api.binance.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

// Source 基于 go-binance SDK 实现 market.Source（现货）。
type Source struct {
	cfg    Config
	client *binance.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := binance.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:    final,
		client: client,
	}, nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	// Binance requires symbols without slashes (e.g., ETHUSDT)
	cleanSymbol := symbolpkg.ToExchange(symbol)

	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	svc := s.client.NewKlinesService().Symbol(cleanSymbol).Interval(interval).Limit(limit)
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	out = dropUnclosedKline(out)
	return out, nil
}

func (s *Source) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	cleanSymbol := symbolpkg.ToExchange(symbol)
	if cleanSymbol == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	prices, err := s.client.NewListPricesService().Symbol(cleanSymbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 || prices[0] == nil {
		return 0, fmt.Errorf("no price returned for %s", cleanSymbol)
	}
	price := parseFloat(prices[0].Price)
	if price <= 0 {
		return 0, fmt.Errorf("invalid price %q for %s", prices[0].Price, cleanSymbol)
	}
	return price, nil
}

func (s *Source) Close() error {
	return nil
}

// dropUnclosedKline 去掉还没走完的最后一根 K 线，指标只吃已收盘数据。
func dropUnclosedKline(candles []market.Candle) []market.Candle {
	if len(candles) == 0 {
		return candles
	}
	if !candles[len(candles)-1].ClosedBy(time.Now()) {
		return candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
