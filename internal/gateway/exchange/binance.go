package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"coinpilot/internal/logger"
	symbolpkg "coinpilot/internal/pkg/symbol"
)

// BinanceExchange 通过 go-binance SDK 访问现货账户与下单接口。
type BinanceExchange struct {
	client *binance.Client
}

type BinanceConfig struct {
	RESTBaseURL string
	APIKey      string
	APISecret   string
	HTTPTimeout time.Duration
}

func NewBinance(cfg BinanceConfig) (*BinanceExchange, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, fmt.Errorf("binance api key/secret are required for live trading")
	}
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	if cfg.HTTPTimeout > 0 {
		client.HTTPClient.Timeout = cfg.HTTPTimeout
	}
	return &BinanceExchange{client: client}, nil
}

func (b *BinanceExchange) Name() string { return "binance" }

func (b *BinanceExchange) GetPortfolio(ctx context.Context) (BalanceSnapshot, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return BalanceSnapshot{}, fmt.Errorf("fetch account: %w", err)
	}
	snap := BalanceSnapshot{Balances: make(map[string]float64)}
	for _, bal := range acct.Balances {
		free := parseQty(bal.Free)
		locked := parseQty(bal.Locked)
		total := free + locked
		if total <= 0 {
			continue
		}
		snap.Balances[strings.ToUpper(bal.Asset)] = total
	}
	return snap, nil
}

func (b *BinanceExchange) GetProductPrice(ctx context.Context, pair string) (float64, error) {
	sym := symbolpkg.ToExchange(pair)
	prices, err := b.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 || prices[0] == nil {
		return 0, fmt.Errorf("no price for %s", sym)
	}
	return parseQty(prices[0].Price), nil
}

func (b *BinanceExchange) PlaceMarketOrder(ctx context.Context, pair string, side Side, quantity float64) (OrderResult, error) {
	if quantity <= 0 {
		return OrderResult{Reason: "quantity must be positive"}, fmt.Errorf("quantity must be positive, got %v", quantity)
	}
	sym := symbolpkg.ToExchange(pair)
	orderSide := binance.SideTypeBuy
	if side == SideSell {
		orderSide = binance.SideTypeSell
	}
	resp, err := b.client.NewCreateOrderService().
		Symbol(sym).
		Side(orderSide).
		Type(binance.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		Do(ctx)
	if err != nil {
		logger.Errorf("市价单失败 pair=%s side=%s qty=%v err=%v", pair, side, quantity, err)
		return OrderResult{Reason: err.Error()}, err
	}
	executedQty := parseQty(resp.ExecutedQuantity)
	quoteQty := parseQty(resp.CummulativeQuoteQuantity)
	price := 0.0
	if executedQty > 0 {
		price = quoteQty / executedQty
	}
	logger.Infof("市价单成交 pair=%s side=%s qty=%v price=%v order_id=%d", pair, side, executedQty, price, resp.OrderID)
	return OrderResult{
		Success:       true,
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ExecutedPrice: price,
		ExecutedQty:   executedQty,
	}, nil
}

// formatQuantity 保留 8 位小数并去掉尾零，符合现货下单精度要求。
func formatQuantity(q float64) string {
	s := strconv.FormatFloat(q, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func parseQty(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
