package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"coinpilot/internal/agent"
	"coinpilot/internal/config"
	binancemkt "coinpilot/internal/gateway/binance"
	"coinpilot/internal/gateway/exchange"
	"coinpilot/internal/gateway/notifier"
	"coinpilot/internal/gateway/provider"
	"coinpilot/internal/ledger"
	"coinpilot/internal/logger"
	"coinpilot/internal/market"
	symbolpkg "coinpilot/internal/pkg/symbol"
	"coinpilot/internal/profile"
	"coinpilot/internal/risk"
	"coinpilot/internal/scheduler"
	"coinpilot/internal/store"
	"coinpilot/internal/store/gormstore"
	"coinpilot/internal/store/llmlog"
	transporthttp "coinpilot/internal/transport/http"
)

// App 聚合全部长生命周期组件。构造失败即退出，不做半初始化运行。
type App struct {
	cfg *config.Config

	pm     *ledger.Manager
	engine *agent.Engine
	source market.Source
	exch   exchange.Exchange
	st     store.Store
	llm    *llmlog.Store

	httpSrv *http.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	pairs := cfg.Trading.PairsUpper()
	if len(pairs) == 0 {
		return nil, fmt.Errorf("trading.pairs is empty")
	}
	assets := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if sym := symbolpkg.Parse(p); sym.Base != "" {
			assets = append(assets, sym.Base)
		}
	}

	mktCfg := cfg.Market.ResolveActiveSource()
	source, err := binancemkt.New(binancemkt.Config{
		RESTBaseURL:  mktCfg.RESTBaseURL,
		APIKey:       mktCfg.APIKey,
		APISecret:    mktCfg.APISecret,
		ProxyEnabled: mktCfg.Proxy.Enabled,
		RESTProxyURL: mktCfg.Proxy.RESTURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init market source: %w", err)
	}

	var exch exchange.Exchange
	if cfg.Trading.Simulation {
		exch = exchange.NewPaper(source, map[string]float64{
			cfg.Portfolio.BaseCurrency: cfg.Trading.SimInitialQuote,
		})
		logger.Infof("模拟盘模式：初始 %s=%.2f，不会向交易所下单",
			cfg.Portfolio.BaseCurrency, cfg.Trading.SimInitialQuote)
	} else {
		live, lerr := exchange.NewBinance(exchange.BinanceConfig{
			RESTBaseURL: mktCfg.RESTBaseURL,
			APIKey:      mktCfg.APIKey,
			APISecret:   mktCfg.APISecret,
		})
		if lerr != nil {
			return nil, fmt.Errorf("init exchange: %w", lerr)
		}
		exch = live
	}

	st, err := gormstore.New(cfg.Store.DecisionLogPath)
	if err != nil {
		return nil, fmt.Errorf("init decision store: %w", err)
	}
	llm, err := llmlog.New(cfg.Store.LLMTracePath)
	if err != nil {
		return nil, fmt.Errorf("init llm trace store: %w", err)
	}

	fileStore := &ledger.FileStore{
		Path: cfg.Portfolio.LedgerPath,
		Base: cfg.Portfolio.BaseCurrency,
	}
	pm := ledger.NewManager(fileStore, assets, &tradeSink{
		st:  st,
		sim: cfg.Trading.Simulation,
	})

	mp, err := provider.FromConfig(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init model provider: %w", err)
	}

	profiles, err := buildProfiles(cfg)
	if err != nil {
		return nil, err
	}

	var notify notifier.TextNotifier = notifier.Noop{}
	if tg := cfg.Notify.Telegram; tg.Enabled {
		notify = notifier.NewTelegram(tg.BotToken, tg.ChatID)
	}

	limits := risk.Limits{
		ThresholdBuy:          cfg.Risk.ConfidenceThresholdBuy,
		ThresholdSell:         cfg.Risk.ConfidenceThresholdSell,
		TrendBonus:            cfg.Risk.TrendBonus,
		CounterTrendPenalty:   cfg.Risk.CounterTrendPenalty,
		MinAssetAllocationPct: cfg.Risk.MinAssetAllocationPct,
		MaxQuoteAllocationPct: cfg.Risk.MaxQuoteAllocationPct,
		MinTradeQuote:         cfg.Trading.MinTradeUSD,
		MaxTradeQuote:         cfg.Trading.MaxTradeUSD,
		MaxTradeFraction:      cfg.Trading.MaxTradeFraction,
		SafetyBufferQuote:     cfg.Trading.SafetyBufferUSD,
		SafetyBufferFrac:      cfg.Trading.SafetyBufferFrac,
	}

	// 档案热更推给运营渠道，改了风险级别能立刻看到生效确认。
	profiles.OnChange(func(snap profile.Snapshot) {
		msg := fmt.Sprintf("📋 交易对档案已重载 v%d（%d 对）", snap.Version, len(snap.Pairs))
		logger.Infof("%s", msg)
		if err := notify.SendText(msg); err != nil {
			logger.Warnf("档案重载通知发送失败: %v", err)
		}
	})

	engine := agent.NewEngine(agent.Options{
		Pairs:      pairs,
		Interval:   cfg.Market.Interval,
		KlineLimit: cfg.Market.KlineLimit,
		PairDelay:  time.Duration(cfg.Trading.PairDelaySeconds) * time.Second,
		Simulation: cfg.Trading.Simulation,
	}, pm, limits, mp, source, exch, st, llm, notify, profiles)

	app := &App{
		cfg:    cfg,
		pm:     pm,
		engine: engine,
		source: source,
		exch:   exch,
		st:     st,
		llm:    llm,
	}
	app.httpSrv = app.buildHTTPServer()
	return app, nil
}

// buildProfiles 档案文件缺席不算错误，退回全局默认风险级别。
func buildProfiles(cfg *config.Config) (*profile.Manager, error) {
	path := strings.TrimSpace(cfg.Portfolio.ProfilesPath)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			logger.Warnf("profiles 文件不可用（%v），使用默认风险级别 %s", err, cfg.Trading.RiskLevel)
			path = ""
		}
	}
	m, err := profile.NewManager(path, cfg.Trading.RiskLevel)
	if err != nil {
		return nil, fmt.Errorf("init profiles: %w", err)
	}
	return m, nil
}

func (a *App) buildHTTPServer() *http.Server {
	if strings.TrimSpace(a.cfg.App.HTTPAddr) == "" {
		return nil
	}
	if strings.ToLower(a.cfg.App.Env) != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	router := transporthttp.NewRouter(a.pm, a.st, a.engine)
	router.Register(r.Group("/api"))
	return &http.Server{Addr: a.cfg.App.HTTPAddr, Handler: r}
}

// Run 阻塞运行：HTTP 服务与决策调度并行，其一失败则整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	// 首次加载账本：文件 → 交易所快照 → 零值默认，永不失败。
	led := a.pm.Load(ctx, snapshotFetcher{exch: a.exch})
	logger.Infof("账本已加载 base=%s value=%.2f trades=%d",
		led.Base, led.PortfolioValue, led.TradesExecuted)

	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			logger.Infof("HTTP 服务监听 %s", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx,
			time.Duration(a.cfg.Trading.CycleIntervalMinutes)*time.Minute, 0)
		sched.RunImmediately = true
		sched.Start(func() { a.engine.RunCycle(ctx) })
		return ctx.Err()
	})

	return group.Wait()
}

func (a *App) close() {
	if a.source != nil {
		_ = a.source.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.st != nil {
		_ = a.st.Close()
	}
}

// snapshotFetcher 把交易所适配成账本加载时的降级数据源。
type snapshotFetcher struct {
	exch exchange.Exchange
}

func (f snapshotFetcher) FetchPortfolio(ctx context.Context) (ledger.ExchangeSnapshot, error) {
	snap, err := f.exch.GetPortfolio(ctx)
	if err != nil {
		return ledger.ExchangeSnapshot{}, err
	}
	return ledger.ExchangeSnapshot{Balances: snap.Balances, Prices: snap.Prices}, nil
}

// tradeSink 把账本的成交结果转写进只追加的存储。
type tradeSink struct {
	st  store.Store
	sim bool
}

func (s *tradeSink) AppendTrade(res ledger.TradeResult) {
	rec := store.TradeRecord{
		Asset:      res.Asset,
		Side:       string(res.Side),
		Amount:     res.Amount,
		Price:      res.Price,
		QuoteValue: res.QuoteValue,
		Success:    res.Success,
		Reason:     res.Reason,
		Simulated:  s.sim,
		CreatedAt:  res.Timestamp,
	}
	if err := s.st.AppendTrade(context.Background(), rec); err != nil {
		logger.Warnf("成交日志落库失败 asset=%s err=%v", res.Asset, err)
	}
}
