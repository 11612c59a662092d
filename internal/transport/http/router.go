package transporthttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"coinpilot/internal/analysis/visual"
	"coinpilot/internal/ledger"
	"coinpilot/internal/logger"
	"coinpilot/internal/store"
)

// Router 暴露仪表盘相关的查询接口（组合/决策/成交/权益）。
type Router struct {
	pm        *ledger.Manager
	store     store.Store
	refresher PortfolioRefresher
}

// PortfolioRefresher 供引擎实现，处理手动触发的组合刷新。
type PortfolioRefresher interface {
	RefreshPortfolio(ctx context.Context) ledger.SyncResult
}

func NewRouter(pm *ledger.Manager, st store.Store, refresher PortfolioRefresher) *Router {
	return &Router{pm: pm, store: st, refresher: refresher}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/portfolio", r.handlePortfolio)
	group.GET("/allocation", r.handleAllocation)
	group.GET("/decisions", r.handleDecisions)
	group.GET("/trades", r.handleTrades)
	group.GET("/equity", r.handleEquity)
	group.GET("/chart/equity", r.handleEquityChart)
	group.POST("/portfolio/refresh", r.handleRefresh)
	group.POST("/rebalance/preview", r.handleRebalancePreview)
}

func (r *Router) handlePortfolio(c *gin.Context) {
	led := r.pm.Snapshot()
	if led == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "账本未加载"})
		return
	}
	c.JSON(http.StatusOK, led)
}

func (r *Router) handleAllocation(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_value": r.pm.Value(),
		"allocation":  r.pm.AssetAllocation(),
	})
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "决策日志未启用"})
		return
	}
	q := store.DecisionQuery{
		Pair:   strings.TrimSpace(c.Query("pair")),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	items, total, err := r.store.ListDecisions(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("查询决策日志失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

func (r *Router) handleTrades(c *gin.Context) {
	if r.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "成交日志未启用"})
		return
	}
	items, err := r.store.ListTrades(c.Request.Context(), intQuery(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (r *Router) handleEquity(c *gin.Context) {
	if r.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "权益快照未启用"})
		return
	}
	points, err := r.store.EquitySeries(c.Request.Context(), intQuery(c, "limit", 1000))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

func (r *Router) handleEquityChart(c *gin.Context) {
	if r.store == nil {
		c.String(http.StatusServiceUnavailable, "权益快照未启用")
		return
	}
	points, err := r.store.EquitySeries(c.Request.Context(), intQuery(c, "limit", 1000))
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	html, err := visual.RenderEquityHTML(points, r.pm.Base())
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (r *Router) handleRefresh(c *gin.Context) {
	if r.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "刷新未启用"})
		return
	}
	res := r.refresher.RefreshPortfolio(c.Request.Context())
	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadGateway
	}
	c.JSON(status, res)
}

// handleRebalancePreview 只做规划不执行：返回把组合调到目标配比所需的动作。
// 目标配比不合法（键不存在、负数、总和偏离 100）返回 400。
func (r *Router) handleRebalancePreview(c *gin.Context) {
	var target map[string]float64
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体需要 {asset: percent} 映射"})
		return
	}
	actions, err := r.pm.CalculateRebalanceActions(target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
