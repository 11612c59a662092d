package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"coinpilot/internal/analysis/indicator"
	"coinpilot/internal/market"
	"coinpilot/internal/store"
)

// 中文说明：
// 把 K 线渲染成 PNG 喂给支持视觉的模型；权益曲线渲染成 HTML 给仪表盘。

type ImageResult struct {
	Bytes       []byte `json:"-"`
	Base64      string `json:"base64"`
	Description string `json:"description"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

const (
	colorBackground = "#060c1b"
	colorText       = "#eceff4"
	colorBull       = "#34d399"
	colorBear       = "#f87171"
	colorEmaFast    = "#3b82f6"
	colorEmaMid     = "#fbbf24"
	colorEquity     = "#22d3ee"

	chartWidthPx  = 1600
	chartHeightPx = 720
)

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 启动前探测一次 headless chrome，失败后不再重试。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

// KlineInput 单交易对 K 线渲染输入。
type KlineInput struct {
	Context  context.Context
	Pair     string
	Interval string
	Candles  []market.Candle
	Report   indicator.Report
}

// RenderKline 渲染带 EMA 叠加的 K 线截图。
func RenderKline(input KlineInput) (ImageResult, error) {
	if err := EnsureHeadlessAvailable(input.Context); err != nil {
		return ImageResult{}, err
	}
	if input.Pair == "" {
		return ImageResult{}, fmt.Errorf("pair required for kline render")
	}
	if len(input.Candles) == 0 {
		return ImageResult{}, fmt.Errorf("no candles for %s", input.Pair)
	}
	html, err := buildKlineHTML(input)
	if err != nil {
		return ImageResult{}, err
	}
	png, err := renderHTMLToPNG(input.Context, html, chartWidthPx, chartHeightPx)
	if err != nil {
		return ImageResult{}, err
	}
	desc := fmt.Sprintf("%s %s K线（%d 根），附 EMA 均线", input.Pair, input.Interval, len(input.Candles))
	return ImageResult{Bytes: png, Description: desc}, nil
}

func buildKlineHTML(input KlineInput) ([]byte, error) {
	xAxis := buildXAxis(input.Candles)
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeChalk,
			BackgroundColor: colorBackground,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx-40),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s · %s", input.Pair, input.Interval),
			TitleStyle: &opts.TextStyle{Color: colorText},
		}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 16}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	klineData := make([]opts.KlineData, 0, len(input.Candles))
	for _, c := range input.Candles {
		klineData = append(klineData, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis).AddSeries("kline", klineData,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	if line := buildEMALine(xAxis, input.Report); line != nil {
		kline.Overlap(line)
	}

	page := components.NewPage()
	page.SetPageTitle(input.Pair)
	page.AddCharts(kline)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildEMALine(xAxis []string, rep indicator.Report) *charts.Line {
	emaFast, okFast := rep.Values["ema_fast"]
	emaMid, okMid := rep.Values["ema_mid"]
	if !okFast && !okMid {
		return nil
	}
	line := charts.NewLine()
	line.SetXAxis(xAxis)
	if okFast {
		line.AddSeries("ema_fast", toLineData(emaFast.Series, len(xAxis)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaFast}))
	}
	if okMid {
		line.AddSeries("ema_mid", toLineData(emaMid.Series, len(xAxis)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaMid}))
	}
	return line
}

// RenderEquityHTML 把权益快照渲染成仪表盘用的 HTML 页面。
func RenderEquityHTML(points []store.EquityPoint, base string) ([]byte, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeChalk,
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("Portfolio value (%s)", base),
			TitleStyle: &opts.TextStyle{Color: colorText},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	xAxis := make([]string, 0, len(points))
	total := make([]opts.LineData, 0, len(points))
	quote := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		xAxis = append(xAxis, p.CreatedAt.Format("01-02 15:04"))
		total = append(total, opts.LineData{Value: p.TotalValue})
		quote = append(quote, opts.LineData{Value: p.QuoteBalance})
	}
	line.SetXAxis(xAxis).
		AddSeries("total", total, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity})).
		AddSeries(base, quote, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaMid}))

	page := components.NewPage()
	page.SetPageTitle("equity")
	page.AddCharts(line)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildXAxis(candles []market.Candle) []string {
	out := make([]string, 0, len(candles))
	for _, c := range candles {
		out = append(out, time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04"))
	}
	return out
}

// toLineData 右对齐序列：指标序列比 K 线短时左侧补空。
func toLineData(series []float64, length int) []opts.LineData {
	out := make([]opts.LineData, 0, length)
	pad := length - len(series)
	for i := 0; i < length; i++ {
		if i < pad {
			out = append(out, opts.LineData{Value: "-"})
			continue
		}
		out = append(out, opts.LineData{Value: series[i-pad]})
	}
	return out
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
