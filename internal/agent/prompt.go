package agent

import (
	"fmt"
	"sort"
	"strings"

	"coinpilot/internal/analysis/indicator"
	"coinpilot/internal/ledger"
	"coinpilot/internal/market"
)

// 中文说明：
// 提示词分两段：system 固定约束输出格式，user 携带当轮行情与持仓快照。

const systemPrompt = `You are a disciplined crypto portfolio analyst. For the given trading pair,
recommend exactly one action: BUY, SELL or HOLD.

Rules:
- Base your call on the supplied market data and indicators only.
- Confidence is an integer 0-100 expressing conviction strength.
- Respond with a single JSON object and nothing else:
  {"action": "BUY|SELL|HOLD", "confidence": 0-100, "reasoning": "<one short paragraph>"}
- When signals conflict or data is thin, prefer HOLD with low confidence.`

// PromptInput 当轮提示词的上下文。
type PromptInput struct {
	Pair       string
	Asset      string
	Price      float64
	Ledger     *ledger.Ledger
	Allocation map[string]float64
	Candles    []market.Candle
	Report     indicator.Report
	Hint       string
}

// BuildUserPrompt 渲染 user 段。
func BuildUserPrompt(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Pair\n%s (current price %.6g %s)\n\n", in.Pair, in.Price, baseOf(in.Ledger))

	b.WriteString("## Portfolio\n")
	if in.Ledger != nil {
		fmt.Fprintf(&b, "total value: %.2f %s, trades executed: %d\n",
			in.Ledger.PortfolioValue, in.Ledger.Base, in.Ledger.TradesExecuted)
	}
	if len(in.Allocation) > 0 {
		keys := make([]string, 0, len(in.Allocation))
		for k := range in.Allocation {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %.2f%%\n", k, in.Allocation[k])
		}
	}
	b.WriteString("\n")

	if len(in.Report.Values) > 0 {
		fmt.Fprintf(&b, "## Indicators (%s)\n", in.Report.Interval)
		names := make([]string, 0, len(in.Report.Values))
		for name := range in.Report.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := in.Report.Values[name]
			fmt.Fprintf(&b, "- %s: %.4f state=%s", name, v.Latest, v.State)
			if v.Note != "" {
				fmt.Fprintf(&b, " (%s)", v.Note)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if n := len(in.Candles); n > 0 {
		tail := in.Candles
		if n > 12 {
			tail = in.Candles[n-12:]
		}
		b.WriteString("## Recent candles (O/H/L/C/V)\n")
		for _, c := range tail {
			fmt.Fprintf(&b, "%.6g/%.6g/%.6g/%.6g/%.4g\n", c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		b.WriteString("\n")
	}

	if hint := strings.TrimSpace(in.Hint); hint != "" {
		b.WriteString("## Pair notes\n")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func baseOf(l *ledger.Ledger) string {
	if l == nil {
		return ""
	}
	return l.Base
}
