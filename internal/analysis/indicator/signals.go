package indicator

// Stance 表示单个指标相对标的的多空倾向。
type Stance string

const (
	StanceBullish Stance = "bullish"
	StanceBearish Stance = "bearish"
	StanceNeutral Stance = "neutral"
)

// Signal 是提供给风控调整阶段的指标摘要。
type Signal struct {
	Name   string `json:"name"`
	Stance Stance `json:"stance"`
}

// Signals 将指标报告折算为多空信号列表。
// 趋势类看价格与均线的相对位置，摆动类看超买超卖区。
func Signals(rep Report) []Signal {
	out := make([]Signal, 0, 5)
	if v, ok := rep.Values["ema_fast"]; ok {
		out = append(out, Signal{Name: "ema_trend", Stance: trendStance(v.State)})
	}
	if v, ok := rep.Values["rsi"]; ok {
		out = append(out, Signal{Name: "rsi", Stance: oscillatorStance(v.State)})
	}
	if v, ok := rep.Values["macd"]; ok {
		out = append(out, Signal{Name: "macd", Stance: macdStance(v.State)})
	}
	if v, ok := rep.Values["stoch_k"]; ok {
		out = append(out, Signal{Name: "stoch", Stance: oscillatorStance(v.State)})
	}
	if v, ok := rep.Values["obv"]; ok {
		out = append(out, Signal{Name: "obv", Stance: obvStance(v.State)})
	}
	return out
}

func trendStance(state string) Stance {
	switch state {
	case "above":
		return StanceBullish
	case "below":
		return StanceBearish
	default:
		return StanceNeutral
	}
}

// oscillatorStance 取反转逻辑：超卖偏多，超买偏空。
func oscillatorStance(state string) Stance {
	switch state {
	case "oversold":
		return StanceBullish
	case "overbought":
		return StanceBearish
	default:
		return StanceNeutral
	}
}

func macdStance(state string) Stance {
	switch state {
	case "bullish":
		return StanceBullish
	case "bearish":
		return StanceBearish
	default:
		return StanceNeutral
	}
}

func obvStance(state string) Stance {
	switch state {
	case "rising":
		return StanceBullish
	case "falling":
		return StanceBearish
	default:
		return StanceNeutral
	}
}
