package decision

import "strings"

// NormalizeAction 统一动作名称：大小写不敏感，wait/none 视为 hold。
func NormalizeAction(a string) Action {
	switch strings.ToLower(strings.TrimSpace(a)) {
	case "buy", "open", "long":
		return ActionBuy
	case "sell", "close", "short":
		return ActionSell
	case "hold", "wait", "none", "":
		return ActionHold
	default:
		return ActionHold
	}
}

// ClampConfidence 把置信度钳到 [0,100]。
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
