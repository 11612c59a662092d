package decision

// 中文说明：
// 决策数据结构：Recommendation 是外部推理服务输出在边界处校验后的形态，
// 下游（风控、下单）拿到的一定是合法动作与 0~100 的置信度。

// Action 交易动作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// IsTrade 返回该动作是否需要真正下单。
func (a Action) IsTrade() bool { return a == ActionBuy || a == ActionSell }

// Recommendation 模型推荐。在解析边界校验一次，下游不再探测缺失字段。
type Recommendation struct {
	Action     Action `json:"action"`
	Confidence int    `json:"confidence"` // 0~100
	Reasoning  string `json:"reasoning,omitempty"`
}
