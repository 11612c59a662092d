package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"coinpilot/internal/logger"
	"coinpilot/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// 中文说明：
// 模型输出解析边界。外部推理服务返回的文本经过：提取 JSON → 结构宽容化
// （gjson）→ schema 校验 → 严格反序列化。任何一步失败都回退到
// hold/50/"unparseable"，管线下游因此永远拿到一个结构合法的推荐。

// FallbackConfidence 解析失败时的保底置信度。
const FallbackConfidence = 50

// ParseResult 解析结果与原始材料（便于审计/调试）。
type ParseResult struct {
	Rec       Recommendation
	RawOutput string
	RawJSON   string
	Fallback  bool
	Reason    string
}

// Parse 永不报错；失败时 Fallback=true 且 Rec 为 hold/50。
func Parse(raw string) ParseResult {
	out := ParseResult{RawOutput: raw}

	block, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return fallback(out, "no_json_found")
	}
	obj, err := coerceRecommendationJSON(block)
	if err != nil {
		out.RawJSON = strings.TrimSpace(block)
		return fallback(out, err.Error())
	}
	out.RawJSON = obj

	if err := validateRecommendation(obj); err != nil {
		return fallback(out, err.Error())
	}

	var payload struct {
		Action     string          `json:"action"`
		Confidence json.RawMessage `json:"confidence"`
		Reasoning  string          `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return fallback(out, "decode_failed")
	}

	out.Rec = Recommendation{
		Action:     NormalizeAction(payload.Action),
		Confidence: ClampConfidence(coerceConfidence(payload.Confidence)),
		Reasoning:  strings.TrimSpace(payload.Reasoning),
	}
	return out
}

func fallback(out ParseResult, reason string) ParseResult {
	logger.Warnf("decision: 模型输出不可解析（%s），回退 hold/%d", reason, FallbackConfidence)
	out.Fallback = true
	out.Reason = reason
	out.Rec = Recommendation{
		Action:     ActionHold,
		Confidence: FallbackConfidence,
		Reasoning:  "unparseable",
	}
	return out
}

// coerceRecommendationJSON 接受三种形态：裸对象、{"decisions":[...]} 包装、
// 或对象数组（取第一条）。统一返回单个对象的 JSON 文本。
func coerceRecommendationJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty_json")
	}
	if !gjson.Valid(raw) {
		return "", fmt.Errorf("invalid_json")
	}
	parsed := gjson.Parse(raw)
	if parsed.IsObject() {
		if decisions := parsed.Get("decisions"); decisions.Exists() && decisions.IsArray() {
			arr := decisions.Array()
			if len(arr) == 0 {
				return "", fmt.Errorf("empty_decisions")
			}
			return strings.TrimSpace(arr[0].Raw), nil
		}
		return raw, nil
	}
	if parsed.IsArray() {
		arr := parsed.Array()
		if len(arr) == 0 {
			return "", fmt.Errorf("empty_array")
		}
		first := arr[0]
		if !first.IsObject() {
			return "", fmt.Errorf("array_element_not_object")
		}
		return strings.TrimSpace(first.Raw), nil
	}
	return "", fmt.Errorf("root_not_object_or_array")
}

func coerceConfidence(raw json.RawMessage) int {
	if len(raw) == 0 {
		return FallbackConfidence
	}
	res := gjson.ParseBytes(raw)
	switch res.Type {
	case gjson.Number:
		return int(res.Float())
	case gjson.String:
		if v := gjson.Parse(res.String()); v.Type == gjson.Number {
			return int(v.Float())
		}
	}
	return FallbackConfidence
}
