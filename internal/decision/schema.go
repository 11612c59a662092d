package decision

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// 推荐对象的结构契约：action 必填字符串，confidence 若出现须为 0~100 的数字
// 或数字字符串，reasoning 可选。动作取值不在 schema 里收紧，大小写及同义词
// 由 NormalizeAction 统一。
const recommendationSchemaJSON = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"type": "string", "minLength": 1},
    "confidence": {
      "anyOf": [
        {"type": "number", "minimum": 0, "maximum": 100},
        {"type": "string", "pattern": "^[0-9]{1,3}(\\.[0-9]+)?$"}
      ]
    },
    "reasoning": {"type": "string"}
  }
}`

var recommendationSchema = jsonschema.MustCompileString("recommendation.json", recommendationSchemaJSON)

func validateRecommendation(raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fmt.Errorf("schema_decode_failed")
	}
	if err := recommendationSchema.Validate(v); err != nil {
		return fmt.Errorf("schema_violation")
	}
	return nil
}
