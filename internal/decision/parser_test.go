package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainObject(t *testing.T) {
	res := Parse(`{"action": "BUY", "confidence": 82, "reasoning": "breakout above EMA50"}`)
	require.False(t, res.Fallback, res.Reason)
	assert.Equal(t, ActionBuy, res.Rec.Action)
	assert.Equal(t, 82, res.Rec.Confidence)
	assert.Equal(t, "breakout above EMA50", res.Rec.Reasoning)
}

func TestParseObjectInsideCodeFence(t *testing.T) {
	raw := "Here is my analysis.\n```json\n{\"action\":\"sell\",\"confidence\":61}\n```\nGood luck."
	res := Parse(raw)
	require.False(t, res.Fallback, res.Reason)
	assert.Equal(t, ActionSell, res.Rec.Action)
	assert.Equal(t, 61, res.Rec.Confidence)
}

func TestParseDecisionsWrapper(t *testing.T) {
	res := Parse(`{"decisions": [{"action": "hold", "confidence": 40}, {"action": "buy"}]}`)
	require.False(t, res.Fallback, res.Reason)
	assert.Equal(t, ActionHold, res.Rec.Action)
	assert.Equal(t, 40, res.Rec.Confidence)
}

func TestParseArrayTakesFirstElement(t *testing.T) {
	res := Parse(`[{"action": "buy", "confidence": 75}, {"action": "sell", "confidence": 99}]`)
	require.False(t, res.Fallback, res.Reason)
	assert.Equal(t, ActionBuy, res.Rec.Action)
	assert.Equal(t, 75, res.Rec.Confidence)
}

func TestParseConfidenceCoercion(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"numeric string", `{"action":"buy","confidence":"85"}`, 85},
		{"float truncates", `{"action":"buy","confidence":72.9}`, 72},
		{"missing defaults", `{"action":"buy"}`, FallbackConfidence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Parse(tc.raw)
			require.False(t, res.Fallback, res.Reason)
			assert.Equal(t, tc.want, res.Rec.Confidence)
		})
	}
}

func TestParseActionSynonyms(t *testing.T) {
	assert.Equal(t, ActionBuy, Parse(`{"action":"LONG","confidence":80}`).Rec.Action)
	assert.Equal(t, ActionSell, Parse(`{"action":"close","confidence":80}`).Rec.Action)
	assert.Equal(t, ActionHold, Parse(`{"action":"wait","confidence":80}`).Rec.Action)
	// 未知动作不猜测方向。
	assert.Equal(t, ActionHold, Parse(`{"action":"hodl","confidence":80}`).Rec.Action)
}

func TestParseFallbackOnProse(t *testing.T) {
	res := Parse("I think the market looks choppy, better to stay out today.")
	require.True(t, res.Fallback)
	assert.Equal(t, "no_json_found", res.Reason)
	assert.Equal(t, ActionHold, res.Rec.Action)
	assert.Equal(t, FallbackConfidence, res.Rec.Confidence)
	assert.Equal(t, "unparseable", res.Rec.Reasoning)
}

func TestParseFallbackOnSchemaViolation(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing action", `{"confidence": 80}`},
		{"confidence over range", `{"action":"buy","confidence":250}`},
		{"confidence junk string", `{"action":"buy","confidence":"very high"}`},
		{"action not string", `{"action": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Parse(tc.raw)
			require.True(t, res.Fallback)
			assert.Equal(t, ActionHold, res.Rec.Action)
			assert.Equal(t, FallbackConfidence, res.Rec.Confidence)
		})
	}
}

func TestParseFallbackOnEmptyContainers(t *testing.T) {
	assert.True(t, Parse(`{"decisions": []}`).Fallback)
	assert.True(t, Parse(`[]`).Fallback)
	assert.True(t, Parse(`["just a string"]`).Fallback)
	assert.True(t, Parse("").Fallback)
}

func TestParseKeepsRawMaterialForAudit(t *testing.T) {
	raw := "noise before {\"action\":\"buy\",\"confidence\":70} noise after"
	res := Parse(raw)
	require.False(t, res.Fallback, res.Reason)
	assert.Equal(t, raw, res.RawOutput)
	assert.JSONEq(t, `{"action":"buy","confidence":70}`, res.RawJSON)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, ClampConfidence(-5))
	assert.Equal(t, 100, ClampConfidence(140))
	assert.Equal(t, 55, ClampConfidence(55))
}
