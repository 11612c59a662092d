package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in    string
		base  string
		quote string
	}{
		{"BTC/USDT", "BTC", "USDT"},
		{" btc/usdt ", "BTC", "USDT"},
		{"BTCUSDT", "BTC", "USDT"},
		{"ETHBTC", "ETH", "BTC"},
		{"SOLUSDC", "SOL", "USDC"},
		{"USDT", "", ""},
		{"", "", ""},
		{"XYZ", "", ""},
	}
	for _, tc := range cases {
		got := Parse(tc.in)
		assert.Equal(t, tc.base, got.Base, tc.in)
		assert.Equal(t, tc.quote, got.Quote, tc.in)
	}
}

func TestNormalizeAndBinance(t *testing.T) {
	assert.Equal(t, "BTC/USDT", Normalize("btcusdt"))
	assert.Equal(t, "BTCUSDT", Parse("BTC/USDT").Binance())
	assert.Equal(t, "", Symbol{}.Internal())
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("BTC/USDT"))
	assert.True(t, IsValid("ethusdt"))
	assert.False(t, IsValid("???"))
	assert.False(t, IsValid(""))
}

func TestToExchange(t *testing.T) {
	assert.Equal(t, "BTCUSDT", ToExchange("btc/usdt"))
	assert.Equal(t, "ETHUSDT", ToExchange("ETHUSDT"))
}
