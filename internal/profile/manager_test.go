package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfiles(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestManagerEmptyPathFallsBackToDefault(t *testing.T) {
	m, err := NewManager("", "MEDIUM")
	require.NoError(t, err)

	p := m.Get("BTC/USDT")
	assert.Equal(t, "MEDIUM", p.RiskLevel)
	assert.Empty(t, p.Interval)
}

func TestManagerLoadsPairProfiles(t *testing.T) {
	path := writeProfiles(t, `
pairs:
  BTC/USDT:
    risk_level: LOW
    interval: 1h
    kline_limit: 300
  ETH/USDT:
    interval: 4h
`)
	m, err := NewManager(path, "MEDIUM")
	require.NoError(t, err)

	btc := m.Get("btc/usdt")
	assert.Equal(t, "LOW", btc.RiskLevel)
	assert.Equal(t, "1h", btc.Interval)
	assert.Equal(t, 300, btc.KlineLimit)

	// 配置里没写风险级别的对子回落到默认值。
	eth := m.Get("ETH/USDT")
	assert.Equal(t, "MEDIUM", eth.RiskLevel)
	assert.Equal(t, "4h", eth.Interval)

	assert.Equal(t, "MEDIUM", m.Get("SOL/USDT").RiskLevel)
}

func TestManagerReloadNotifiesListeners(t *testing.T) {
	path := writeProfiles(t, `
pairs:
  BTC/USDT:
    risk_level: LOW
`)
	m, err := NewManager(path, "MEDIUM")
	require.NoError(t, err)
	first := m.Snapshot()

	got := make(chan Snapshot, 1)
	m.OnChange(func(snap Snapshot) { got <- snap })

	require.NoError(t, os.WriteFile(path, []byte(`
pairs:
  BTC/USDT:
    risk_level: HIGH
`), 0o644))
	// WatchConfig 的回调触发前 viper 会先重读文件，这里按同样顺序驱动。
	require.NoError(t, m.v.ReadInConfig())
	require.NoError(t, m.reload())
	m.notifyListeners()

	select {
	case snap := <-got:
		assert.Greater(t, snap.Version, first.Version)
		assert.Equal(t, "HIGH", snap.Pairs["BTC/USDT"].RiskLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not notified after reload")
	}
	assert.Equal(t, "HIGH", m.Get("BTC/USDT").RiskLevel)
}
