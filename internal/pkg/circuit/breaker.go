package circuit

import (
	"sync"
	"time"

	"coinpilot/internal/logger"
)

// 中文说明：
// 每个交易对配一个熔断器，围住完整的"拉行情→问模型→下单"链路。
// 连续失败达到阈值后打开，冷却期过后放一次探测请求，探测成功才恢复。

type State int

const (
	Closed State = iota
	Open
	Probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	}
	return "unknown"
}

type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{name: name, threshold: threshold, cooldown: cooldown}
}

// Allow 报告当前是否放行。打开状态下冷却期一过，切到探测态并放行一次。
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == Open {
		if time.Since(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.shift(Probing)
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == Probing {
		cb.shift(Closed)
	}
	cb.failures = 0
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == Probing || cb.failures >= cb.threshold {
		cb.openedAt = time.Now()
		cb.shift(Open)
	}
}

// State 当前状态快照，只用于观测。
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) shift(to State) {
	if cb.state == to {
		return
	}
	logger.Warnf("熔断器 %s: %s → %s（失败 %d/%d）", cb.name, cb.state, to, cb.failures, cb.threshold)
	cb.state = to
}
