package rembg

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("remote circuit open")

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 远程正常调用
	BreakerOpen                         // 冷却中，全部走本地
	BreakerHalfOpen                     // 冷却结束，只放少量请求试探远程
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker 远程抠图服务连续失败 threshold 次后熔断 cooldown，期间直接走本地。
// 冷却结束后最多同时放 trials 个请求试探，任一成功即恢复，任一失败重新熔断。
//
// 每次 Allow 返回 true 后必须调用 Done 或 Abandon 之一。
type CircuitBreaker struct {
	mu sync.Mutex

	state    BreakerState
	failures int
	trying   int
	openedAt time.Time

	threshold int
	cooldown  time.Duration
	trials    int
	now       func() time.Time
}

type BreakerOption func(*CircuitBreaker)

func WithBreakerThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.threshold = n
		}
	}
}

// WithBreakerResetTimeout 熔断后的冷却时间
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.cooldown = d
		}
	}
}

// WithBreakerTrials 半开状态下同时在途的试探请求上限
func WithBreakerTrials(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.trials = n
		}
	}
}

func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = fn }
}

// NewCircuitBreaker 默认 5 次连续失败熔断 30s，半开时只放 1 个试探请求
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold: 5,
		cooldown:  30 * time.Second,
		trials:    1,
		now:       time.Now,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.cool()
	return cb.state
}

// Allow 判断这次是否调用远程；半开时占用一个试探名额
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.cool()

	switch cb.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if cb.trying >= cb.trials {
			return false
		}
		cb.trying++
	}
	return true
}

// Done 上报远程调用结果
func (cb *CircuitBreaker) Done(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		if err == nil {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.trip()
		}
	case BreakerHalfOpen:
		cb.release()
		if err != nil {
			cb.trip()
			return
		}
		cb.state = BreakerClosed
		cb.failures = 0
	}
	// BreakerOpen: 熔断前发出的请求迟到的结果，忽略
}

// Abandon 放弃一次已放行的调用，不计成功也不计失败（例如调用方自己取消了请求）
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerHalfOpen {
		cb.release()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = BreakerOpen
	cb.openedAt = cb.now()
	cb.trying = 0
}

func (cb *CircuitBreaker) release() {
	if cb.trying > 0 {
		cb.trying--
	}
}

// cool 冷却结束转为半开，调用方需持有 mu
func (cb *CircuitBreaker) cool() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = BreakerHalfOpen
		cb.trying = 0
	}
}
