package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"EstouBem/pkg/logger"
)

// ErrOpen 熔断中，调用被直接拒绝
var ErrOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 关闭状态：正常工作
	StateOpen                  // 开启状态：熔断中
	StateHalfOpen              // 半开状态：尝试恢复
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker 投递渠道熔断器：服务商连续失败时短路，避免每个用户都耗尽重试预算
type CircuitBreaker struct {
	name             string
	maxFailures      int           // 最大失败次数
	resetTimeout     time.Duration // 重置超时时间
	halfOpenMaxCalls int           // 半开状态最大并发探测次数
	now              func() time.Time

	// 返回 true 的错误不计入失败（例如服务商明确拒绝的号码）
	ignore func(error) bool

	mu            sync.Mutex
	state         State
	failures      int
	lastFailTime  time.Time
	halfOpenCalls int
}

type Option func(*CircuitBreaker)

// WithClock 测试里注入时钟
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithIgnore 指定不计入失败的错误
func WithIgnore(ignore func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.ignore = ignore }
}

// New 创建熔断器，maxFailures <= 0 时视为不熔断
func New(name string, maxFailures int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: 1,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call 执行带熔断保护的操作
func (cb *CircuitBreaker) Call(ctx context.Context, operation func(context.Context) error) error {
	if !cb.allowRequest() {
		return ErrOpen
	}

	err := operation(ctx)
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.maxFailures <= 0 {
		return true
	}

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) < cb.resetTimeout {
			return false
		}
		cb.transitionTo(StateHalfOpen)
		cb.halfOpenCalls++
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.maxFailures <= 0 {
		return
	}

	if err == nil || (cb.ignore != nil && cb.ignore(err)) || errors.Is(err, context.Canceled) {
		cb.onSuccess()
		return
	}
	cb.onFailure()
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.transitionTo(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state State) {
	from := cb.state
	cb.state = state
	cb.halfOpenCalls = 0
	if state == StateClosed {
		cb.failures = 0
	}

	fields := []zap.Field{
		zap.String("breaker", cb.name),
		zap.String("from", from.String()),
		zap.String("to", state.String()),
		zap.Int("failures", cb.failures),
	}
	if state == StateOpen {
		logger.Logger.Warn("Circuit breaker state changed", append(fields, zap.Duration("reset_timeout", cb.resetTimeout))...)
		return
	}
	logger.Logger.Info("Circuit breaker state changed", fields...)
}

// GetState 获取当前状态
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name 熔断器名称
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
