package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// 熔断器状态：closed → open → half_open → closed
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// ErrOpen 熔断器打开期间直接拒绝调用，不会触碰下游服务
var ErrOpen = errors.New("breaker: circuit open")

// Options 熔断参数
type Options struct {
	FailureThreshold int           // 连续失败多少次后熔断
	SuccessThreshold int           // 半开状态连续成功多少次后恢复
	OpenDuration     time.Duration // 熔断持续时长
	CallTimeout      time.Duration // 单次调用硬超时，超时计入失败
}

// DefaultOptions 默认参数，按外部 AI 服务的平均响应耗时设置
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenDuration:     30 * time.Second,
		CallTimeout:      120 * time.Second,
	}
}

// Breaker 保护对单个外部服务的调用。
// 失败/超时计数到达阈值后打开，OpenDuration 之后放行一个探测请求（半开），
// 探测成功累计到 SuccessThreshold 则闭合，半开期间任何一次失败立即重新打开。
type Breaker struct {
	name string
	opts Options

	mu        sync.Mutex
	state     string
	failures  int
	successes int
	openedAt  time.Time
	probing   bool // 半开状态下已放行探测请求、还没拿到结果
}

func New(name string, opts Options) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = 1
	}
	if opts.OpenDuration <= 0 {
		opts.OpenDuration = 30 * time.Second
	}
	return &Breaker{name: name, opts: opts, state: StateClosed}
}

func (b *Breaker) Name() string { return b.name }

// State 返回当前状态（会先结算 open → half_open 的时间迁移）
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Allow 判断当前是否允许发起调用。
// open 状态超过 OpenDuration 后第一次 Allow 会迁移到 half_open 并放行，
// 半开期间在拿到探测结果之前不再放行第二个请求。
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// refreshLocked 结算定时迁移，调用方必须已持有锁
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.opts.OpenDuration {
		b.state = StateHalfOpen
		b.successes = 0
		b.probing = false
	}
}

// RecordSuccess 上报一次成功
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.successes++
		if b.successes >= b.opts.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure 上报一次失败或超时
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		// 半开状态一次失败立即重新熔断
		b.probing = false
		b.state = StateOpen
		b.openedAt = time.Now()
	case StateClosed:
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	}
}

// Do 在熔断器保护下执行 fn，并施加 CallTimeout 硬超时。
// 熔断打开时返回 ErrOpen；fn 返回错误或超时都计入失败。
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}
	callCtx := ctx
	if b.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.opts.CallTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
