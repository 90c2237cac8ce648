package breaker

import "sync"

// Registry 按服务名维护一组熔断器，同名服务共享状态
type Registry struct {
	mu       sync.Mutex
	opts     Options
	breakers map[string]*Breaker
}

func NewRegistry(opts Options) *Registry {
	return &Registry{opts: opts, breakers: make(map[string]*Breaker)}
}

// Get 返回指定服务的熔断器，不存在则创建
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.opts)
		r.breakers[name] = b
	}
	return b
}

// IsAvailable 指定服务当前是否可用（closed，或 open 到期后的半开探测窗口）
func (r *Registry) IsAvailable(name string) bool {
	return r.Get(name).Allow()
}
