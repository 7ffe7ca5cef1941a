package jsbind

import (
	"sync"

	"github.com/yejune/jsbind/internal/engine"
)

// Pool manages a pool of contexts for reuse
type Pool struct {
	config   Config
	pool     chan *Context
	maxSize  int
	created  int
	closed   bool
	mu       sync.Mutex

	// Track all created contexts for proper cleanup
	allContexts []*Context
	contextsMu  sync.Mutex
}

// PoolConfig configures the context pool
type PoolConfig struct {
	Config   Config
	PoolSize int // Maximum number of contexts to keep in pool
}

// NewPool creates a new context pool
func NewPool(config PoolConfig) (*Pool, error) {
	if config.PoolSize <= 0 {
		config.PoolSize = 10
	}
	// Pooled contexts share work; dev tools belong to standalone
	// contexts, not pool members.
	config.Config.IsDev = false

	p := &Pool{
		config:      config.Config,
		maxSize:     config.PoolSize,
		pool:        make(chan *Context, config.PoolSize),
		allContexts: make([]*Context, 0, config.PoolSize),
	}

	// Pre-warm the pool
	for i := 0; i < config.PoolSize; i++ {
		ctx, err := p.createContext()
		if err != nil {
			p.Close()
			return nil, err
		}
		p.pool <- ctx
	}

	return p, nil
}

// createContext creates a new context and tracks it
func (p *Pool) createContext() (*Context, error) {
	ctx, err := New(p.config)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.created++
	p.mu.Unlock()

	// Track for cleanup
	p.contextsMu.Lock()
	p.allContexts = append(p.allContexts, ctx)
	p.contextsMu.Unlock()

	return ctx, nil
}

// Get retrieves a context from the pool
func (p *Pool) Get() (*Context, error) {
	select {
	case ctx := <-p.pool:
		return ctx, nil
	default:
		// Pool is empty, create a new one
		return p.createContext()
	}
}

// Put returns a context to the pool
func (p *Pool) Put(ctx *Context) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		ctx.destroy()
		return
	}

	// A poisoned or otherwise unresettable context never goes back.
	if err := ctx.reset(); err != nil {
		ctx.destroy()
		return
	}
	select {
	case p.pool <- ctx:
		// Successfully returned to pool
	default:
		// Pool is full, destroy the context
		ctx.destroy()
	}
}

// Eval is a convenience method that gets a context, evaluates a script,
// and returns the context to the pool
func (p *Pool) Eval(src string) (any, error) {
	ctx, err := p.Get()
	if err != nil {
		return nil, err
	}
	defer p.Put(ctx)
	return ctx.Eval(src)
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"engine_type":   engine.DefaultEngineType(),
		"total_created": p.created,
		"max_pool_size": p.maxSize,
		"pool_size":     len(p.pool),
		"closed":        p.closed,
	}
}

// Close marks the pool as closed and destroys all contexts
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// Drain the pool
	close(p.pool)
	for ctx := range p.pool {
		ctx.destroy()
	}

	// Destroy any remaining tracked contexts
	p.contextsMu.Lock()
	for _, ctx := range p.allContexts {
		ctx.destroy()
	}
	p.allContexts = nil
	p.contextsMu.Unlock()
}
