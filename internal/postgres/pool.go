package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultAcquireTimeout = 500 * time.Millisecond
	DefaultAcquireTick    = 100 * time.Millisecond
	DefaultResetTimeout   = 5 * time.Second
)

// PoolConfig sizes the pool and bounds Acquire and Release.
type PoolConfig struct {
	Size           int
	AcquireTimeout time.Duration // total wait before ErrAcquireTimeout
	AcquireTick    time.Duration // re-check interval while waiting
	ResetTimeout   time.Duration // bound on healing a connection in Release
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Size    int // configured capacity
	Live    int // open connections, idle or in use
	Idle    int
	InUse   int
	Waiting int // callers blocked in Acquire
}

type pooledConn struct {
	conn Conn
	gen  uint64
}

// Lease is exclusive ownership of one pooled connection between Acquire and
// Release.
type Lease struct {
	pc       *pooledConn
	released atomic.Bool
}

// Conn returns the leased connection. It must not be used after Release.
func (l *Lease) Conn() Conn {
	return l.pc.conn
}

// ConnectionPool is a fixed-size set of connections shared by concurrent
// callers.
type ConnectionPool struct {
	client         Client
	size           int
	acquireTimeout time.Duration
	acquireTick    time.Duration
	resetTimeout   time.Duration
	logger         *slog.Logger

	connectMu sync.Mutex // serializes Connect and Replenish

	mu      sync.Mutex
	free    []*pooledConn
	live    int
	gen     uint64
	params  ConnectionParams
	closed  bool
	waiters []chan *pooledConn
}

// NewConnectionPool creates a pool of cfg.Size connections. The pool holds
// no connections until Connect succeeds.
func NewConnectionPool(client Client, cfg PoolConfig, logger *slog.Logger) (*ConnectionPool, error) {
	if cfg.Size < 1 {
		return nil, newError(ErrPool, "new pool", fmt.Sprintf("number of connections must be >= 1, got %d", cfg.Size))
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.AcquireTick <= 0 {
		cfg.AcquireTick = DefaultAcquireTick
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ConnectionPool{
		client:         client,
		size:           cfg.Size,
		acquireTimeout: cfg.AcquireTimeout,
		acquireTick:    cfg.AcquireTick,
		resetTimeout:   cfg.ResetTimeout,
		logger:         logger,
		closed:         true,
	}, nil
}

// Connect (re)establishes every connection. It is all-or-nothing: if any
// connection fails to open, the ones opened so far are closed, the pool is
// left empty and an ErrConnect error carries the driver message.
func (p *ConnectionPool) Connect(ctx context.Context, params ConnectionParams) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	old := p.free
	p.free = nil
	p.live = 0
	p.gen++
	p.closed = true
	gen := p.gen
	p.mu.Unlock()
	closeAll(old)

	opened := make([]*pooledConn, 0, p.size)
	for i := 0; i < p.size; i++ {
		conn := p.client.Connect(ctx, params)
		if conn.Status() != StatusOK {
			msg := conn.ErrorMessage()
			_ = conn.Close()
			closeAll(opened)
			p.logger.Error("connection pool connect failed",
				"opened", i, "size", p.size, "error", msg)
			return newError(ErrConnect, "connect", msg)
		}
		opened = append(opened, &pooledConn{conn: conn, gen: gen})
	}

	p.mu.Lock()
	p.live = len(opened)
	p.params = params
	p.closed = false
	for _, pc := range opened {
		p.putLocked(pc)
	}
	p.mu.Unlock()

	p.logger.Info("connection pool connected", "size", p.size)
	return nil
}

// Disconnect closes every idle connection and closes the pool. Connections
// on loan are closed when they are released.
func (p *ConnectionPool) Disconnect() {
	p.mu.Lock()
	old := p.free
	p.free = nil
	p.live = 0
	p.gen++
	p.closed = true
	for _, ready := range p.waiters {
		close(ready)
	}
	p.waiters = nil
	p.mu.Unlock()

	closeAll(old)
}

// Acquire removes a connection from the pool, waiting up to the configured
// timeout for one to be released. Waiters are served in arrival order: a
// released connection is handed to the oldest waiter and never becomes idle
// while anyone is queued.
func (p *ConnectionPool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newError(ErrPoolClosed, "acquire", "")
	}
	if n := len(p.free); n > 0 {
		pc := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return &Lease{pc: pc}, nil
	}
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return nil, &Error{Kind: ErrPool, Op: "acquire", Err: err}
	}
	ready := make(chan *pooledConn, 1)
	p.waiters = append(p.waiters, ready)
	p.mu.Unlock()

	deadline := time.NewTimer(p.acquireTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(p.acquireTick)
	defer tick.Stop()

	for {
		select {
		case pc, ok := <-ready:
			if !ok {
				return nil, newError(ErrPoolClosed, "acquire", "")
			}
			return &Lease{pc: pc}, nil
		case <-tick.C:
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return p.abandon(ready, newError(ErrPoolClosed, "acquire", ""))
			}
		case <-deadline.C:
			return p.abandon(ready, newError(ErrAcquireTimeout, "acquire", fmt.Sprintf("waited %s", p.acquireTimeout)))
		case <-ctx.Done():
			return p.abandon(ready, &Error{Kind: ErrPool, Op: "acquire", Err: ctx.Err()})
		}
	}
}

// abandon leaves the wait queue. A connection handed over in the meantime
// is taken rather than lost.
func (p *ConnectionPool) abandon(ready chan *pooledConn, err error) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removeWaiterLocked(ready) {
		return nil, err
	}
	// Handoffs and closes happen under mu, so the channel is already settled.
	pc, ok := <-ready
	if !ok {
		return nil, newError(ErrPoolClosed, "acquire", "")
	}
	return &Lease{pc: pc}, nil
}

// Release returns a leased connection. An unhealthy connection is reset
// first; if the reset does not restore it, the connection is closed and
// dropped from the pool and an ErrReset error is returned.
func (p *ConnectionPool) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return newError(ErrPool, "release", "nil lease")
	}
	if !lease.released.CompareAndSwap(false, true) {
		return newError(ErrPool, "release", "connection released twice")
	}
	pc := lease.pc

	if p.isStale(pc) {
		_ = pc.conn.Close()
		return nil
	}

	if pc.conn.Status() != StatusOK {
		resetCtx, cancel := context.WithTimeout(ctx, p.resetTimeout)
		pc.conn.Reset(resetCtx)
		cancel()
		if pc.conn.Status() != StatusOK {
			msg := pc.conn.ErrorMessage()
			_ = pc.conn.Close()

			p.mu.Lock()
			if pc.gen == p.gen {
				p.live--
			}
			live := p.live
			p.mu.Unlock()

			p.logger.Warn("dropped connection after failed reset",
				"live", live, "size", p.size, "error", msg)
			return newError(ErrReset, "release", msg)
		}
	}

	p.mu.Lock()
	if p.closed || pc.gen != p.gen {
		p.mu.Unlock()
		_ = pc.conn.Close()
		return nil
	}
	p.putLocked(pc)
	p.mu.Unlock()
	return nil
}

// Replenish opens connections for slots lost to failed resets. It returns
// the number of connections added.
func (p *ConnectionPool) Replenish(ctx context.Context) (int, error) {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, nil
	}
	missing := p.size - p.live
	params := p.params
	gen := p.gen
	p.mu.Unlock()

	added := 0
	for i := 0; i < missing; i++ {
		conn := p.client.Connect(ctx, params)
		if conn.Status() != StatusOK {
			msg := conn.ErrorMessage()
			_ = conn.Close()
			return added, newError(ErrConnect, "replenish", msg)
		}

		p.mu.Lock()
		if p.closed || p.gen != gen {
			p.mu.Unlock()
			_ = conn.Close()
			return added, nil
		}
		p.live++
		p.putLocked(&pooledConn{conn: conn, gen: gen})
		p.mu.Unlock()
		added++
	}

	if added > 0 {
		p.logger.Info("connection pool replenished", "added", added)
	}
	return added, nil
}

// Count returns the number of idle connections.
func (p *ConnectionPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the configured capacity.
func (p *ConnectionPool) Size() int {
	return p.size
}

// Stats returns a snapshot of the pool counters.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Size:    p.size,
		Live:    p.live,
		Idle:    len(p.free),
		InUse:   p.live - len(p.free),
		Waiting: len(p.waiters),
	}
}

func (p *ConnectionPool) isStale(pc *pooledConn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || pc.gen != p.gen
}

// putLocked hands pc to the oldest waiter, or makes it idle when nobody
// is waiting.
func (p *ConnectionPool) putLocked(pc *pooledConn) {
	if len(p.waiters) == 0 {
		p.free = append(p.free, pc)
		return
	}
	ready := p.waiters[0]
	p.waiters[0] = nil
	p.waiters = p.waiters[1:]
	ready <- pc
}

func (p *ConnectionPool) removeWaiterLocked(ready chan *pooledConn) bool {
	for i, w := range p.waiters {
		if w == ready {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func closeAll(conns []*pooledConn) {
	for _, pc := range conns {
		_ = pc.conn.Close()
	}
}
