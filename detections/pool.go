package detections

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/oceanwatch/plastic-detection-service/metrics"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// SessionFactory creates one ready-to-run model session.
type SessionFactory func() (*ModelSession, error)

// ModelSessionPool hands out model sessions one request at a time. A session
// is never used by two goroutines at once.
type ModelSessionPool struct {
	sessions       chan *ModelSession
	size           int
	factory        SessionFactory
	acquireTimeout time.Duration
	// mu also serialises every send on sessions.
	mu             sync.Mutex
	closed         bool
	checkedOut     int
	done           chan struct{}
	metrics        *PoolMetrics
	lastErrors     []string
}

type PoolMetrics struct {
	mu              sync.RWMutex
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	discarded       int64
	waitTime        time.Duration
}

// PoolStats is a point-in-time copy of the pool counters.
type PoolStats struct {
	Size            int           `json:"pool_size"`
	Available       int           `json:"sessions_available"`
	InUse           int           `json:"sessions_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	Discarded       int64         `json:"discarded"`
	WaitTime        time.Duration `json:"wait_time_ns"`
	LastErrors      []string      `json:"last_errors"`
}

func NewModelSessionPool(factory SessionFactory, size int) (*ModelSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &ModelSessionPool{
		sessions:       make(chan *ModelSession, size),
		size:           size,
		factory:        factory,
		acquireTimeout: AcquireTimeout,
		done:           make(chan struct{}),
		metrics:        &PoolMetrics{},
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	go pool.healthCheck(HealthCheckPeriod)

	return pool, nil
}

func (p *ModelSessionPool) Acquire(ctx context.Context) (*ModelSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		wait := time.Since(start)
		metrics.PoolWaitSeconds.Observe(wait.Seconds())
		p.metrics.mu.Lock()
		p.metrics.waitTime += wait
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		p.checkedOut++
		p.mu.Unlock()
		p.metrics.mu.Lock()
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		metrics.PoolSessionsInUse.Inc()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		metrics.PoolAcquireFailures.Inc()
		return nil, fmt.Errorf("%w: waited %v", ErrPoolBusy, p.acquireTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool. Sessions that failed during a run
// are destroyed instead and recreated by the health check. Release never
// blocks: a session that finds the pool already full is destroyed.
func (p *ModelSessionPool) Release(session *ModelSession, healthy bool) {
	p.metrics.mu.Lock()
	p.metrics.totalReleased++
	if !healthy {
		p.metrics.discarded++
	}
	p.metrics.mu.Unlock()
	metrics.PoolSessionsInUse.Dec()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkedOut--
	if p.closed || !healthy {
		session.Destroy()
		return
	}
	select {
	case p.sessions <- session:
	default:
		session.Destroy()
	}
}

func (p *ModelSessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *ModelSessionPool) healthCheck(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

// replenish tops the pool back up to its configured size, counting sessions
// that are currently checked out as present.
func (p *ModelSessionPool) replenish() {
	p.mu.Lock()
	missing := p.size - len(p.sessions) - p.checkedOut
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			log.WithError(err).Warn("could not recreate detector session")
			continue
		}

		p.mu.Lock()
		if p.closed || len(p.sessions)+p.checkedOut >= p.size {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		select {
		case p.sessions <- session:
			p.mu.Unlock()
			metrics.PoolReplenished.Inc()
		default:
			p.mu.Unlock()
			session.Destroy()
			return
		}
	}
}

func (p *ModelSessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err.Error())
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *ModelSessionPool) Stats() PoolStats {
	p.mu.Lock()
	available, inUse := len(p.sessions), p.checkedOut
	lastErrors := append([]string{}, p.lastErrors...)
	p.mu.Unlock()

	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return PoolStats{
		Size:            p.size,
		Available:       available,
		InUse:           inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		Discarded:       p.metrics.discarded,
		WaitTime:        p.metrics.waitTime,
		LastErrors:      lastErrors,
	}
}
