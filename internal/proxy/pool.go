package proxy

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"soundtracker/internal/domain"
	"soundtracker/internal/ports"
)

// ErrNoneAvailable signals that the pool is empty or every endpoint is
// cooling down. The retry controller decides whether that means a direct
// fetch or a deferred item.
var ErrNoneAvailable = errors.New("no proxy endpoint available")

const (
	defaultFailureThreshold = 3
	defaultCooldownBase     = time.Minute
	defaultCooldownMax      = 30 * time.Minute
)

// Options tune pool demotion behaviour. Zero values fall back to defaults.
type Options struct {
	// FailureThreshold is the consecutive-failure count that triggers a
	// cool-down.
	FailureThreshold int
	// CooldownBase is the first cool-down duration; it doubles on each
	// subsequent demotion up to CooldownMax.
	CooldownBase time.Duration
	CooldownMax  time.Duration
	Logger       *slog.Logger
	// now is swappable for tests.
	now func() time.Time
}

func (o *Options) defaults() {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = defaultFailureThreshold
	}
	if o.CooldownBase <= 0 {
		o.CooldownBase = defaultCooldownBase
	}
	if o.CooldownMax <= 0 {
		o.CooldownMax = defaultCooldownMax
	}
	if o.now == nil {
		o.now = time.Now
	}
}

type endpointState struct {
	endpoint  domain.ProxyEndpoint
	failures  int
	demotions int
	lastUsed  time.Time
	coolUntil time.Time // zero = available
}

// Pool owns the set of egress endpoints and their health state for the
// process lifetime. All access goes through its methods; the internal
// table is guarded by a single mutex since fetch attempts report
// concurrently.
type Pool struct {
	mu     sync.Mutex
	states map[string]*endpointState
	order  []string
	opts   Options
}

var _ ports.ProxyPool = (*Pool)(nil)

// NewPool builds a pool over the configured endpoints. An empty endpoint
// list is valid: Acquire then always reports ErrNoneAvailable and the
// pipeline fetches directly.
func NewPool(endpoints []domain.ProxyEndpoint, opts Options) *Pool {
	opts.defaults()

	p := &Pool{
		states: make(map[string]*endpointState, len(endpoints)),
		opts:   opts,
	}
	for _, ep := range endpoints {
		key := ep.Key()
		if _, dup := p.states[key]; dup {
			continue
		}
		p.states[key] = &endpointState{endpoint: ep}
		p.order = append(p.order, key)
	}
	return p
}

// Size returns the number of configured endpoints.
func (p *Pool) Size() int {
	return len(p.order)
}

// Acquire returns the least-recently-used endpoint that is not cooling
// down. Ties resolve in configuration order.
func (p *Pool) Acquire() (domain.ProxyEndpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.now()
	var pick *endpointState
	for _, key := range p.order {
		st := p.states[key]
		if st.coolUntil.After(now) {
			continue
		}
		if pick == nil || st.lastUsed.Before(pick.lastUsed) {
			pick = st
		}
	}
	if pick == nil {
		return domain.ProxyEndpoint{}, ErrNoneAvailable
	}

	pick.lastUsed = now
	return pick.endpoint, nil
}

// ReportFailure bumps the consecutive-failure count and, once it crosses
// the threshold, demotes the endpoint to a cool-down that doubles on each
// repeat demotion.
func (p *Pool) ReportFailure(ep domain.ProxyEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[ep.Key()]
	if !ok {
		return
	}

	st.failures++
	if st.failures < p.opts.FailureThreshold {
		return
	}

	cooldown := p.opts.CooldownBase << st.demotions
	if cooldown > p.opts.CooldownMax || cooldown <= 0 {
		cooldown = p.opts.CooldownMax
	}
	st.coolUntil = p.opts.now().Add(cooldown)
	st.failures = 0
	st.demotions++

	if p.opts.Logger != nil {
		p.opts.Logger.Warn("proxy cooling down", "endpoint", ep.Key(), "cooldown", cooldown)
	}
}

// ReportSuccess clears failure state and any cool-down, making the
// endpoint immediately eligible again.
func (p *Pool) ReportSuccess(ep domain.ProxyEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[ep.Key()]
	if !ok {
		return
	}
	st.failures = 0
	st.demotions = 0
	st.coolUntil = time.Time{}
}
