// Package proxypool selects outbound proxy endpoints under a
// configurable rotation strategy and tracks endpoint health.
package proxypool

import (
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"
)

type Strategy string

const (
	RoundRobin Strategy = "round_robin"
	Random     Strategy = "random"
	Failover   Strategy = "failover"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case RoundRobin, Random, Failover:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown proxy rotation strategy %q (valid: round_robin, random, failover)", s)
}

// ErrPoolExhausted means every endpoint is currently excluded. The
// caller decides whether to go direct or give up.
var ErrPoolExhausted = errors.New("all proxy endpoints are excluded")

type Outcome int

const (
	// the fetch through this endpoint completed
	Success Outcome = iota
	// the fetch failed in a way attributable to the endpoint
	Failure
	// the fetch was cancelled before the endpoint could be judged
	Unreported
)

type Endpoint struct {
	URL *url.URL
}

type endpointState struct {
	endpoint   Endpoint
	failures   int
	excludedAt time.Time
	// a probation acquire has been handed out and not yet reported
	probing bool
}

func (s *endpointState) excluded() bool {
	return !s.excludedAt.IsZero()
}

type Options struct {
	Strategy Strategy
	// consecutive failures before an endpoint is excluded
	MaxFailures int
	// how long an excluded endpoint sits out before one probation try
	HealthCheckInterval time.Duration
	// injectable for tests
	Now  func() time.Time
	Rand *rand.Rand
}

type Pool struct {
	mu        sync.Mutex
	endpoints []*endpointState
	strategy  Strategy
	// round-robin cursor / failover preferred index
	cursor int

	maxFailures         int
	healthCheckInterval time.Duration
	now                 func() time.Time
	rng                 *rand.Rand
}

func New(proxies []string, opts Options) (*Pool, error) {
	if len(proxies) == 0 {
		return nil, errors.New("proxy pool requires at least one endpoint")
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = RoundRobin
	}
	maxFailures := opts.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	interval := opts.HealthCheckInterval
	if interval <= 0 {
		interval = time.Minute * 5
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	endpoints := make([]*endpointState, len(proxies))
	for i, raw := range proxies {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy endpoint %q: %w", raw, err)
		}
		// bare host:port strings parse with a bogus or empty scheme
		if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
			u, err = url.Parse("http://" + raw)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy endpoint %q: %w", raw, err)
			}
		}
		endpoints[i] = &endpointState{endpoint: Endpoint{URL: u}}
	}

	return &Pool{
		endpoints:           endpoints,
		strategy:            strategy,
		maxFailures:         maxFailures,
		healthCheckInterval: interval,
		now:                 now,
		rng:                 rng,
	}, nil
}

// an excluded endpoint becomes eligible for one probation acquire after
// the health check interval has elapsed
func (p *Pool) eligible(s *endpointState) bool {
	if !s.excluded() {
		return true
	}
	if s.probing {
		return false
	}
	return p.now().Sub(s.excludedAt) >= p.healthCheckInterval
}

// Acquire picks the next endpoint under the pool's strategy.
func (p *Pool) Acquire() (Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []int
	for i, s := range p.endpoints {
		if p.eligible(s) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return Endpoint{}, ErrPoolExhausted
	}

	var chosen int
	switch p.strategy {
	case Random:
		chosen = candidates[p.rng.Intn(len(candidates))]
	case Failover:
		// stick with the preferred endpoint while it stays healthy,
		// otherwise take the next eligible one after it
		chosen = candidates[0]
		for _, i := range candidates {
			if i >= p.cursor {
				chosen = i
				break
			}
		}
		p.cursor = chosen
	default: // RoundRobin
		chosen = candidates[0]
		for _, i := range candidates {
			if i >= p.cursor {
				chosen = i
				break
			}
		}
		p.cursor = chosen + 1
		if p.cursor >= len(p.endpoints) {
			p.cursor = 0
		}
	}

	state := p.endpoints[chosen]
	if state.excluded() {
		state.probing = true
	}
	return state.endpoint, nil
}

// Report feeds back the outcome of a fetch through an endpoint,
// updating its health state.
func (p *Pool) Report(e Endpoint, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.endpoints {
		if s.endpoint.URL.String() != e.URL.String() {
			continue
		}

		switch outcome {
		case Success:
			s.failures = 0
			s.excludedAt = time.Time{}
			s.probing = false
		case Failure:
			wasProbing := s.probing
			s.probing = false
			s.failures++
			if wasProbing || s.failures >= p.maxFailures {
				s.excludedAt = p.now()
			}
			// failover moves its preference off a degraded endpoint
			// immediately, exclusion or not
			if p.strategy == Failover && p.cursor == i {
				p.cursor = (i + 1) % len(p.endpoints)
			}
		case Unreported:
			// cancellation says nothing about endpoint health
			s.probing = false
		}
		return
	}
}

// Healthy returns the number of endpoints currently not excluded.
func (p *Pool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, s := range p.endpoints {
		if !s.excluded() {
			count++
		}
	}
	return count
}
