package ratelimiter

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// unlimitedRate is used when a zero rate is configured. rate.Inf has edge
// cases around burst handling, so a very large finite limit is used instead.
const unlimitedRate = 1_000_000_000

// RateLimiter is a token bucket wrapping golang.org/x/time/rate.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained with a
// bucket of burst tokens. A zero rate disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimitedRate
		burst = requestsPerSecond
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available and never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// PeerLimiter keeps one RateLimiter per peer key (usually a remote IP).
//
// The set of tracked peers is bounded by an LRU: the least recently seen peer
// is forgotten when maxPeers is exceeded, which only ever resets that peer's
// bucket to full.
type PeerLimiter struct {
	rps   uint
	burst uint

	mu    sync.Mutex
	peers *lru.Cache
}

// NewPeerLimiter returns nil when requestsPerSecond is zero, meaning
// unlimited. A nil *PeerLimiter is valid and allows everything.
func NewPeerLimiter(requestsPerSecond, burst uint, maxPeers int) (*PeerLimiter, error) {
	if requestsPerSecond == 0 {
		return nil, nil
	}
	if maxPeers <= 0 {
		maxPeers = 1024
	}

	cache, err := lru.New(maxPeers)
	if err != nil {
		return nil, err
	}

	return &PeerLimiter{
		rps:   requestsPerSecond,
		burst: burst,
		peers: cache,
	}, nil
}

func (p *PeerLimiter) get(peer string) *RateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.peers.Get(peer); ok {
		return v.(*RateLimiter)
	}
	l := New(p.rps, p.burst)
	p.peers.Add(peer, l)
	return l
}

// Allow reports whether peer may issue a request right now.
func (p *PeerLimiter) Allow(peer string) bool {
	if p == nil {
		return true
	}
	return p.get(peer).Allow()
}

// Wait throttles peer until its bucket has a token or ctx is done.
func (p *PeerLimiter) Wait(ctx context.Context, peer string) error {
	if p == nil {
		return nil
	}
	return p.get(peer).Wait(ctx)
}

// Len returns the number of peers currently tracked.
func (p *PeerLimiter) Len() int {
	if p == nil {
		return 0
	}
	return p.peers.Len()
}
