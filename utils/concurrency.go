package utils

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound requests of one source by a minimum interval.
// Callers issue requests one at a time and call Wait before each.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer. A zero interval disables pacing.
func NewPacer(minInterval time.Duration) *Pacer {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// URLSet tracks fetch URLs already handled in one collection run. URLs are
// compared without their fragment or a trailing slash.
type URLSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

func urlKey(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSuffix(u, "/")
}

// Add reports whether u was not seen before.
func (s *URLSet) Add(u string) bool {
	k := urlKey(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}
