package dhcpv4

import (
	"sync"

	"golang.org/x/time/rate"
)

// DiscoverLimiter bounds how often a single MAC's DISCOVER messages are
// handled, so one misbehaving client cannot exhaust the lease table by
// flooding DISCOVERs. Disabled by default (a Server with no limiter
// installed processes every DISCOVER); grounded on x/time/rate, present in
// the domain stack of ngcxy-dranet's go.mod.
type DiscoverLimiter struct {
	mu       sync.Mutex
	limiters map[[6]byte]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewDiscoverLimiter constructs a limiter allowing r DISCOVERs per second,
// per MAC, with the given burst.
func NewDiscoverLimiter(r rate.Limit, burst int) *DiscoverLimiter {
	return &DiscoverLimiter{
		limiters: make(map[[6]byte]*rate.Limiter),
		r:        r,
		burst:    burst,
	}
}

// Allow reports whether mac's current DISCOVER should be processed,
// creating a fresh token bucket for MACs not seen before.
func (d *DiscoverLimiter) Allow(mac [6]byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	lim, ok := d.limiters[mac]
	if !ok {
		lim = rate.NewLimiter(d.r, d.burst)
		d.limiters[mac] = lim
	}
	return lim.Allow()
}
