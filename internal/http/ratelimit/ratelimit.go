package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	httperrors "gitea.jw6.us/james/crmdesk/internal/http/errors"
)

const defaultMaxEntries = 10000

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu             sync.Mutex
	limiters       map[netip.Addr]*limiterEntry
	rate           rate.Limit
	burst          int
	idle           time.Duration
	maxEntries     int
	trustedProxies []netip.Prefix

	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewIPRateLimiter allows r requests per second with bursts of b per client.
// Entries idle for twice the cleanup interval are dropped by a background
// goroutine that runs until Close. trustedProxies lists CIDRs or single
// addresses whose forwarding headers are honored; when empty, every peer is
// trusted.
func NewIPRateLimiter(r rate.Limit, b int, cleanup time.Duration, trustedProxies []string) *IPRateLimiter {
	l := &IPRateLimiter{
		limiters:   make(map[netip.Addr]*limiterEntry),
		rate:       r,
		burst:      b,
		idle:       2 * cleanup,
		maxEntries: defaultMaxEntries,
		stop:       make(chan struct{}),
	}

	for _, raw := range trustedProxies {
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			l.trustedProxies = append(l.trustedProxies, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			l.trustedProxies = append(l.trustedProxies, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}

	go l.cleanupStale(cleanup)
	return l
}

// Close stops the cleanup goroutine.
func (l *IPRateLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Allow reports whether the client at addr may proceed now.
func (l *IPRateLimiter) Allow(addr netip.Addr) bool {
	return l.getLimiter(addr).Allow()
}

func (l *IPRateLimiter) getLimiter(addr netip.Addr) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[addr]
	if !ok {
		if len(l.limiters) >= l.maxEntries {
			l.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[addr] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}

func (l *IPRateLimiter) evictOldest() {
	var (
		oldest     netip.Addr
		oldestTime time.Time
		found      bool
	)
	for addr, entry := range l.limiters {
		if !found || entry.lastAccess.Before(oldestTime) {
			oldest, oldestTime, found = addr, entry.lastAccess, true
		}
	}
	if found {
		delete(l.limiters, oldest)
	}
}

func (l *IPRateLimiter) cleanupStale(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *IPRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.idle)
	for addr, entry := range l.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(l.limiters, addr)
		}
	}
}

func (l *IPRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware rejects requests over the limit with 429.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(l.clientAddr(r)) {
				httperrors.TooManyRequests(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *IPRateLimiter) clientAddr(r *http.Request) netip.Addr {
	remote := parseAddr(r.RemoteAddr)

	if len(l.trustedProxies) > 0 && !l.trusted(remote) {
		return remote
	}

	// X-Forwarded-For is "client, proxy1, proxy2"; the leftmost entry is the
	// original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.Unmap()
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap()
		}
	}
	return remote
}

func (l *IPRateLimiter) trusted(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	for _, prefix := range l.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseAddr(hostport string) netip.Addr {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
