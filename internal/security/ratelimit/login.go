package ratelimit

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginThrottle limits login attempts with token buckets keyed both by
// (tenant, email) and by client address. An attempt must pass both.
type LoginThrottle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	accounts map[string]*entry
	clients  map[string]*entry
	now      func() time.Time
	idle     time.Duration
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLoginThrottle allows perMinute sustained attempts with the given burst.
func NewLoginThrottle(perMinute, burst int) *LoginThrottle {
	if burst <= 0 {
		burst = 1
	}
	return &LoginThrottle{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		accounts: make(map[string]*entry),
		clients:  make(map[string]*entry),
		now:      time.Now,
		idle:     30 * time.Minute,
	}
}

// Allow records one attempt and reports whether it may proceed. Both keys
// are charged even when one of them is exhausted, so a blocked address
// cannot probe other accounts for free.
func (t *LoginThrottle) Allow(tenantID int64, email, clientIP string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	account := strconv.FormatInt(tenantID, 10) + "|" + strings.ToLower(email)
	okAccount := t.take(t.accounts, account, now)
	okClient := clientIP == "" || t.take(t.clients, clientIP, now)
	t.evict(now)
	return okAccount && okClient
}

func (t *LoginThrottle) take(m map[string]*entry, key string, now time.Time) bool {
	e, ok := m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(t.limit, t.burst)}
		m[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (t *LoginThrottle) evict(now time.Time) {
	if len(t.accounts)+len(t.clients) < 4096 {
		return
	}
	t.dropIdle(now)
}

func (t *LoginThrottle) dropIdle(now time.Time) int {
	removed := 0
	for _, m := range []map[string]*entry{t.accounts, t.clients} {
		for k, e := range m {
			if now.Sub(e.lastSeen) > t.idle {
				delete(m, k)
				removed++
			}
		}
	}
	return removed
}

// Sweep drops buckets idle for longer than the idle window and returns how
// many were removed.
func (t *LoginThrottle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropIdle(t.now())
}
