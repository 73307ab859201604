package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/observability/metrics"
	"github.com/yourorg/qualityhub/internal/reliability/circuitbreaker"
)

const tenantKeyPrefix = "qualityhub:tenant:"

// cachedTenant is the stored form of a tenant.
type cachedTenant struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Subdomain string   `json:"subdomain"`
	Modules   []string `json:"modules"`
	IsActive  bool     `json:"isActive"`
}

// TenantCache is the shared second-level tenant cache. Every call goes
// through a circuit breaker; a Redis failure is reported as a miss so the
// caller falls through to the database.
type TenantCache struct {
	client  *Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewTenantCache(client *Client, ttl time.Duration, logger *slog.Logger) *TenantCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	cb := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	cb.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("redis circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		metrics.SetCircuitState("redis", int(to))
	})
	return &TenantCache{client: client, ttl: ttl, breaker: cb, logger: logger}
}

func tenantKey(subdomain string) string { return tenantKeyPrefix + subdomain }

// Get returns the cached tenant for subdomain, or false on a miss.
func (c *TenantCache) Get(ctx context.Context, subdomain string) (*domain.Tenant, bool) {
	var raw string
	var found bool
	err := c.breaker.Execute(func() error {
		v, ok, err := c.client.Get(ctx, tenantKey(subdomain))
		raw, found = v, ok
		return err
	})
	if err != nil {
		c.logFailure("get", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var ct cachedTenant
	if err := json.Unmarshal([]byte(raw), &ct); err != nil {
		c.logger.Warn("discarding unreadable tenant cache entry",
			slog.String("subdomain", subdomain),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	modules, err := domain.ParseModuleSet(ct.Modules)
	if err != nil {
		return nil, false
	}
	return &domain.Tenant{ID: ct.ID, Name: ct.Name, Subdomain: ct.Subdomain, Modules: modules, IsActive: ct.IsActive}, true
}

// Set stores t under its subdomain.
func (c *TenantCache) Set(ctx context.Context, t *domain.Tenant) {
	data, err := json.Marshal(cachedTenant{
		ID:        t.ID,
		Name:      t.Name,
		Subdomain: t.Subdomain,
		Modules:   t.Modules.Names(),
		IsActive:  t.IsActive,
	})
	if err != nil {
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.client.Set(ctx, tenantKey(t.Subdomain), data, c.ttl)
	}); err != nil {
		c.logFailure("set", err)
	}
}

// Invalidate drops the entry for t.
func (c *TenantCache) Invalidate(ctx context.Context, t *domain.Tenant) {
	if err := c.breaker.Execute(func() error {
		return c.client.Delete(ctx, tenantKey(t.Subdomain))
	}); err != nil {
		c.logFailure("invalidate", err)
	}
}

// State exposes the breaker state for readiness reporting.
func (c *TenantCache) State() circuitbreaker.State { return c.breaker.GetState() }

func (c *TenantCache) logFailure(op string, err error) {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		c.logger.Debug("redis skipped, circuit open", slog.String("op", op))
		return
	}
	c.logger.Warn("redis tenant cache error", slog.String("op", op), slog.String("error", err.Error()))
}
