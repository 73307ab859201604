// Package resolver maps an inbound Host header onto a tenant.
//
// The leftmost DNS label of the host is the tenant subdomain. Hosts without
// a subdomain (bare "localhost", preview domains) only resolve through the
// explicit fallback table, and only when that table is enabled.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/observability/metrics"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/tenancy"
	"github.com/yourorg/qualityhub/pkg/cache"
	"github.com/yourorg/qualityhub/pkg/config"
)

// SharedCache is the optional second-level cache, backed by Redis in
// production.
type SharedCache interface {
	Get(ctx context.Context, subdomain string) (*domain.Tenant, bool)
	Set(ctx context.Context, t *domain.Tenant)
	Invalidate(ctx context.Context, t *domain.Tenant)
}

// Options configures a Resolver.
type Options struct {
	Fallback config.HostFallback
	// CacheTTL bounds how long a resolved tenant is served from memory.
	CacheTTL time.Duration
	Shared   SharedCache
}

// Resolver resolves tenants from hostnames.
type Resolver struct {
	tenants  repository.TenantRepository
	fallback config.HostFallback
	local    *cache.Cache[*domain.Tenant]
	ttl      time.Duration
	shared   SharedCache
	logger   *slog.Logger
}

func New(tenants repository.TenantRepository, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Resolver{
		tenants:  tenants,
		fallback: opts.Fallback,
		local:    cache.New[*domain.Tenant](),
		ttl:      ttl,
		shared:   opts.Shared,
		logger:   logger,
	}
}

var errNoTenant = &apperr.Error{Code: apperr.EInvalid, Op: "resolver.Subdomain", Msg: "no tenant indicated"}

// Hostname strips the port from host, lower-cases it and removes a trailing
// dot. Bracketed IPv6 literals lose their brackets.
func Hostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// Subdomain returns the leftmost label of host. A host with fewer than two
// labels, or an IP literal, names no tenant.
func Subdomain(host string) (string, error) {
	name := Hostname(host)
	if name == "" || net.ParseIP(name) != nil {
		return "", errNoTenant
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 || labels[0] == "" {
		return "", errNoTenant
	}
	return labels[0], nil
}

// fallbackFor returns the subdomain mapped for host by the exception table.
func (r *Resolver) fallbackFor(host string) (string, bool) {
	if !r.fallback.Enabled {
		return "", false
	}
	name := Hostname(host)
	sub, ok := r.fallback.Hosts[name]
	if !ok {
		// The most specific wildcard wins.
		best := ""
		for pattern, mapped := range r.fallback.Hosts {
			suffix, isWildcard := strings.CutPrefix(pattern, "*.")
			if isWildcard && strings.HasSuffix(name, "."+suffix) && len(suffix) > len(best) {
				best, sub, ok = suffix, mapped, true
			}
		}
	}
	if !ok {
		return "", false
	}
	if sub == "" {
		sub = r.fallback.DefaultSubdomain
	}
	return sub, sub != ""
}

// Subdomain picks the tenant subdomain for host, consulting the fallback
// table before the DNS label rule.
func (r *Resolver) Subdomain(host string) (sub, source string, err error) {
	if sub, ok := r.fallbackFor(host); ok {
		return sub, "fallback", nil
	}
	sub, err = Subdomain(host)
	return sub, "host", err
}

// Resolve returns the active tenant addressed by host. Repeated calls with the
// same host return the same tenant and have no side effects beyond caching.
func (r *Resolver) Resolve(ctx context.Context, host string) (*domain.Tenant, error) {
	sub, source, err := r.Subdomain(host)
	if err != nil {
		metrics.ObserveTenantResolution(source, "no_subdomain")
		return nil, err
	}
	t, err := r.BySubdomain(ctx, sub)
	if err != nil {
		metrics.ObserveTenantResolution(source, apperr.Code(err))
		return nil, err
	}
	metrics.ObserveTenantResolution(source, "ok")
	return t, nil
}

// BySubdomain looks a tenant up through the caches.
func (r *Resolver) BySubdomain(ctx context.Context, sub string) (*domain.Tenant, error) {
	t, ok := r.local.Get(sub)
	if !ok && r.shared != nil {
		t, ok = r.shared.Get(ctx, sub)
		if ok {
			r.local.Set(sub, t, r.ttl)
		}
	}
	if !ok {
		var err error
		t, err = r.tenants.GetBySubdomain(ctx, sub)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("resolver.Resolve", "tenant not found")
		}
		if err != nil {
			return nil, err
		}
		r.local.Set(sub, t, r.ttl)
		if r.shared != nil {
			r.shared.Set(ctx, t)
		}
	}
	if !t.IsActive {
		return nil, apperr.NotFound("resolver.Resolve", "tenant not found")
	}
	return t, nil
}

// Invalidate drops t from every cache level.
func (r *Resolver) Invalidate(ctx context.Context, t *domain.Tenant) {
	r.local.Delete(t.Subdomain)
	if r.shared != nil {
		r.shared.Invalidate(ctx, t)
	}
	r.logger.Debug("tenant cache invalidated", slog.String("subdomain", t.Subdomain))
}

// Sweep drops expired entries from the in-memory cache.
func (r *Resolver) Sweep() int {
	return r.local.Sweep()
}

// Middleware resolves the request's tenant and attaches it to the context.
// Resolution failures end the request.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t, err := r.Resolve(req.Context(), req.Host)
		if err != nil {
			apperr.WriteJSON(w, r.logger, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(tenancy.WithTenant(req.Context(), t)))
	})
}
