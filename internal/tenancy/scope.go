// Package tenancy carries the request's tenant identity. A Scope is the only
// value accepted by tenant-scoped repository methods, and it can only be built
// from a verified session token.
package tenancy

import (
	"context"
	"errors"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/security/token"
)

// Scope identifies the authenticated principal and the tenant every data
// access is confined to.
type Scope struct {
	tenantID int64
	userID   int64
	role     domain.Role
	email    string
}

func (s Scope) TenantID() int64 { return s.tenantID }
func (s Scope) UserID() int64 { return s.userID }
func (s Scope) Role() domain.Role { return s.role }
func (s Scope) Email() string { return s.email }
func (s Scope) Valid() bool { return s.tenantID != 0 && s.userID != 0 }
func (s Scope) Is(role domain.Role) bool { return s.role == role }

// Require returns an error when s is the zero Scope. Repositories call it
// before building any query.
func (s Scope) Require(op string) error {
	if !s.Valid() {
		return apperr.Internal(op, errors.New("missing tenant scope"))
	}
	return nil
}

type scopeKey struct{}
type tenantKey struct{}

// Bind derives a Scope from verified claims and stores it in ctx.
func Bind(ctx context.Context, v token.Verified) (context.Context, Scope, error) {
	c, ok := v.Claims()
	if !ok {
		return ctx, Scope{}, &apperr.Error{Code: apperr.EUnauthenticated, Op: "tenancy.Bind"}
	}
	s := Scope{tenantID: c.TenantID, userID: c.UserID, role: c.Role, email: c.Email}
	return context.WithValue(ctx, scopeKey{}, s), s, nil
}

// FromContext returns the Scope bound by the authorization gate.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok && s.Valid()
}

// WithTenant attaches the tenant record for this request.
func WithTenant(ctx context.Context, t *domain.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// TenantFromContext returns the tenant attached by the resolver or the gate.
func TenantFromContext(ctx context.Context) (*domain.Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(*domain.Tenant)
	return t, ok && t != nil
}
