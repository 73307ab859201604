// Package tenancytest builds real Scopes for tests by issuing and verifying a
// token with a throwaway key.
package tenancytest

import (
	"context"
	"testing"

	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// Context returns a context carrying a Scope for the given principal.
func Context(t testing.TB, tenantID, userID int64, role domain.Role) context.Context {
	t.Helper()
	m, err := token.NewManager(token.Options{Secret: "tenancytest"})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	tok, _, err := m.Issue(userID, tenantID, role, "principal@tenancy.test")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	v, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	ctx, _, err := tenancy.Bind(context.Background(), v)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	return ctx
}

// Scope returns the Scope for the given principal.
func Scope(t testing.TB, tenantID, userID int64, role domain.Role) tenancy.Scope {
	t.Helper()
	s, _ := tenancy.FromContext(Context(t, tenantID, userID, role))
	return s
}
