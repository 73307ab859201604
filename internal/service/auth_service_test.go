package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository/memory"
	"github.com/yourorg/qualityhub/internal/security/ratelimit"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/tenancy/tenancytest"
)

const testPassword = "Password123"

type fixture struct {
	store  *memory.Store
	tokens *token.Manager
	auth   *AuthService
	acme   *domain.Tenant
	globex *domain.Tenant
}

func newFixture(t *testing.T, opts AuthOptions) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	tokens, err := token.NewManager(token.Options{Secret: "service-test-secret"})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	auth, err := NewAuthService(store.Users(), tokens, opts, nil)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	acme := &domain.Tenant{ID: 7, Name: "Acme", Subdomain: "acme", Modules: domain.NewModuleSet(domain.ModuleChecklists), IsActive: true}
	globex := &domain.Tenant{ID: 8, Name: "Globex", Subdomain: "globex", IsActive: true}
	for _, tn := range []*domain.Tenant{acme, globex} {
		if err := store.Tenants().Create(ctx, tn); err != nil {
			t.Fatalf("create tenant: %v", err)
		}
	}
	return &fixture{store: store, tokens: tokens, auth: auth, acme: acme, globex: globex}
}

func (f *fixture) addUser(t *testing.T, tenantID int64, email string, role domain.Role, active bool) *domain.User {
	t.Helper()
	u, err := f.auth.newUser(email, testPassword, role, "", "")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	u.IsActive = active
	if err := f.store.Users().Create(context.Background(), tenantID, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestLoginIssuesTokenForResolvedTenant(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	admin := f.addUser(t, 7, "admin@acme.test", domain.RoleAdmin, true)

	res, err := f.auth.Login(context.Background(), f.acme, "  Admin@Acme.test ", testPassword, "10.0.0.1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.User.ID != admin.ID {
		t.Fatalf("unexpected user %d", res.User.ID)
	}
	if d := time.Until(res.ExpiresAt); d < 23*time.Hour || d > 25*time.Hour {
		t.Fatalf("expected 24h expiry, got %v", d)
	}

	v, err := f.tokens.Verify(res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	c, _ := v.Claims()
	if c.TenantID != 7 || c.Role != domain.RoleAdmin || c.UserID != admin.ID {
		t.Fatalf("unexpected claims %+v", c)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	f.addUser(t, 7, "active@acme.test", domain.RoleUser, true)
	f.addUser(t, 7, "inactive@acme.test", domain.RoleUser, false)
	f.addUser(t, 8, "other@globex.test", domain.RoleUser, true)

	cases := map[string][2]string{
		"wrong password":      {"active@acme.test", "not-the-password"},
		"inactive user":       {"inactive@acme.test", testPassword},
		"absent user":         {"nobody@acme.test", testPassword},
		"user of other tenant": {"other@globex.test", testPassword},
	}
	var first string
	for name, c := range cases {
		_, err := f.auth.Login(context.Background(), f.acme, c[0], c[1], "")
		if !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Fatalf("%s: expected invalid credentials, got %v", name, err)
		}
		shape := apperr.Message(err)
		if first == "" {
			first = shape
		}
		if shape != first || err.Error() != errInvalidCredentials.Error() {
			t.Fatalf("%s: error shape differs: %q / %q", name, shape, err.Error())
		}
	}
}

func TestLoginThrottled(t *testing.T) {
	f := newFixture(t, AuthOptions{Throttle: ratelimit.NewLoginThrottle(1, 2)})
	f.addUser(t, 7, "admin@acme.test", domain.RoleAdmin, true)

	for i := 0; i < 2; i++ {
		_, _ = f.auth.Login(context.Background(), f.acme, "admin@acme.test", "wrong-password", "10.0.0.1")
	}
	_, err := f.auth.Login(context.Background(), f.acme, "admin@acme.test", testPassword, "10.0.0.1")
	if !errors.Is(err, apperr.ErrTooManyRequests) {
		t.Fatalf("expected throttling, got %v", err)
	}
}

func TestRegisterCreatesUserRoleInTenant(t *testing.T) {
	f := newFixture(t, AuthOptions{})

	res, err := f.auth.Register(context.Background(), f.acme, RegisterInput{Email: "New@Acme.test", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Role != domain.RoleUser || res.User.TenantID != 7 || res.User.Email != "new@acme.test" {
		t.Fatalf("unexpected user %+v", res.User)
	}

	// The same email may exist in another tenant.
	if _, err := f.auth.Register(context.Background(), f.globex, RegisterInput{Email: "new@acme.test", Password: testPassword}); err != nil {
		t.Fatalf("register in second tenant: %v", err)
	}
	_, err = f.auth.Register(context.Background(), f.acme, RegisterInput{Email: "new@acme.test", Password: testPassword})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	for _, in := range []RegisterInput{
		{Email: "not-an-email", Password: testPassword},
		{Email: "a@acme.test", Password: "short"},
	} {
		if _, err := f.auth.Register(context.Background(), f.acme, in); !errors.Is(err, apperr.ErrInvalid) {
			t.Fatalf("expected invalid for %+v, got %v", in, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	u := f.addUser(t, 7, "admin@acme.test", domain.RoleAdmin, true)
	scope := tenancytest.Scope(t, 7, u.ID, domain.RoleAdmin)
	ctx := context.Background()

	if err := f.auth.ChangePassword(ctx, scope, "wrong", "NewPassword1"); !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := f.auth.ChangePassword(ctx, scope, testPassword, "NewPassword1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := f.auth.Login(ctx, f.acme, "admin@acme.test", "NewPassword1", ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestBcryptCostFloor(t *testing.T) {
	f := newFixture(t, AuthOptions{BcryptCost: 4})
	if f.auth.cost < 10 {
		t.Fatalf("bcrypt cost %d below floor", f.auth.cost)
	}
}
