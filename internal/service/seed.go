package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository"
)

// SeedAccount is one demo principal.
type SeedAccount struct {
	Email string
	Role  domain.Role
}

// SeedTenant is one demo tenant with its principals.
type SeedTenant struct {
	Name      string
	Subdomain string
	Modules   []domain.Module
	Accounts  []SeedAccount
}

// DemoTenants is the development data set: a demo tenant with every module
// and the acme tenant with checklists only.
var DemoTenants = []SeedTenant{
	{
		Name:      "Demo Manufacturing",
		Subdomain: "demo",
		Modules:   []domain.Module{domain.ModuleDeviations, domain.ModuleChecklists, domain.ModuleKanban, domain.ModuleMaintenance},
		Accounts: []SeedAccount{
			{Email: "root@demo.test", Role: domain.RoleSuperAdmin},
			{Email: "admin@demo.test", Role: domain.RoleAdmin},
			{Email: "user@demo.test", Role: domain.RoleUser},
		},
	},
	{
		Name:      "Acme",
		Subdomain: "acme",
		Modules:   []domain.Module{domain.ModuleChecklists},
		Accounts:  []SeedAccount{{Email: "admin@acme.test", Role: domain.RoleAdmin}},
	},
}

// Seed creates the given tenants and accounts when they are missing. Existing
// tenants and users are left untouched, so it is safe on every start.
func Seed(ctx context.Context, tenants repository.TenantRepository, users repository.UserRepository, auth *AuthService, password string, set []SeedTenant, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, st := range set {
		t, err := tenants.GetBySubdomain(ctx, st.Subdomain)
		if errors.Is(err, apperr.ErrNotFound) {
			t = &domain.Tenant{Name: st.Name, Subdomain: st.Subdomain, Modules: domain.NewModuleSet(st.Modules...), IsActive: true}
			if err := tenants.Create(ctx, t); err != nil {
				return err
			}
			logger.Info("seeded tenant", slog.String("subdomain", t.Subdomain), slog.Int64("tenant_id", t.ID))
		} else if err != nil {
			return err
		}

		for _, acct := range st.Accounts {
			_, err := users.GetByEmail(ctx, t.ID, acct.Email)
			if err == nil {
				continue
			}
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			u, err := auth.newUser(acct.Email, password, acct.Role, "", "")
			if err != nil {
				return err
			}
			if err := users.Create(ctx, t.ID, u); err != nil {
				return err
			}
			logger.Info("seeded user", slog.String("subdomain", t.Subdomain), slog.String("role", string(acct.Role)))
		}
	}
	return nil
}
