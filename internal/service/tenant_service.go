package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// TenantCache is notified when a tenant changes so cached resolutions are
// dropped.
type TenantCache interface {
	Invalidate(ctx context.Context, t *domain.Tenant)
}

// TenantService provides the superadmin tenant operations.
type TenantService struct {
	tenants repository.TenantRepository
	users   repository.UserRepository
	auth    *AuthService
	cache   TenantCache
	audit   *audit.Logger
	logger  *slog.Logger
}

func NewTenantService(tenants repository.TenantRepository, users repository.UserRepository, auth *AuthService, cache TenantCache, al *audit.Logger, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{tenants: tenants, users: users, auth: auth, cache: cache, audit: al, logger: logger}
}

// CreateTenantInput describes a new tenant and, optionally, its first admin.
type CreateTenantInput struct {
	Name          string
	Subdomain     string
	Modules       []string
	AdminEmail    string
	AdminPassword string
}

// CreateTenantResult is the new tenant and its admin, if one was requested.
type CreateTenantResult struct {
	Tenant *domain.Tenant
	Admin  *domain.User
}

func (s *TenantService) Create(ctx context.Context, scope tenancy.Scope, in CreateTenantInput) (*CreateTenantResult, error) {
	name := strings.TrimSpace(in.Name)
	sub := strings.ToLower(strings.TrimSpace(in.Subdomain))
	if name == "" {
		return nil, apperr.Invalid("tenant.Create", "name is required")
	}
	if err := domain.ValidateSubdomain(sub); err != nil {
		return nil, apperr.Invalid("tenant.Create", err.Error())
	}
	modules, err := domain.ParseModuleSet(in.Modules)
	if err != nil {
		return nil, apperr.Invalid("tenant.Create", err.Error())
	}

	var admin *domain.User
	if in.AdminEmail != "" {
		admin, err = s.auth.newUser(in.AdminEmail, in.AdminPassword, domain.RoleAdmin, "", "")
		if err != nil {
			return nil, err
		}
	}

	t := &domain.Tenant{Name: name, Subdomain: sub, Modules: modules, IsActive: true}
	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, err
	}
	if admin != nil {
		if err := s.users.Create(ctx, t.ID, admin); err != nil {
			// Drop the admin-less tenant so the request can be retried.
			if derr := s.tenants.Delete(ctx, t.ID); derr != nil {
				s.logger.Error("failed to remove tenant after admin creation failed",
					slog.Int64("tenant_id", t.ID),
					slog.String("error", derr.Error()),
				)
			}
			return nil, err
		}
	}
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "create", "tenant", t.ID, audit.StatusSuccess, sub)
	s.logger.Info("tenant created", slog.Int64("tenant_id", t.ID), slog.String("subdomain", sub))
	return &CreateTenantResult{Tenant: t, Admin: admin}, nil
}

func (s *TenantService) List(ctx context.Context) ([]*domain.Tenant, error) {
	return s.tenants.List(ctx)
}

func (s *TenantService) Get(ctx context.Context, id int64) (*domain.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

// SetModules replaces the enabled module set.
func (s *TenantService) SetModules(ctx context.Context, scope tenancy.Scope, id int64, names []string) (*domain.Tenant, error) {
	modules, err := domain.ParseModuleSet(names)
	if err != nil {
		return nil, apperr.Invalid("tenant.SetModules", err.Error())
	}
	t, err := s.tenants.SetModules(ctx, id, modules)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, t)
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "set_modules", "tenant", id, audit.StatusSuccess, strings.Join(modules.Names(), ","))
	return t, nil
}

// Delete removes a tenant that owns no data. A tenant with users or records
// is a conflict; deactivate it instead.
func (s *TenantService) Delete(ctx context.Context, scope tenancy.Scope, id int64) error {
	if id == scope.TenantID() {
		return apperr.Invalid("tenant.Delete", "you cannot delete your own tenant")
	}
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tenants.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, t)
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "delete", "tenant", id, audit.StatusSuccess, t.Subdomain)
	return nil
}

// Deactivate blocks all logins and requests for a tenant while keeping its
// data.
func (s *TenantService) Deactivate(ctx context.Context, scope tenancy.Scope, id int64) error {
	if id == scope.TenantID() {
		return apperr.Invalid("tenant.Deactivate", "you cannot deactivate your own tenant")
	}
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tenants.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, t)
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "deactivate", "tenant", id, audit.StatusSuccess, t.Subdomain)
	return nil
}

func (s *TenantService) invalidate(ctx context.Context, t *domain.Tenant) {
	if s.cache != nil && t != nil {
		s.cache.Invalidate(ctx, t)
	}
}
