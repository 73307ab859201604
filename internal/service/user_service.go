package service

import (
	"context"
	"log/slog"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// UserService is the tenant admin's view of principals.
type UserService struct {
	users  repository.UserRepository
	auth   *AuthService
	audit  *audit.Logger
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, auth *AuthService, al *audit.Logger, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{users: users, auth: auth, audit: al, logger: logger}
}

// CreateUserInput is an admin-created account.
type CreateUserInput struct {
	Email     string
	Password  string
	Role      domain.Role
	FirstName string
	LastName  string
}

func (s *UserService) List(ctx context.Context, scope tenancy.Scope) ([]*domain.User, error) {
	return s.users.List(ctx, scope)
}

func (s *UserService) Get(ctx context.Context, scope tenancy.Scope, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, scope, id)
}

// Create adds a principal to the caller's tenant. Only a superadmin may mint
// another superadmin.
func (s *UserService) Create(ctx context.Context, scope tenancy.Scope, in CreateUserInput) (*domain.User, error) {
	if err := scope.Require("user.Create"); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if in.Role == domain.RoleSuperAdmin && !scope.Is(domain.RoleSuperAdmin) {
		return nil, &apperr.Error{Code: apperr.EInsufficientRole, Op: "user.Create", Msg: "superadmin role required to create a superadmin"}
	}
	user, err := s.auth.newUser(in.Email, in.Password, in.Role, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, scope.TenantID(), user); err != nil {
		return nil, err
	}
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "create", "user", user.ID, audit.StatusSuccess, string(user.Role))
	return user, nil
}

// Deactivate soft-deletes a principal. Nobody can deactivate themselves.
func (s *UserService) Deactivate(ctx context.Context, scope tenancy.Scope, id int64) error {
	if id == scope.UserID() {
		return apperr.Invalid("user.Deactivate", "you cannot deactivate your own account")
	}
	if err := s.users.Deactivate(ctx, scope, id); err != nil {
		return err
	}
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "deactivate", "user", id, audit.StatusSuccess, "")
	s.logger.Info("user deactivated", slog.Int64("tenant_id", scope.TenantID()), slog.Int64("user_id", id))
	return nil
}
