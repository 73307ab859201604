package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/observability/metrics"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

const minPasswordLength = 8

// LoginThrottle decides whether a login attempt may be evaluated at all.
type LoginThrottle interface {
	Allow(tenantID int64, email, clientIP string) bool
}

// AuthOptions tunes AuthService.
type AuthOptions struct {
	// BcryptCost below bcrypt.DefaultCost is raised to it.
	BcryptCost int
	Throttle   LoginThrottle
	Audit      *audit.Logger
}

// AuthService is the credential verifier: login, self-registration and
// password changes.
type AuthService struct {
	users     repository.UserRepository
	tokens    *token.Manager
	throttle  LoginThrottle
	audit     *audit.Logger
	cost      int
	dummyHash []byte
	logger    *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(users repository.UserRepository, tokens *token.Manager, opts AuthOptions, logger *slog.Logger) (*AuthService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cost := opts.BcryptCost
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	// Compared against when the user does not exist, so unknown emails cost
	// the same bcrypt work as wrong passwords.
	dummy, err := bcrypt.GenerateFromPassword([]byte("qualityhub-timing-equalizer"), cost)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		throttle:  opts.Throttle,
		audit:     opts.Audit,
		cost:      cost,
		dummyHash: dummy,
		logger:    logger,
	}, nil
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

var errInvalidCredentials = &apperr.Error{Code: apperr.EInvalidCredentials, Op: "auth.Login"}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates email/password against exactly one tenant's users.
// Unknown users, inactive users and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, tenant *domain.Tenant, email, password, clientIP string) (*LoginResult, error) {
	if tenant == nil {
		return nil, apperr.Internal("auth.Login", errors.New("login without a resolved tenant"))
	}
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Invalid("auth.Login", "email and password are required")
	}
	if s.throttle != nil && !s.throttle.Allow(tenant.ID, email, clientIP) {
		metrics.ObserveLogin("throttled")
		s.audit.LogLogin(ctx, tenant.ID, 0, audit.StatusDenied, "throttled")
		return nil, &apperr.Error{Code: apperr.ETooManyRequests, Op: "auth.Login", Msg: "too many login attempts, try again later"}
	}

	user, err := s.users.GetByEmail(ctx, tenant.ID, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, s.failLogin(ctx, tenant.ID, 0, "unknown email")
	case err != nil:
		return nil, apperr.Internal("auth.Login", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.failLogin(ctx, tenant.ID, user.ID, "wrong password")
	}
	if !user.IsActive {
		return nil, s.failLogin(ctx, tenant.ID, user.ID, "inactive user")
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	metrics.ObserveLogin("success")
	s.audit.LogLogin(ctx, tenant.ID, user.ID, audit.StatusSuccess, "")
	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.Int64("tenant_id", tenant.ID),
	)
	return result, nil
}

func (s *AuthService) failLogin(ctx context.Context, tenantID, userID int64, reason string) error {
	metrics.ObserveLogin("invalid_credentials")
	s.audit.LogLogin(ctx, tenantID, userID, audit.StatusFailure, reason)
	s.logger.Info("login failed", slog.Int64("tenant_id", tenantID), slog.String("reason", reason))
	return errInvalidCredentials
}

func (s *AuthService) issue(user *domain.User) (*LoginResult, error) {
	tok, exp, err := s.tokens.Issue(user.ID, user.TenantID, user.Role, user.Email)
	if err != nil {
		return nil, apperr.Internal("auth.issue", err)
	}
	return &LoginResult{Token: tok, ExpiresAt: exp, User: user}, nil
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a user-role principal in tenant and logs it in.
func (s *AuthService) Register(ctx context.Context, tenant *domain.Tenant, in RegisterInput) (*LoginResult, error) {
	if tenant == nil {
		return nil, apperr.Internal("auth.Register", errors.New("register without a resolved tenant"))
	}
	user, err := s.newUser(in.Email, in.Password, domain.RoleUser, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, tenant.ID, user); err != nil {
		return nil, err
	}
	s.audit.LogAction(ctx, tenant.ID, user.ID, "register", "user", user.ID, audit.StatusSuccess, "")
	return s.issue(user)
}

// newUser validates input and hashes the password.
func (s *AuthService) newUser(email, password string, role domain.Role, first, last string) (*domain.User, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperr.Invalid("auth.newUser", "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Invalid("auth.newUser", "password must be at least 8 characters")
	}
	if !role.Valid() {
		return nil, apperr.Invalid("auth.newUser", "unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Internal("auth.newUser", err)
	}
	return &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    strings.TrimSpace(first),
		LastName:     strings.TrimSpace(last),
		IsActive:     true,
	}, nil
}

// Me returns the authenticated principal.
func (s *AuthService) Me(ctx context.Context, scope tenancy.Scope) (*domain.User, error) {
	return s.users.GetByID(ctx, scope, scope.UserID())
}

// ChangePassword changes the caller's own password
func (s *AuthService) ChangePassword(ctx context.Context, scope tenancy.Scope, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperr.Invalid("auth.ChangePassword", "new password must be at least 8 characters")
	}
	user, err := s.users.GetByID(ctx, scope, scope.UserID())
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return &apperr.Error{Code: apperr.EInvalidCredentials, Op: "auth.ChangePassword", Msg: "current password is incorrect"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return apperr.Internal("auth.ChangePassword", err)
	}
	if err := s.users.UpdatePassword(ctx, scope, user.ID, string(hash)); err != nil {
		return err
	}
	s.audit.LogAction(ctx, scope.TenantID(), user.ID, "change_password", "user", user.ID, audit.StatusSuccess, "")
	s.logger.Info("user changed password", slog.Int64("user_id", user.ID))
	return nil
}
