package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// PostgresUserRepository implements UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, tenant_id, email, password_hash, role, first_name, last_name, is_active, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.FirstName,
		&u.LastName,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail looks up a principal inside one tenant. Inactive users are
// returned; the credential verifier decides what to do with them.
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, tenantID int64, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND email = $2`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, tenantID, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user.GetByEmail", "")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// Create creates a new user in tenantID
func (r *PostgresUserRepository) Create(ctx context.Context, tenantID int64, user *domain.User) error {
	query := `
		INSERT INTO users (tenant_id, email, password_hash, role, first_name, last_name, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx,
		query,
		tenantID,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastName,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return apperr.Conflict("user.Create", "email already registered")
		}
		r.logger.Error("failed to create user",
			slog.Int64("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.TenantID = tenantID
	return nil
}

// GetByID retrieves a user of the scope's tenant
func (r *PostgresUserRepository) GetByID(ctx context.Context, scope tenancy.Scope, id int64) (*domain.User, error) {
	if err := scope.Require("user.GetByID"); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND id = $2`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, scope.TenantID(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user.GetByID", "")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List lists all users of the scope's tenant
func (r *PostgresUserRepository) List(ctx context.Context, scope tenancy.Scope) ([]*domain.User, error) {
	if err := scope.Require("user.List"); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, scope.TenantID())
	if err != nil {
		r.logger.Error("failed to list users by tenant",
			slog.Int64("tenant_id", scope.TenantID()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Deactivate soft-deletes a user (sets is_active to false)
func (r *PostgresUserRepository) Deactivate(ctx context.Context, scope tenancy.Scope, id int64) error {
	if err := scope.Require("user.Deactivate"); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = false, updated_at = now() WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return expectOneRow(res, "user.Deactivate")
}

// UpdatePassword stores a new password hash
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, scope tenancy.Scope, id int64, hash string) error {
	if err := scope.Require("user.UpdatePassword"); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $3, updated_at = now() WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOneRow(res, "user.UpdatePassword")
}

// Exists reports whether id is a user of the scope's tenant
func (r *PostgresUserRepository) Exists(ctx context.Context, scope tenancy.Scope, id int64) (bool, error) {
	if err := scope.Require("user.Exists"); err != nil {
		return false, err
	}
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE tenant_id = $1 AND id = $2)`,
		scope.TenantID(), id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return ok, nil
}
