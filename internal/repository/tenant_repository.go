package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
)

// PostgresTenantRepository implements TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *sql.DB, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

const tenantColumns = `id, name, subdomain, modules, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	var modules []string
	if err := row.Scan(&t.ID, &t.Name, &t.Subdomain, pq.Array(&modules), &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	set, err := domain.ParseModuleSet(modules)
	if err != nil {
		return nil, fmt.Errorf("tenant %d: %w", t.ID, err)
	}
	t.Modules = set
	return t, nil
}

// Create creates a new tenant
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (name, subdomain, modules, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, tenant.Name, tenant.Subdomain, pq.Array(tenant.Modules.Names()), tenant.IsActive).Scan(
		&tenant.ID,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return apperr.Conflict("tenant.Create", "subdomain already taken")
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("tenant.GetByID", "")
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetBySubdomain retrieves a tenant by its subdomain
func (r *PostgresTenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE subdomain = $1`
	t, err := scanTenant(r.db.QueryRowContext(ctx, query, subdomain))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("tenant.GetBySubdomain", "")
		}
		return nil, fmt.Errorf("failed to get tenant by subdomain: %w", err)
	}
	return t, nil
}

// List returns all tenants
func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetModules replaces the tenant's enabled module set.
func (r *PostgresTenantRepository) SetModules(ctx context.Context, id int64, modules domain.ModuleSet) (*domain.Tenant, error) {
	query := `UPDATE tenants SET modules = $2 WHERE id = $1 RETURNING ` + tenantColumns
	t, err := scanTenant(r.db.QueryRowContext(ctx, query, id, pq.Array(modules.Names())))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("tenant.SetModules", "")
		}
		return nil, fmt.Errorf("failed to update tenant modules: %w", err)
	}
	return t, nil
}

// Deactivate soft-deletes a tenant (sets is_active=false)
func (r *PostgresTenantRepository) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tenants SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	return expectOneRow(res, "tenant.Deactivate")
}

// Delete hard-deletes a tenant. Foreign keys are ON DELETE RESTRICT, so a
// tenant that still owns users or records is reported as a conflict.
func (r *PostgresTenantRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return apperr.Conflict("tenant.Delete", "tenant still has dependent records")
		}
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return expectOneRow(res, "tenant.Delete")
}

func expectOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound(op, "")
	}
	return nil
}
