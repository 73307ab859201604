package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// PostgresDeviationRepository implements DeviationRepository
type PostgresDeviationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresDeviationRepository creates a new deviation repository
func NewPostgresDeviationRepository(db *sql.DB, logger *slog.Logger) *PostgresDeviationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeviationRepository{db: db, logger: logger}
}

const deviationColumns = `id, tenant_id, title, description, status, priority, reporter_id, assignee_id, created_at, updated_at`

func scanDeviation(row rowScanner) (*domain.Deviation, error) {
	d := &domain.Deviation{}
	var assignee sql.NullInt64
	err := row.Scan(&d.ID, &d.TenantID, &d.Title, &d.Description, &d.Status, &d.Priority,
		&d.ReporterID, &assignee, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if assignee.Valid {
		id := assignee.Int64
		d.AssigneeID = &id
	}
	return d, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Create inserts d into the scope's tenant. d.TenantID is overwritten.
func (r *PostgresDeviationRepository) Create(ctx context.Context, scope tenancy.Scope, d *domain.Deviation) error {
	if err := scope.Require("deviation.Create"); err != nil {
		return err
	}
	query := `
		INSERT INTO deviations (tenant_id, title, description, status, priority, reporter_id, assignee_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, scope.TenantID(), d.Title, d.Description, d.Status, d.Priority,
		d.ReporterID, nullableID(d.AssigneeID)).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return apperr.Invalid("deviation.Create", "unknown user reference")
		}
		return fmt.Errorf("failed to create deviation: %w", err)
	}
	d.TenantID = scope.TenantID()
	return nil
}

// Get returns one deviation of the scope's tenant
func (r *PostgresDeviationRepository) Get(ctx context.Context, scope tenancy.Scope, id int64) (*domain.Deviation, error) {
	if err := scope.Require("deviation.Get"); err != nil {
		return nil, err
	}
	query := `SELECT ` + deviationColumns + ` FROM deviations WHERE tenant_id = $1 AND id = $2`
	d, err := scanDeviation(r.db.QueryRowContext(ctx, query, scope.TenantID(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("deviation.Get", "")
		}
		return nil, fmt.Errorf("failed to get deviation: %w", err)
	}
	return d, nil
}

// List returns the scope's deviations, newest first
func (r *PostgresDeviationRepository) List(ctx context.Context, scope tenancy.Scope, f DeviationFilter) ([]*domain.Deviation, error) {
	if err := scope.Require("deviation.List"); err != nil {
		return nil, err
	}
	query := `SELECT ` + deviationColumns + ` FROM deviations WHERE tenant_id = $1`
	args := []any{scope.TenantID()}
	if f.Status != "" {
		args = append(args, f.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.AssigneeID != 0 {
		args = append(args, f.AssigneeID)
		query += ` AND assignee_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deviations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Deviation
	for rows.Next() {
		d, err := scanDeviation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deviation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update writes the mutable fields of d
func (r *PostgresDeviationRepository) Update(ctx context.Context, scope tenancy.Scope, d *domain.Deviation) error {
	if err := scope.Require("deviation.Update"); err != nil {
		return err
	}
	query := `
		UPDATE deviations
		SET title = $3, description = $4, status = $5, priority = $6, assignee_id = $7, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query, scope.TenantID(), d.ID, d.Title, d.Description, d.Status, d.Priority,
		nullableID(d.AssigneeID)).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("deviation.Update", "")
		}
		if pqCode(err) == pqForeignKeyViolation {
			return apperr.Invalid("deviation.Update", "unknown user reference")
		}
		return fmt.Errorf("failed to update deviation: %w", err)
	}
	d.TenantID = scope.TenantID()
	return nil
}

// Delete removes a deviation and, by cascade, its activity
func (r *PostgresDeviationRepository) Delete(ctx context.Context, scope tenancy.Scope, id int64) error {
	if err := scope.Require("deviation.Delete"); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM deviations WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return fmt.Errorf("failed to delete deviation: %w", err)
	}
	return expectOneRow(res, "deviation.Delete")
}

// Exists reports whether id is a deviation of the scope's tenant
func (r *PostgresDeviationRepository) Exists(ctx context.Context, scope tenancy.Scope, id int64) (bool, error) {
	if err := scope.Require("deviation.Exists"); err != nil {
		return false, err
	}
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM deviations WHERE tenant_id = $1 AND id = $2)`,
		scope.TenantID(), id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check deviation: %w", err)
	}
	return ok, nil
}

// AddActivity appends an entry to a deviation's trail
func (r *PostgresDeviationRepository) AddActivity(ctx context.Context, scope tenancy.Scope, a *domain.DeviationActivity) error {
	if err := scope.Require("deviation.AddActivity"); err != nil {
		return err
	}
	query := `
		INSERT INTO deviation_activity (tenant_id, deviation_id, user_id, action, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, scope.TenantID(), a.DeviationID, a.UserID, a.Action, a.Detail).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return apperr.NotFound("deviation.AddActivity", "")
		}
		return fmt.Errorf("failed to add deviation activity: %w", err)
	}
	a.TenantID = scope.TenantID()
	return nil
}

// ListActivity returns a deviation's trail, oldest first
func (r *PostgresDeviationRepository) ListActivity(ctx context.Context, scope tenancy.Scope, deviationID int64) ([]*domain.DeviationActivity, error) {
	if err := scope.Require("deviation.ListActivity"); err != nil {
		return nil, err
	}
	query := `
		SELECT id, tenant_id, deviation_id, user_id, action, detail, created_at
		FROM deviation_activity
		WHERE tenant_id = $1 AND deviation_id = $2
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID(), deviationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deviation activity: %w", err)
	}
	defer rows.Close()

	var out []*domain.DeviationActivity
	for rows.Next() {
		a := &domain.DeviationActivity{}
		if err := rows.Scan(&a.ID, &a.TenantID, &a.DeviationID, &a.UserID, &a.Action, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deviation activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
