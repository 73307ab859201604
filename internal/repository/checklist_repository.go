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
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// PostgresChecklistRepository implements ChecklistRepository
type PostgresChecklistRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresChecklistRepository creates a new checklist repository
func NewPostgresChecklistRepository(db *sql.DB, logger *slog.Logger) *PostgresChecklistRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresChecklistRepository{db: db, logger: logger}
}

func scanChecklist(row rowScanner) (*domain.Checklist, error) {
	c := &domain.Checklist{}
	if err := row.Scan(&c.ID, &c.TenantID, &c.Title, pq.Array(&c.Items), &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresChecklistRepository) Create(ctx context.Context, scope tenancy.Scope, c *domain.Checklist) error {
	if err := scope.Require("checklist.Create"); err != nil {
		return err
	}
	query := `
		INSERT INTO checklists (tenant_id, title, items, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, scope.TenantID(), c.Title, pq.Array(c.Items), c.CreatedBy).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create checklist: %w", err)
	}
	c.TenantID = scope.TenantID()
	return nil
}

func (r *PostgresChecklistRepository) Get(ctx context.Context, scope tenancy.Scope, id int64) (*domain.Checklist, error) {
	if err := scope.Require("checklist.Get"); err != nil {
		return nil, err
	}
	query := `SELECT id, tenant_id, title, items, created_by, created_at FROM checklists WHERE tenant_id = $1 AND id = $2`
	c, err := scanChecklist(r.db.QueryRowContext(ctx, query, scope.TenantID(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("checklist.Get", "")
		}
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	return c, nil
}

func (r *PostgresChecklistRepository) List(ctx context.Context, scope tenancy.Scope) ([]*domain.Checklist, error) {
	if err := scope.Require("checklist.List"); err != nil {
		return nil, err
	}
	query := `SELECT id, tenant_id, title, items, created_by, created_at FROM checklists WHERE tenant_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to list checklists: %w", err)
	}
	defer rows.Close()

	var out []*domain.Checklist
	for rows.Next() {
		c, err := scanChecklist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresChecklistRepository) Exists(ctx context.Context, scope tenancy.Scope, id int64) (bool, error) {
	if err := scope.Require("checklist.Exists"); err != nil {
		return false, err
	}
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM checklists WHERE tenant_id = $1 AND id = $2)`,
		scope.TenantID(), id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check checklist: %w", err)
	}
	return ok, nil
}

// PostgresWorkOrderRepository implements WorkOrderRepository
type PostgresWorkOrderRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresWorkOrderRepository creates a new work order repository
func NewPostgresWorkOrderRepository(db *sql.DB, logger *slog.Logger) *PostgresWorkOrderRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresWorkOrderRepository{db: db, logger: logger}
}

func (r *PostgresWorkOrderRepository) Create(ctx context.Context, scope tenancy.Scope, w *domain.WorkOrder) error {
	if err := scope.Require("workorder.Create"); err != nil {
		return err
	}
	var due sql.NullTime
	if w.DueAt != nil {
		due = sql.NullTime{Time: *w.DueAt, Valid: true}
	}
	query := `
		INSERT INTO work_orders (tenant_id, asset, summary, due_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, scope.TenantID(), w.Asset, w.Summary, due, w.CreatedBy).
		Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create work order: %w", err)
	}
	w.TenantID = scope.TenantID()
	return nil
}

func (r *PostgresWorkOrderRepository) List(ctx context.Context, scope tenancy.Scope) ([]*domain.WorkOrder, error) {
	if err := scope.Require("workorder.List"); err != nil {
		return nil, err
	}
	query := `
		SELECT id, tenant_id, asset, summary, due_at, created_by, created_at
		FROM work_orders WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkOrder
	for rows.Next() {
		w := &domain.WorkOrder{}
		var due sql.NullTime
		if err := rows.Scan(&w.ID, &w.TenantID, &w.Asset, &w.Summary, &due, &w.CreatedBy, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan work order: %w", err)
		}
		if due.Valid {
			t := due.Time
			w.DueAt = &t
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
