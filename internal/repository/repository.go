// Package repository is the resource access layer. Every method that reads or
// writes a tenant's business data takes a tenancy.Scope, and the SQL behind it
// filters on tenant_id in the same statement that selects the row.
package repository

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// TenantRepository manages tenants. It is global: only the resolver, the gate
// and superadmin operations use it.
type TenantRepository interface {
	Create(ctx context.Context, t *domain.Tenant) error
	GetByID(ctx context.Context, id int64) (*domain.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	SetModules(ctx context.Context, id int64, modules domain.ModuleSet) (*domain.Tenant, error)
	Deactivate(ctx context.Context, id int64) error
	// Delete removes a tenant with no dependents; otherwise it is a conflict.
	Delete(ctx context.Context, id int64) error
}

// UserRepository manages principals.
type UserRepository interface {
	// GetByEmail and Create run before a session exists, so they take the
	// tenant id resolved from the request host.
	GetByEmail(ctx context.Context, tenantID int64, email string) (*domain.User, error)
	Create(ctx context.Context, tenantID int64, u *domain.User) error

	GetByID(ctx context.Context, scope tenancy.Scope, id int64) (*domain.User, error)
	List(ctx context.Context, scope tenancy.Scope) ([]*domain.User, error)
	Deactivate(ctx context.Context, scope tenancy.Scope, id int64) error
	UpdatePassword(ctx context.Context, scope tenancy.Scope, id int64, hash string) error
	Exists(ctx context.Context, scope tenancy.Scope, id int64) (bool, error)
}

// DeviationFilter narrows List results. Zero fields match everything.
type DeviationFilter struct {
	Status     domain.DeviationStatus
	AssigneeID int64
}

// DeviationRepository manages deviations and their activity trail.
type DeviationRepository interface {
	Create(ctx context.Context, scope tenancy.Scope, d *domain.Deviation) error
	Get(ctx context.Context, scope tenancy.Scope, id int64) (*domain.Deviation, error)
	List(ctx context.Context, scope tenancy.Scope, f DeviationFilter) ([]*domain.Deviation, error)
	Update(ctx context.Context, scope tenancy.Scope, d *domain.Deviation) error
	Delete(ctx context.Context, scope tenancy.Scope, id int64) error
	Exists(ctx context.Context, scope tenancy.Scope, id int64) (bool, error)
	AddActivity(ctx context.Context, scope tenancy.Scope, a *domain.DeviationActivity) error
	ListActivity(ctx context.Context, scope tenancy.Scope, deviationID int64) ([]*domain.DeviationActivity, error)
}

// ChecklistRepository manages checklist templates.
type ChecklistRepository interface {
	Create(ctx context.Context, scope tenancy.Scope, c *domain.Checklist) error
	Get(ctx context.Context, scope tenancy.Scope, id int64) (*domain.Checklist, error)
	List(ctx context.Context, scope tenancy.Scope) ([]*domain.Checklist, error)
	Exists(ctx context.Context, scope tenancy.Scope, id int64) (bool, error)
}

// WorkOrderRepository manages maintenance work orders.
type WorkOrderRepository interface {
	Create(ctx context.Context, scope tenancy.Scope, w *domain.WorkOrder) error
	List(ctx context.Context, scope tenancy.Scope) ([]*domain.WorkOrder, error)
}

// Postgres error classes translated into apperr codes.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
