package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// ChecklistService manages checklist templates.
type ChecklistService struct {
	checklists repository.ChecklistRepository
	audit      *audit.Logger
	logger     *slog.Logger
}

func NewChecklistService(checklists repository.ChecklistRepository, al *audit.Logger, logger *slog.Logger) *ChecklistService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChecklistService{checklists: checklists, audit: al, logger: logger}
}

func (s *ChecklistService) Create(ctx context.Context, scope tenancy.Scope, title string, items []string) (*domain.Checklist, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Invalid("checklist.Create", "title is required")
	}
	clean := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			clean = append(clean, it)
		}
	}
	c := &domain.Checklist{Title: title, Items: clean, CreatedBy: scope.UserID()}
	if err := s.checklists.Create(ctx, scope, c); err != nil {
		return nil, err
	}
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "create", "checklist", c.ID, audit.StatusSuccess, "")
	return c, nil
}

func (s *ChecklistService) Get(ctx context.Context, scope tenancy.Scope, id int64) (*domain.Checklist, error) {
	return s.checklists.Get(ctx, scope, id)
}

func (s *ChecklistService) List(ctx context.Context, scope tenancy.Scope) ([]*domain.Checklist, error) {
	return s.checklists.List(ctx, scope)
}

// MaintenanceService manages work orders.
type MaintenanceService struct {
	orders repository.WorkOrderRepository
	audit  *audit.Logger
	logger *slog.Logger
}

func NewMaintenanceService(orders repository.WorkOrderRepository, al *audit.Logger, logger *slog.Logger) *MaintenanceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceService{orders: orders, audit: al, logger: logger}
}

func (s *MaintenanceService) Create(ctx context.Context, scope tenancy.Scope, asset, summary string, dueAt *time.Time) (*domain.WorkOrder, error) {
	asset, summary = strings.TrimSpace(asset), strings.TrimSpace(summary)
	if asset == "" || summary == "" {
		return nil, apperr.Invalid("workorder.Create", "asset and summary are required")
	}
	w := &domain.WorkOrder{Asset: asset, Summary: summary, DueAt: dueAt, CreatedBy: scope.UserID()}
	if err := s.orders.Create(ctx, scope, w); err != nil {
		return nil, err
	}
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "create", "work_order", w.ID, audit.StatusSuccess, asset)
	return w, nil
}

func (s *MaintenanceService) List(ctx context.Context, scope tenancy.Scope) ([]*domain.WorkOrder, error) {
	return s.orders.List(ctx, scope)
}
