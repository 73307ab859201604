package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// DeviationService runs the deviation workflow and keeps its activity trail.
type DeviationService struct {
	deviations repository.DeviationRepository
	users      repository.UserRepository
	audit      *audit.Logger
	logger     *slog.Logger
}

func NewDeviationService(deviations repository.DeviationRepository, users repository.UserRepository, al *audit.Logger, logger *slog.Logger) *DeviationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviationService{deviations: deviations, users: users, audit: al, logger: logger}
}

// DeviationInput creates a deviation.
type DeviationInput struct {
	Title       string
	Description string
	Priority    string
	AssigneeID  *int64
}

// DeviationPatch updates a deviation. Nil fields are left unchanged;
// Unassign clears the assignee.
type DeviationPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	AssigneeID  *int64
	Unassign    bool
}

// allowed status transitions; reopening a closed deviation goes back to open.
var transitions = map[domain.DeviationStatus][]domain.DeviationStatus{
	domain.DeviationOpen:       {domain.DeviationInProgress, domain.DeviationResolved, domain.DeviationClosed},
	domain.DeviationInProgress: {domain.DeviationOpen, domain.DeviationResolved, domain.DeviationClosed},
	domain.DeviationResolved:   {domain.DeviationInProgress, domain.DeviationClosed},
	domain.DeviationClosed:     {domain.DeviationOpen},
}

func canTransition(from, to domain.DeviationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s *DeviationService) checkAssignee(ctx context.Context, scope tenancy.Scope, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := s.users.Exists(ctx, scope, *id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Invalid("deviation.assign", "assignee not found")
	}
	return nil
}

func (s *DeviationService) Create(ctx context.Context, scope tenancy.Scope, in DeviationInput) (*domain.Deviation, error) {
	if err := scope.Require("deviation.Create"); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Invalid("deviation.Create", "title is required")
	}
	priority := domain.PriorityMedium
	if in.Priority != "" {
		p, err := domain.ParsePriority(in.Priority)
		if err != nil {
			return nil, apperr.Invalid("deviation.Create", err.Error())
		}
		priority = p
	}
	if err := s.checkAssignee(ctx, scope, in.AssigneeID); err != nil {
		return nil, err
	}

	d := &domain.Deviation{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      domain.DeviationOpen,
		Priority:    priority,
		ReporterID:  scope.UserID(),
		AssigneeID:  in.AssigneeID,
	}
	if err := s.deviations.Create(ctx, scope, d); err != nil {
		return nil, err
	}
	s.record(ctx, scope, d.ID, "created", string(d.Priority))
	return d, nil
}

func (s *DeviationService) Get(ctx context.Context, scope tenancy.Scope, id int64) (*domain.Deviation, error) {
	return s.deviations.Get(ctx, scope, id)
}

func (s *DeviationService) List(ctx context.Context, scope tenancy.Scope, status string, assigneeID int64) ([]*domain.Deviation, error) {
	f := repository.DeviationFilter{AssigneeID: assigneeID}
	if status != "" {
		st, err := domain.ParseDeviationStatus(status)
		if err != nil {
			return nil, apperr.Invalid("deviation.List", err.Error())
		}
		f.Status = st
	}
	return s.deviations.List(ctx, scope, f)
}

// Update applies p and writes one activity entry per changed field.
func (s *DeviationService) Update(ctx context.Context, scope tenancy.Scope, id int64, p DeviationPatch) (*domain.Deviation, error) {
	d, err := s.deviations.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	var changes [][2]string

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, apperr.Invalid("deviation.Update", "title cannot be empty")
		}
		if title != d.Title {
			d.Title = title
			changes = append(changes, [2]string{"title_changed", title})
		}
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) != d.Description {
		d.Description = strings.TrimSpace(*p.Description)
		changes = append(changes, [2]string{"description_changed", ""})
	}
	if p.Status != nil {
		st, err := domain.ParseDeviationStatus(*p.Status)
		if err != nil {
			return nil, apperr.Invalid("deviation.Update", err.Error())
		}
		if st != d.Status {
			if !canTransition(d.Status, st) {
				return nil, apperr.Invalid("deviation.Update", fmt.Sprintf("cannot move deviation from %s to %s", d.Status, st))
			}
			changes = append(changes, [2]string{"status_changed", fmt.Sprintf("%s -> %s", d.Status, st)})
			d.Status = st
		}
	}
	if p.Priority != nil {
		pr, err := domain.ParsePriority(*p.Priority)
		if err != nil {
			return nil, apperr.Invalid("deviation.Update", err.Error())
		}
		if pr != d.Priority {
			changes = append(changes, [2]string{"priority_changed", fmt.Sprintf("%s -> %s", d.Priority, pr)})
			d.Priority = pr
		}
	}
	switch {
	case p.Unassign:
		if d.AssigneeID != nil {
			d.AssigneeID = nil
			changes = append(changes, [2]string{"unassigned", ""})
		}
	case p.AssigneeID != nil:
		if d.AssigneeID == nil || *d.AssigneeID != *p.AssigneeID {
			if err := s.checkAssignee(ctx, scope, p.AssigneeID); err != nil {
				return nil, err
			}
			d.AssigneeID = p.AssigneeID
			changes = append(changes, [2]string{"assigned", fmt.Sprintf("user %d", *p.AssigneeID)})
		}
	}

	if len(changes) == 0 {
		return d, nil
	}
	if err := s.deviations.Update(ctx, scope, d); err != nil {
		return nil, err
	}
	for _, c := range changes {
		s.record(ctx, scope, d.ID, c[0], c[1])
	}
	return d, nil
}

// Delete removes a deviation. Only admins may delete.
func (s *DeviationService) Delete(ctx context.Context, scope tenancy.Scope, id int64) error {
	if !scope.Role().AtLeast(domain.RoleAdmin) {
		return &apperr.Error{Code: apperr.EInsufficientRole, Op: "deviation.Delete", Msg: "admin role required"}
	}
	if err := s.deviations.Delete(ctx, scope, id); err != nil {
		return err
	}
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), "delete", "deviation", id, audit.StatusSuccess, "")
	return nil
}

func (s *DeviationService) Activity(ctx context.Context, scope tenancy.Scope, id int64) ([]*domain.DeviationActivity, error) {
	ok, err := s.deviations.Exists(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("deviation.Activity", "")
	}
	return s.deviations.ListActivity(ctx, scope, id)
}

func (s *DeviationService) record(ctx context.Context, scope tenancy.Scope, id int64, action, detail string) {
	a := &domain.DeviationActivity{DeviationID: id, UserID: scope.UserID(), Action: action, Detail: detail}
	if err := s.deviations.AddActivity(ctx, scope, a); err != nil {
		s.logger.Error("failed to record deviation activity",
			slog.Int64("deviation_id", id),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return
	}
	s.audit.LogAction(ctx, scope.TenantID(), scope.UserID(), action, "deviation", id, audit.StatusSuccess, detail)
}
