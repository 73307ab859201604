// Package memory holds in-process implementations of the repository
// interfaces. They back STORAGE=memory development runs and the service,
// gate and router tests, and follow the same tenant filtering rules as the
// PostgreSQL repositories.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// Store is a single in-memory database shared by its repositories.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	tenants    map[int64]*domain.Tenant
	users      map[int64]*domain.User
	deviations map[int64]*domain.Deviation
	activity   []*domain.DeviationActivity
	checklists map[int64]*domain.Checklist
	workOrders map[int64]*domain.WorkOrder
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:        time.Now,
		tenants:    make(map[int64]*domain.Tenant),
		users:      make(map[int64]*domain.User),
		deviations: make(map[int64]*domain.Deviation),
		checklists: make(map[int64]*domain.Checklist),
		workOrders: make(map[int64]*domain.WorkOrder),
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) Tenants() *TenantRepository       { return &TenantRepository{s: s} }
func (s *Store) Users() *UserRepository           { return &UserRepository{s: s} }
func (s *Store) Deviations() *DeviationRepository { return &DeviationRepository{s: s} }
func (s *Store) Checklists() *ChecklistRepository { return &ChecklistRepository{s: s} }
func (s *Store) WorkOrders() *WorkOrderRepository { return &WorkOrderRepository{s: s} }

var (
	_ repository.TenantRepository    = (*TenantRepository)(nil)
	_ repository.UserRepository      = (*UserRepository)(nil)
	_ repository.DeviationRepository = (*DeviationRepository)(nil)
	_ repository.ChecklistRepository = (*ChecklistRepository)(nil)
	_ repository.WorkOrderRepository = (*WorkOrderRepository)(nil)
)

func copyTenant(t *domain.Tenant) *domain.Tenant {
	c := *t
	c.Modules = domain.NewModuleSet()
	for m := range t.Modules {
		c.Modules[m] = struct{}{}
	}
	return &c
}

// TenantRepository is the in-memory TenantRepository.
type TenantRepository struct{ s *Store }

func (r *TenantRepository) Create(_ context.Context, t *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tenants {
		if existing.Subdomain == t.Subdomain {
			return apperr.Conflict("tenant.Create", "subdomain already taken")
		}
	}
	if t.ID == 0 {
		t.ID = r.s.nextID()
	} else if t.ID > r.s.seq {
		r.s.seq = t.ID
	}
	t.CreatedAt = r.s.now()
	t.UpdatedAt = t.CreatedAt
	r.s.tenants[t.ID] = copyTenant(t)
	return nil
}

func (r *TenantRepository) GetByID(_ context.Context, id int64) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, apperr.NotFound("tenant.GetByID", "")
	}
	return copyTenant(t), nil
}

func (r *TenantRepository) GetBySubdomain(_ context.Context, subdomain string) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tenants {
		if t.Subdomain == subdomain {
			return copyTenant(t), nil
		}
	}
	return nil, apperr.NotFound("tenant.GetBySubdomain", "")
}

func (r *TenantRepository) List(_ context.Context) ([]*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		out = append(out, copyTenant(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *TenantRepository) SetModules(_ context.Context, id int64, modules domain.ModuleSet) (*domain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, apperr.NotFound("tenant.SetModules", "")
	}
	t.Modules = domain.NewModuleSet()
	for m := range modules {
		t.Modules[m] = struct{}{}
	}
	t.UpdatedAt = r.s.now()
	return copyTenant(t), nil
}

func (r *TenantRepository) Deactivate(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return apperr.NotFound("tenant.Deactivate", "")
	}
	t.IsActive = false
	t.UpdatedAt = r.s.now()
	return nil
}

func (r *TenantRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tenants[id]; !ok {
		return apperr.NotFound("tenant.Delete", "")
	}
	if r.s.hasDependents(id) {
		return apperr.Conflict("tenant.Delete", "tenant still has dependent records")
	}
	delete(r.s.tenants, id)
	return nil
}

func (s *Store) hasDependents(tenantID int64) bool {
	for _, u := range s.users {
		if u.TenantID == tenantID {
			return true
		}
	}
	for _, d := range s.deviations {
		if d.TenantID == tenantID {
			return true
		}
	}
	for _, c := range s.checklists {
		if c.TenantID == tenantID {
			return true
		}
	}
	for _, w := range s.workOrders {
		if w.TenantID == tenantID {
			return true
		}
	}
	return false
}

// UserRepository is the in-memory UserRepository.
type UserRepository struct{ s *Store }

func (r *UserRepository) GetByEmail(_ context.Context, tenantID int64, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperr.NotFound("user.GetByEmail", "")
}

func (r *UserRepository) Create(_ context.Context, tenantID int64, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tenants[tenantID]; !ok {
		return apperr.Invalid("user.Create", "unknown tenant")
	}
	for _, existing := range r.s.users {
		if existing.TenantID == tenantID && strings.EqualFold(existing.Email, u.Email) {
			return apperr.Conflict("user.Create", "email already registered")
		}
	}
	u.ID = r.s.nextID()
	u.TenantID = tenantID
	u.CreatedAt = r.s.now()
	u.UpdatedAt = u.CreatedAt
	c := *u
	r.s.users[u.ID] = &c
	return nil
}

// scoped returns the user only when it belongs to the scope's tenant. Callers
// hold the lock.
func (r *UserRepository) scoped(scope tenancy.Scope, id int64) (*domain.User, bool) {
	u, ok := r.s.users[id]
	if !ok || u.TenantID != scope.TenantID() {
		return nil, false
	}
	return u, true
}

func (r *UserRepository) GetByID(_ context.Context, scope tenancy.Scope, id int64) (*domain.User, error) {
	if err := scope.Require("user.GetByID"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.scoped(scope, id)
	if !ok {
		return nil, apperr.NotFound("user.GetByID", "")
	}
	c := *u
	return &c, nil
}

func (r *UserRepository) List(_ context.Context, scope tenancy.Scope) ([]*domain.User, error) {
	if err := scope.Require("user.List"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.User
	for _, u := range r.s.users {
		if u.TenantID == scope.TenantID() {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *UserRepository) Deactivate(_ context.Context, scope tenancy.Scope, id int64) error {
	if err := scope.Require("user.Deactivate"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.scoped(scope, id)
	if !ok {
		return apperr.NotFound("user.Deactivate", "")
	}
	u.IsActive = false
	u.UpdatedAt = r.s.now()
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, scope tenancy.Scope, id int64, hash string) error {
	if err := scope.Require("user.UpdatePassword"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.scoped(scope, id)
	if !ok {
		return apperr.NotFound("user.UpdatePassword", "")
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.s.now()
	return nil
}

func (r *UserRepository) Exists(_ context.Context, scope tenancy.Scope, id int64) (bool, error) {
	if err := scope.Require("user.Exists"); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.scoped(scope, id)
	return ok, nil
}

// DeviationRepository is the in-memory DeviationRepository.
type DeviationRepository struct{ s *Store }

func (r *DeviationRepository) userInTenant(tenantID int64, id *int64) bool {
	if id == nil {
		return true
	}
	u, ok := r.s.users[*id]
	return ok && u.TenantID == tenantID
}

func (r *DeviationRepository) Create(_ context.Context, scope tenancy.Scope, d *domain.Deviation) error {
	if err := scope.Require("deviation.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.userInTenant(scope.TenantID(), &d.ReporterID) || !r.userInTenant(scope.TenantID(), d.AssigneeID) {
		return apperr.Invalid("deviation.Create", "unknown user reference")
	}
	d.ID = r.s.nextID()
	d.TenantID = scope.TenantID()
	d.CreatedAt = r.s.now()
	d.UpdatedAt = d.CreatedAt
	c := *d
	r.s.deviations[d.ID] = &c
	return nil
}

func (r *DeviationRepository) scoped(scope tenancy.Scope, id int64) (*domain.Deviation, bool) {
	d, ok := r.s.deviations[id]
	if !ok || d.TenantID != scope.TenantID() {
		return nil, false
	}
	return d, true
}

func (r *DeviationRepository) Get(_ context.Context, scope tenancy.Scope, id int64) (*domain.Deviation, error) {
	if err := scope.Require("deviation.Get"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.scoped(scope, id)
	if !ok {
		return nil, apperr.NotFound("deviation.Get", "")
	}
	c := *d
	return &c, nil
}

func (r *DeviationRepository) List(_ context.Context, scope tenancy.Scope, f repository.DeviationFilter) ([]*domain.Deviation, error) {
	if err := scope.Require("deviation.List"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Deviation
	for _, d := range r.s.deviations {
		if d.TenantID != scope.TenantID() {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.AssigneeID != 0 && (d.AssigneeID == nil || *d.AssigneeID != f.AssigneeID) {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *DeviationRepository) Update(_ context.Context, scope tenancy.Scope, d *domain.Deviation) error {
	if err := scope.Require("deviation.Update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.scoped(scope, d.ID)
	if !ok {
		return apperr.NotFound("deviation.Update", "")
	}
	if !r.userInTenant(scope.TenantID(), d.AssigneeID) {
		return apperr.Invalid("deviation.Update", "unknown user reference")
	}
	existing.Title = d.Title
	existing.Description = d.Description
	existing.Status = d.Status
	existing.Priority = d.Priority
	existing.AssigneeID = d.AssigneeID
	existing.UpdatedAt = r.s.now()
	d.TenantID = scope.TenantID()
	d.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *DeviationRepository) Delete(_ context.Context, scope tenancy.Scope, id int64) error {
	if err := scope.Require("deviation.Delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.scoped(scope, id); !ok {
		return apperr.NotFound("deviation.Delete", "")
	}
	delete(r.s.deviations, id)
	kept := r.s.activity[:0]
	for _, a := range r.s.activity {
		if a.DeviationID != id {
			kept = append(kept, a)
		}
	}
	r.s.activity = kept
	return nil
}

func (r *DeviationRepository) Exists(_ context.Context, scope tenancy.Scope, id int64) (bool, error) {
	if err := scope.Require("deviation.Exists"); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.scoped(scope, id)
	return ok, nil
}

func (r *DeviationRepository) AddActivity(_ context.Context, scope tenancy.Scope, a *domain.DeviationActivity) error {
	if err := scope.Require("deviation.AddActivity"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.scoped(scope, a.DeviationID); !ok {
		return apperr.NotFound("deviation.AddActivity", "")
	}
	a.ID = r.s.nextID()
	a.TenantID = scope.TenantID()
	a.CreatedAt = r.s.now()
	c := *a
	r.s.activity = append(r.s.activity, &c)
	return nil
}

func (r *DeviationRepository) ListActivity(_ context.Context, scope tenancy.Scope, deviationID int64) ([]*domain.DeviationActivity, error) {
	if err := scope.Require("deviation.ListActivity"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.DeviationActivity
	for _, a := range r.s.activity {
		if a.TenantID == scope.TenantID() && a.DeviationID == deviationID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

// ChecklistRepository is the in-memory ChecklistRepository.
type ChecklistRepository struct{ s *Store }

func (r *ChecklistRepository) Create(_ context.Context, scope tenancy.Scope, c *domain.Checklist) error {
	if err := scope.Require("checklist.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.nextID()
	c.TenantID = scope.TenantID()
	c.CreatedAt = r.s.now()
	stored := *c
	stored.Items = append([]string(nil), c.Items...)
	r.s.checklists[c.ID] = &stored
	return nil
}

func (r *ChecklistRepository) Get(_ context.Context, scope tenancy.Scope, id int64) (*domain.Checklist, error) {
	if err := scope.Require("checklist.Get"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.checklists[id]
	if !ok || c.TenantID != scope.TenantID() {
		return nil, apperr.NotFound("checklist.Get", "")
	}
	out := *c
	out.Items = append([]string(nil), c.Items...)
	return &out, nil
}

func (r *ChecklistRepository) List(_ context.Context, scope tenancy.Scope) ([]*domain.Checklist, error) {
	if err := scope.Require("checklist.List"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Checklist
	for _, c := range r.s.checklists {
		if c.TenantID == scope.TenantID() {
			cp := *c
			cp.Items = append([]string(nil), c.Items...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ChecklistRepository) Exists(_ context.Context, scope tenancy.Scope, id int64) (bool, error) {
	if err := scope.Require("checklist.Exists"); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.checklists[id]
	return ok && c.TenantID == scope.TenantID(), nil
}

// WorkOrderRepository is the in-memory WorkOrderRepository.
type WorkOrderRepository struct{ s *Store }

func (r *WorkOrderRepository) Create(_ context.Context, scope tenancy.Scope, w *domain.WorkOrder) error {
	if err := scope.Require("workorder.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w.ID = r.s.nextID()
	w.TenantID = scope.TenantID()
	w.CreatedAt = r.s.now()
	c := *w
	r.s.workOrders[w.ID] = &c
	return nil
}

func (r *WorkOrderRepository) List(_ context.Context, scope tenancy.Scope) ([]*domain.WorkOrder, error) {
	if err := scope.Require("workorder.List"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.WorkOrder
	for _, w := range r.s.workOrders {
		if w.TenantID == scope.TenantID() {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
