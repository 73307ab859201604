package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/tenancy/tenancytest"
)

func TestUserServiceCannotDeactivateSelf(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	admin := f.addUser(t, 7, "admin@acme.test", domain.RoleAdmin, true)
	other := f.addUser(t, 7, "user@acme.test", domain.RoleUser, true)
	svc := NewUserService(f.store.Users(), f.auth, nil, nil)
	scope := tenancytest.Scope(t, 7, admin.ID, domain.RoleAdmin)
	ctx := context.Background()

	err := svc.Deactivate(ctx, scope, admin.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	require.NoError(t, svc.Deactivate(ctx, scope, other.ID))
	_, err = f.auth.Login(ctx, f.acme, "user@acme.test", testPassword, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidCredentials))
}

func TestUserServiceCannotTouchForeignUser(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	admin := f.addUser(t, 7, "admin@acme.test", domain.RoleAdmin, true)
	foreign := f.addUser(t, 8, "user@globex.test", domain.RoleUser, true)
	svc := NewUserService(f.store.Users(), f.auth, nil, nil)
	scope := tenancytest.Scope(t, 7, admin.ID, domain.RoleAdmin)

	err := svc.Deactivate(context.Background(), scope, foreign.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUserServiceOnlySuperadminMintsSuperadmin(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	admin := f.addUser(t, 7, "admin@acme.test", domain.RoleAdmin, true)
	svc := NewUserService(f.store.Users(), f.auth, nil, nil)
	scope := tenancytest.Scope(t, 7, admin.ID, domain.RoleAdmin)

	_, err := svc.Create(context.Background(), scope, CreateUserInput{Email: "root@acme.test", Password: testPassword, Role: domain.RoleSuperAdmin})
	assert.Equal(t, apperr.EInsufficientRole, apperr.Code(err))

	u, err := svc.Create(context.Background(), scope, CreateUserInput{Email: "second@acme.test", Password: testPassword, Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.TenantID)
}

type recordingCache struct{ subdomains []string }

func (c *recordingCache) Invalidate(_ context.Context, t *domain.Tenant) {
	c.subdomains = append(c.subdomains, t.Subdomain)
}

func TestTenantServiceLifecycle(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	root := f.addUser(t, 7, "root@acme.test", domain.RoleSuperAdmin, true)
	cache := &recordingCache{}
	svc := NewTenantService(f.store.Tenants(), f.store.Users(), f.auth, cache, nil, nil)
	scope := tenancytest.Scope(t, 7, root.ID, domain.RoleSuperAdmin)
	ctx := context.Background()

	_, err := svc.Create(ctx, scope, CreateTenantInput{Name: "Bad", Subdomain: "Not A Label"})
	assert.True(t, errors.Is(err, apperr.ErrInvalid))
	_, err = svc.Create(ctx, scope, CreateTenantInput{Name: "Dup", Subdomain: "acme"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	_, err = svc.Create(ctx, scope, CreateTenantInput{Name: "Mods", Subdomain: "mods", Modules: []string{"payroll"}})
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	res, err := svc.Create(ctx, scope, CreateTenantInput{
		Name: "Initech", Subdomain: "initech", Modules: []string{"deviations"},
		AdminEmail: "boss@initech.test", AdminPassword: testPassword,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Admin)
	assert.Equal(t, res.Tenant.ID, res.Admin.TenantID)
	assert.Equal(t, domain.RoleAdmin, res.Admin.Role)

	updated, err := svc.SetModules(ctx, scope, res.Tenant.ID, []string{"checklists", "maintenance"})
	require.NoError(t, err)
	assert.Equal(t, []string{"checklists", "maintenance"}, updated.Modules.Names())
	assert.Equal(t, []string{"initech"}, cache.subdomains)

	// The tenant owns its admin, so deleting is blocked.
	err = svc.Delete(ctx, scope, res.Tenant.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	require.NoError(t, svc.Deactivate(ctx, scope, res.Tenant.ID))
	got, err := svc.Get(ctx, res.Tenant.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.True(t, errors.Is(svc.Delete(ctx, scope, 7), apperr.ErrInvalid))
}

// failingUsers rejects every insert.
type failingUsers struct {
	repository.UserRepository
}

func (failingUsers) Create(context.Context, int64, *domain.User) error {
	return apperr.Internal("user.Create", errors.New("connection reset"))
}

func TestTenantCreateRollsBackWhenAdminFails(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	root := f.addUser(t, 7, "root@acme.test", domain.RoleSuperAdmin, true)
	scope := tenancytest.Scope(t, 7, root.ID, domain.RoleSuperAdmin)
	ctx := context.Background()
	in := CreateTenantInput{Name: "Initech", Subdomain: "initech", AdminEmail: "boss@initech.test", AdminPassword: testPassword}

	broken := NewTenantService(f.store.Tenants(), failingUsers{f.store.Users()}, f.auth, nil, nil, nil)
	_, err := broken.Create(ctx, scope, in)
	require.Error(t, err)
	_, err = f.store.Tenants().GetBySubdomain(ctx, "initech")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "tenant without admin must not remain")

	svc := NewTenantService(f.store.Tenants(), f.store.Users(), f.auth, nil, nil, nil)
	res, err := svc.Create(ctx, scope, in)
	require.NoError(t, err)
	assert.Equal(t, "initech", res.Tenant.Subdomain)
	require.NotNil(t, res.Admin)
}

func TestDeviationWorkflow(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	reporter := f.addUser(t, 7, "rep@acme.test", domain.RoleUser, true)
	assignee := f.addUser(t, 7, "fix@acme.test", domain.RoleUser, true)
	foreign := f.addUser(t, 8, "x@globex.test", domain.RoleUser, true)
	svc := NewDeviationService(f.store.Deviations(), f.store.Users(), nil, nil)
	scope := tenancytest.Scope(t, 7, reporter.ID, domain.RoleUser)
	ctx := context.Background()

	_, err := svc.Create(ctx, scope, DeviationInput{Title: "Leak", AssigneeID: &foreign.ID})
	assert.True(t, errors.Is(err, apperr.ErrInvalid), "foreign assignee must be rejected")

	d, err := svc.Create(ctx, scope, DeviationInput{Title: " Leak in line 3 ", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviationOpen, d.Status)
	assert.Equal(t, reporter.ID, d.ReporterID)
	assert.Equal(t, "Leak in line 3", d.Title)

	status := "resolved"
	d, err = svc.Update(ctx, scope, d.ID, DeviationPatch{Status: &status, AssigneeID: &assignee.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviationResolved, d.Status)

	back := "open"
	_, err = svc.Update(ctx, scope, d.ID, DeviationPatch{Status: &back})
	assert.True(t, errors.Is(err, apperr.ErrInvalid), "resolved cannot go straight back to open")

	acts, err := svc.Activity(ctx, scope, d.ID)
	require.NoError(t, err)
	var actions []string
	for _, a := range acts {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []string{"created", "status_changed", "assigned"}, actions)

	err = svc.Delete(ctx, scope, d.ID)
	assert.Equal(t, apperr.EInsufficientRole, apperr.Code(err))

	adminScope := tenancytest.Scope(t, 7, reporter.ID, domain.RoleAdmin)
	require.NoError(t, svc.Delete(ctx, adminScope, d.ID))
	_, err = svc.Get(ctx, scope, d.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeviationActivityOfForeignDeviationIsNotFound(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	a := f.addUser(t, 7, "a@acme.test", domain.RoleUser, true)
	b := f.addUser(t, 8, "b@globex.test", domain.RoleUser, true)
	svc := NewDeviationService(f.store.Deviations(), f.store.Users(), nil, nil)
	ctx := context.Background()

	d, err := svc.Create(ctx, tenancytest.Scope(t, 8, b.ID, domain.RoleUser), DeviationInput{Title: "Theirs"})
	require.NoError(t, err)

	_, err = svc.Activity(ctx, tenancytest.Scope(t, 7, a.ID, domain.RoleUser), d.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSeedIsIdempotent(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	set := []SeedTenant{{
		Name: "Demo", Subdomain: "demo", Modules: []domain.Module{domain.ModuleDeviations},
		Accounts: []SeedAccount{{Email: "admin@demo.test", Role: domain.RoleAdmin}},
	}}
	require.NoError(t, Seed(ctx, f.store.Tenants(), f.store.Users(), f.auth, testPassword, set, nil))
	require.NoError(t, Seed(ctx, f.store.Tenants(), f.store.Users(), f.auth, testPassword, set, nil))

	demo, err := f.store.Tenants().GetBySubdomain(ctx, "demo")
	require.NoError(t, err)
	_, err = f.auth.Login(ctx, demo, "admin@demo.test", testPassword, "")
	require.NoError(t, err)

	tenants, err := f.store.Tenants().List(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 3)
}

func TestChecklistAndMaintenance(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	u := f.addUser(t, 7, "a@acme.test", domain.RoleUser, true)
	scope := tenancytest.Scope(t, 7, u.ID, domain.RoleUser)
	ctx := context.Background()

	cl := NewChecklistService(f.store.Checklists(), nil, nil)
	c, err := cl.Create(ctx, scope, "Start of shift", []string{"guards", " ", "lights"})
	require.NoError(t, err)
	assert.Equal(t, []string{"guards", "lights"}, c.Items)
	_, err = cl.Create(ctx, scope, "  ", nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	ms := NewMaintenanceService(f.store.WorkOrders(), nil, nil)
	w, err := ms.Create(ctx, scope, "Press 4", "Replace seal", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), w.TenantID)
	list, err := ms.List(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
