package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/tenancy"
	"github.com/yourorg/qualityhub/internal/tenancy/tenancytest"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var userRowColumns = []string{"id", "tenant_id", "email", "password_hash", "role", "first_name", "last_name", "is_active", "created_at", "updated_at"}

func TestUserGetByEmailFiltersOnTenant(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepository(db, nil)
	now := time.Now()

	mock.ExpectQuery(`(?s)FROM users WHERE tenant_id = \$1 AND email = \$2$`).
		WithArgs(int64(7), "admin@acme.test").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(11), int64(7), "admin@acme.test", "hash", "admin", "Ada", "Admin", true, now, now))

	u, err := repo.GetByEmail(context.Background(), 7, "admin@acme.test")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.TenantID)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByIDForeignRowIsNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepository(db, nil)
	scope := tenancytest.Scope(t, 7, 11, domain.RoleAdmin)

	mock.ExpectQuery(`(?s)FROM users WHERE tenant_id = \$1 AND id = \$2$`).
		WithArgs(int64(7), int64(99)).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.GetByID(context.Background(), scope, 99)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicateEmailIsConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepository(db, nil)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(int64(7), "dup@acme.test", "hash", sqlmock.AnyArg(), "", "", true).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), 7, &domain.User{Email: "dup@acme.test", PasswordHash: "hash", Role: domain.RoleUser, IsActive: true})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
}

func TestZeroScopeNeverQueries(t *testing.T) {
	db, mock := newMock(t)
	users := NewPostgresUserRepository(db, nil)
	devs := NewPostgresDeviationRepository(db, nil)

	_, err := users.GetByID(context.Background(), tenancy.Scope{}, 1)
	require.Error(t, err)
	_, err = devs.List(context.Background(), tenancy.Scope{}, DeviationFilter{})
	require.Error(t, err)
	assert.Equal(t, apperr.EInternal, apperr.Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantCreateSubdomainTaken(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresTenantRepository(db, nil)

	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs("Acme", "acme", sqlmock.AnyArg(), true).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &domain.Tenant{Name: "Acme", Subdomain: "acme", IsActive: true})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestTenantGetBySubdomainScansModules(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresTenantRepository(db, nil)
	now := time.Now()

	mock.ExpectQuery(`FROM tenants WHERE subdomain = \$1`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "subdomain", "modules", "is_active", "created_at", "updated_at"}).
			AddRow(int64(7), "Acme", "acme", "{checklists}", true, now, now))

	tenant, err := repo.GetBySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(7), tenant.ID)
	assert.True(t, tenant.HasModule(domain.ModuleChecklists))
	assert.False(t, tenant.HasModule(domain.ModuleMaintenance))
}

func TestTenantDeleteWithDependentsIsConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresTenantRepository(db, nil)

	mock.ExpectExec(`DELETE FROM tenants WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnError(&pq.Error{Code: "23503"})

	err := repo.Delete(context.Background(), 7)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
}

func TestDeviationCreateUsesScopeTenant(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresDeviationRepository(db, nil)
	scope := tenancytest.Scope(t, 7, 11, domain.RoleUser)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO deviations`).
		WithArgs(int64(7), "Leak", "", "open", "high", int64(11), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))

	d := &domain.Deviation{TenantID: 99, Title: "Leak", Status: domain.DeviationOpen, Priority: domain.PriorityHigh, ReporterID: 11}
	require.NoError(t, repo.Create(context.Background(), scope, d))
	assert.Equal(t, int64(7), d.TenantID)
	assert.Equal(t, int64(3), d.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviationListFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresDeviationRepository(db, nil)
	scope := tenancytest.Scope(t, 7, 11, domain.RoleUser)

	mock.ExpectQuery(`WHERE tenant_id = \$1 AND status = \$2 AND assignee_id = \$3 ORDER BY`).
		WithArgs(int64(7), "open", int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.List(context.Background(), scope, DeviationFilter{Status: domain.DeviationOpen, AssigneeID: 12})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Every tenant-scoped statement must bind the scope's tenant as $1 and filter
// on it in the same statement.
func TestScopedStatementsAlwaysFilterOnTenant(t *testing.T) {
	scope := tenancytest.Scope(t, 7, 11, domain.RoleAdmin)
	stop := errors.New("stop")
	ctx := context.Background()

	type call struct {
		name string
		exec bool
		run  func(db *sql.DB) error
	}
	calls := []call{
		{"user.GetByID", false, func(db *sql.DB) error { _, err := NewPostgresUserRepository(db, nil).GetByID(ctx, scope, 1); return err }},
		{"user.List", false, func(db *sql.DB) error { _, err := NewPostgresUserRepository(db, nil).List(ctx, scope); return err }},
		{"user.Deactivate", true, func(db *sql.DB) error { return NewPostgresUserRepository(db, nil).Deactivate(ctx, scope, 1) }},
		{"user.UpdatePassword", true, func(db *sql.DB) error { return NewPostgresUserRepository(db, nil).UpdatePassword(ctx, scope, 1, "h") }},
		{"user.Exists", false, func(db *sql.DB) error { _, err := NewPostgresUserRepository(db, nil).Exists(ctx, scope, 1); return err }},
		{"deviation.Create", false, func(db *sql.DB) error {
			return NewPostgresDeviationRepository(db, nil).Create(ctx, scope, &domain.Deviation{TenantID: 99})
		}},
		{"deviation.Get", false, func(db *sql.DB) error { _, err := NewPostgresDeviationRepository(db, nil).Get(ctx, scope, 1); return err }},
		{"deviation.Update", false, func(db *sql.DB) error {
			return NewPostgresDeviationRepository(db, nil).Update(ctx, scope, &domain.Deviation{ID: 1, TenantID: 99})
		}},
		{"deviation.Delete", true, func(db *sql.DB) error { return NewPostgresDeviationRepository(db, nil).Delete(ctx, scope, 1) }},
		{"deviation.Exists", false, func(db *sql.DB) error { _, err := NewPostgresDeviationRepository(db, nil).Exists(ctx, scope, 1); return err }},
		{"deviation.AddActivity", false, func(db *sql.DB) error {
			return NewPostgresDeviationRepository(db, nil).AddActivity(ctx, scope, &domain.DeviationActivity{DeviationID: 1, TenantID: 99})
		}},
		{"deviation.ListActivity", false, func(db *sql.DB) error {
			_, err := NewPostgresDeviationRepository(db, nil).ListActivity(ctx, scope, 1)
			return err
		}},
		{"checklist.Create", false, func(db *sql.DB) error {
			return NewPostgresChecklistRepository(db, nil).Create(ctx, scope, &domain.Checklist{TenantID: 99})
		}},
		{"checklist.Get", false, func(db *sql.DB) error { _, err := NewPostgresChecklistRepository(db, nil).Get(ctx, scope, 1); return err }},
		{"checklist.List", false, func(db *sql.DB) error { _, err := NewPostgresChecklistRepository(db, nil).List(ctx, scope); return err }},
		{"checklist.Exists", false, func(db *sql.DB) error { _, err := NewPostgresChecklistRepository(db, nil).Exists(ctx, scope, 1); return err }},
		{"workorder.Create", false, func(db *sql.DB) error {
			return NewPostgresWorkOrderRepository(db, nil).Create(ctx, scope, &domain.WorkOrder{TenantID: 99})
		}},
		{"workorder.List", false, func(db *sql.DB) error { _, err := NewPostgresWorkOrderRepository(db, nil).List(ctx, scope); return err }},
	}

	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			var seen string
			matcher := sqlmock.QueryMatcherFunc(func(_, actual string) error {
				seen = actual
				return nil
			})
			args := &recordingConverter{}
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher), sqlmock.ValueConverterOption(args))
			require.NoError(t, err)
			defer db.Close()

			if c.exec {
				mock.ExpectExec("").WillReturnError(stop)
			} else {
				mock.ExpectQuery("").WillReturnError(stop)
			}

			err = c.run(db)
			require.True(t, errors.Is(err, stop), "unexpected error: %v", err)
			require.NotEmpty(t, args.values)
			assert.Equal(t, int64(7), args.values[0], "first argument must be the scope tenant")
			assert.NotContains(t, args.values, int64(99), "client-supplied tenant id reached the statement")
			normalized := strings.Join(strings.Fields(seen), " ")
			assert.True(t,
				strings.Contains(normalized, "tenant_id = $1") || strings.Contains(normalized, "(tenant_id,"),
				"statement does not scope by tenant: %s", normalized)
		})
	}
}

// recordingConverter captures statement arguments in order.
type recordingConverter struct {
	values []driver.Value
}

func (r *recordingConverter) ConvertValue(v any) (driver.Value, error) {
	dv, err := driver.DefaultParameterConverter.ConvertValue(v)
	if err == nil {
		r.values = append(r.values, dv)
	}
	return dv, err
}
