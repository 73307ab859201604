package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/handler"
	"github.com/yourorg/qualityhub/internal/repository/memory"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/service"
	"github.com/yourorg/qualityhub/pkg/config"
)

const testPassword = "correct-horse-battery"

type server struct {
	t   *testing.T
	srv *httptest.Server
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Tenants().Create(ctx, &domain.Tenant{ID: 7, Name: "Acme", Subdomain: "acme", Modules: domain.NewModuleSet(domain.ModuleChecklists), IsActive: true}))
	require.NoError(t, store.Tenants().Create(ctx, &domain.Tenant{ID: 8, Name: "Globex", Subdomain: "globex", Modules: domain.NewModuleSet(domain.ModuleChecklists, domain.ModuleDeviations), IsActive: true}))

	cfg := &config.Config{
		Environment:        config.EnvDevelopment,
		BcryptCost:         10,
		TokenTTL:           24 * time.Hour,
		RateLimitPerMinute: 1000,
		LoginRatePerMinute: 1000,
		LoginBurst:         100,
		TenantCacheTTL:     time.Minute,
	}
	tokens, err := token.NewManager(token.Options{Secret: "app-test-secret", Issuer: "qualityhub", TTL: cfg.TokenTTL})
	require.NoError(t, err)

	a, err := New(Deps{
		Config: cfg,
		Repos: Repositories{
			Tenants:    store.Tenants(),
			Users:      store.Users(),
			Deviations: store.Deviations(),
			Checklists: store.Checklists(),
			WorkOrders: store.WorkOrders(),
		},
		Tokens: tokens,
		Probes: map[string]handler.Probe{"database": func(context.Context) error { return nil }},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, service.Seed(ctx, store.Tenants(), store.Users(), a.Auth, testPassword, []service.SeedTenant{
		{Name: "Acme", Subdomain: "acme", Accounts: []service.SeedAccount{{Email: "admin@acme.test", Role: domain.RoleAdmin}}},
		{Name: "Globex", Subdomain: "globex", Accounts: []service.SeedAccount{{Email: "admin@globex.test", Role: domain.RoleAdmin}}},
	}, nil))

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)
	return &server{t: t, srv: srv}
}

func (s *server) do(method, path, host, tok, body string) (int, []byte) {
	s.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, r)
	require.NoError(s.t, err)
	req.Host = host
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, raw
}

func (s *server) login(host, email string) handler.TokenResponse {
	s.t.Helper()
	status, raw := s.do(http.MethodPost, "/api/auth/login", host, "", `{"email":"`+email+`","password":"`+testPassword+`"}`)
	require.Equal(s.t, http.StatusOK, status, string(raw))
	var out handler.TokenResponse
	require.NoError(s.t, json.Unmarshal(raw, &out))
	return out
}

func message(t *testing.T, raw []byte) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body.Message
}

const (
	acmeHost   = "acme.qualityhub.test"
	globexHost = "globex.qualityhub.test"
)

func TestAcmeScenario(t *testing.T) {
	s := newServer(t)

	res := s.login(acmeHost, "admin@acme.test")
	require.NotEmpty(t, res.Token)
	assert.Equal(t, int64(7), res.User.TenantID)
	assert.Equal(t, "admin", res.User.Role)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), res.ExpiresAt, time.Minute)

	status, _ := s.do(http.MethodGet, "/api/checklists", acmeHost, res.Token, "")
	assert.Equal(t, http.StatusOK, status)

	status, raw := s.do(http.MethodGet, "/api/maintenance/orders", acmeHost, res.Token, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, message(t, raw), "maintenance")

	// The module denial also covers id routes, whether or not the id exists.
	status, raw = s.do(http.MethodGet, "/api/deviations/424242", acmeHost, res.Token, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, message(t, raw), "deviations")

	status, raw = s.do(http.MethodPatch, "/api/deviations/424242", acmeHost, res.Token, `{"status":"closed"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, message(t, raw), "deviations")
}

func TestLoginFailures(t *testing.T) {
	s := newServer(t)

	status, raw := s.do(http.MethodPost, "/api/auth/login", acmeHost, "", `{"email":"admin@acme.test","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	wrong := message(t, raw)

	// A real user of another tenant is as unknown as a missing one.
	status, raw = s.do(http.MethodPost, "/api/auth/login", acmeHost, "", `{"email":"admin@globex.test","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, wrong, message(t, raw))

	status, raw = s.do(http.MethodPost, "/api/auth/login", "localhost", "", `{"email":"admin@acme.test","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "no tenant indicated", message(t, raw))

	status, _ = s.do(http.MethodPost, "/api/auth/login", "initech.qualityhub.test", "", `{"email":"admin@acme.test","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBodyTenantIDIsRewritten(t *testing.T) {
	s := newServer(t)
	tok := s.login(acmeHost, "admin@acme.test").Token

	status, raw := s.do(http.MethodPost, "/api/checklists", acmeHost, tok, `{"tenantId":8,"title":"Line 3 start-up","items":["guards","e-stop"]}`)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created struct {
		ID       int64 `json:"id"`
		TenantID int64 `json:"tenantId"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, int64(7), created.TenantID)

	status, raw = s.do(http.MethodGet, "/api/checklists/"+strconv.FormatInt(created.ID, 10), acmeHost, tok, "")
	require.Equal(t, http.StatusOK, status)
	var stored struct {
		TenantID int64 `json:"tenantId"`
	}
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, int64(7), stored.TenantID)

	// Globex sees nothing of it.
	globex := s.login(globexHost, "admin@globex.test").Token
	status, raw = s.do(http.MethodGet, "/api/checklists", globexHost, globex, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestForeignResourceLooksAbsent(t *testing.T) {
	s := newServer(t)
	acme := s.login(acmeHost, "admin@acme.test").Token
	globex := s.login(globexHost, "admin@globex.test").Token

	status, raw := s.do(http.MethodPost, "/api/checklists", acmeHost, acme, `{"title":"Acme only","items":["a"]}`)
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))

	foreignStatus, foreignBody := s.do(http.MethodGet, "/api/checklists/"+strconv.FormatInt(created.ID, 10), globexHost, globex, "")
	absentStatus, absentBody := s.do(http.MethodGet, "/api/checklists/987654", globexHost, globex, "")
	assert.Equal(t, http.StatusNotFound, foreignStatus)
	assert.Equal(t, absentStatus, foreignStatus)
	assert.Equal(t, string(absentBody), string(foreignBody))
}

func TestDeviationLifecycle(t *testing.T) {
	s := newServer(t)
	tok := s.login(globexHost, "admin@globex.test").Token

	status, raw := s.do(http.MethodPost, "/api/deviations", globexHost, tok, `{"title":"Seal leak","description":"Pump 4","priority":"high"}`)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var d struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.Equal(t, "open", d.Status)
	path := "/api/deviations/" + strconv.FormatInt(d.ID, 10)

	status, raw = s.do(http.MethodPatch, path, globexHost, tok, `{"status":"in_progress"}`)
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = s.do(http.MethodGet, path+"/activity", globexHost, tok, "")
	require.Equal(t, http.StatusOK, status)
	var activity []struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(raw, &activity))
	require.Len(t, activity, 2)
	assert.Equal(t, "created", activity[0].Action)

	status, _ = s.do(http.MethodDelete, path, globexHost, tok, "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(http.MethodGet, path, globexHost, tok, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoleAndHostChecks(t *testing.T) {
	s := newServer(t)

	status, raw := s.do(http.MethodPost, "/api/auth/register", acmeHost, "", `{"email":"Operator@Acme.test","password":"long-enough-pw"}`)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var reg handler.TokenResponse
	require.NoError(t, json.Unmarshal(raw, &reg))
	assert.Equal(t, "user", reg.User.Role)
	assert.Equal(t, "operator@acme.test", reg.User.Email)

	status, raw = s.do(http.MethodGet, "/api/users", acmeHost, reg.Token, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, message(t, raw), "admin")

	admin := s.login(acmeHost, "admin@acme.test").Token
	status, _ = s.do(http.MethodGet, "/api/users", acmeHost, admin, "")
	assert.Equal(t, http.StatusOK, status)

	// Tenant-bound routes must be called on the token's own subdomain.
	status, _ = s.do(http.MethodGet, "/api/users", globexHost, admin, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodGet, "/api/admin/tenants", acmeHost, admin, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodGet, "/api/auth/me", acmeHost, "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPublicEndpoints(t *testing.T) {
	s := newServer(t)

	status, raw := s.do(http.MethodGet, "/healthz", "localhost", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	status, raw = s.do(http.MethodGet, "/readyz", "localhost", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ready","checks":{"database":"ok"}}`, string(raw))

	status, _ = s.do(http.MethodGet, "/metrics", "localhost", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestPoliciesCoverEveryPrefix(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range Policies() {
		assert.False(t, seen[p.Prefix], "duplicate policy %s", p.Prefix)
		seen[p.Prefix] = true
		if p.Public {
			assert.Empty(t, p.Roles, p.Prefix)
			assert.Empty(t, p.Module, p.Prefix)
		}
	}
}

func TestSweepTasksAreNamed(t *testing.T) {
	cfg := &config.Config{BcryptCost: 10, RateLimitPerMinute: 10, LoginRatePerMinute: 10, LoginBurst: 1}
	tokens, err := token.NewManager(token.Options{Secret: "app-test-secret"})
	require.NoError(t, err)
	store := memory.NewStore()
	a, err := New(Deps{Config: cfg, Tokens: tokens, Repos: Repositories{
		Tenants: store.Tenants(), Users: store.Users(), Deviations: store.Deviations(),
		Checklists: store.Checklists(), WorkOrders: store.WorkOrders(),
	}})
	require.NoError(t, err)
	defer a.Close()

	tasks := a.SweepTasks()
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.NotEmpty(t, task.Name)
		assert.Equal(t, 0, task.Sweep())
	}
}
