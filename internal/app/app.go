// Package app wires services, the authorization gate, and HTTP routes into
// one handler.
package app

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/handler"
	"github.com/yourorg/qualityhub/internal/observability/metrics"
	"github.com/yourorg/qualityhub/internal/observability/requestid"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/security/gate"
	"github.com/yourorg/qualityhub/internal/security/middleware"
	"github.com/yourorg/qualityhub/internal/security/ratelimit"
	"github.com/yourorg/qualityhub/internal/security/resolver"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/service"
	"github.com/yourorg/qualityhub/internal/worker"
	"github.com/yourorg/qualityhub/pkg/config"
)

// Repositories groups the storage backends.
type Repositories struct {
	Tenants    repository.TenantRepository
	Users      repository.UserRepository
	Deviations repository.DeviationRepository
	Checklists repository.ChecklistRepository
	WorkOrders repository.WorkOrderRepository
}

// Deps is everything New needs from main.
type Deps struct {
	Config      *config.Config
	Repos       Repositories
	Tokens      *token.Manager
	SharedCache resolver.SharedCache
	Probes      map[string]handler.Probe
	Logger      *slog.Logger
	AuditLogger *slog.Logger
	ActivityHub *audit.Hub
}

// App is the assembled HTTP application.
type App struct {
	Handler  http.Handler
	Auth     *service.AuthService
	Resolver *resolver.Resolver
	Audit    *audit.Logger
	limiter  *ratelimit.Limiter
	throttle *ratelimit.LoginThrottle
}

// Policies is the route policy table of the API.
func Policies() []gate.Policy {
	admin := []domain.Role{domain.RoleAdmin}
	return []gate.Policy{
		{Prefix: "/healthz", Public: true},
		{Prefix: "/readyz", Public: true},
		{Prefix: "/metrics", Public: true},
		{Prefix: "/api/auth/login", Public: true},
		{Prefix: "/api/auth/register", Public: true},
		{Prefix: "/api/users", TenantBound: true, Roles: admin, Resource: "user"},
		{Prefix: "/api/admin", Roles: []domain.Role{domain.RoleSuperAdmin}},
		{Prefix: "/api/deviations", Module: domain.ModuleDeviations, Resource: "deviation"},
		{Prefix: "/api/checklists", Module: domain.ModuleChecklists, Resource: "checklist"},
		{Prefix: "/api/maintenance", Module: domain.ModuleMaintenance},
		{Prefix: "/ws/activity", Roles: admin},
	}
}

// New builds the application.
func New(d Deps) (*App, error) {
	if d.Config == nil || d.Tokens == nil {
		return nil, errors.New("app: config and token manager are required")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := d.Config
	hub := d.ActivityHub
	if hub == nil {
		hub = audit.NewHub(64)
	}
	auditLog := audit.NewLogger(d.AuditLogger, hub)

	res := resolver.New(d.Repos.Tenants, resolver.Options{
		Fallback: cfg.HostFallback,
		CacheTTL: cfg.TenantCacheTTL,
		Shared:   d.SharedCache,
	}, log)

	throttle := ratelimit.NewLoginThrottle(cfg.LoginRatePerMinute, cfg.LoginBurst)
	auth, err := service.NewAuthService(d.Repos.Users, d.Tokens, service.AuthOptions{
		BcryptCost: cfg.BcryptCost,
		Throttle:   throttle,
		Audit:      auditLog,
	}, log)
	if err != nil {
		return nil, err
	}
	users := service.NewUserService(d.Repos.Users, auth, auditLog, log)
	tenants := service.NewTenantService(d.Repos.Tenants, d.Repos.Users, auth, res, auditLog, log)
	deviations := service.NewDeviationService(d.Repos.Deviations, d.Repos.Users, auditLog, log)
	checklists := service.NewChecklistService(d.Repos.Checklists, auditLog, log)
	maintenance := service.NewMaintenanceService(d.Repos.WorkOrders, auditLog, log)

	authH := handler.NewAuthHandler(auth, log)
	usersH := handler.NewUsersHandler(users, log)
	tenantsH := handler.NewTenantsHandler(tenants, log)
	deviationsH := handler.NewDeviationsHandler(deviations, log)
	checklistsH := handler.NewChecklistsHandler(checklists, log)
	maintenanceH := handler.NewMaintenanceHandler(maintenance, log)
	healthH := handler.NewHealthHandler(d.Probes, log)
	activityH := handler.NewActivityHandler(hub, cfg.CORSAllowedOrigins, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthH.Health)
	mux.HandleFunc("GET /readyz", healthH.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/auth/login", res.Middleware(http.HandlerFunc(authH.Login)))
	mux.Handle("POST /api/auth/register", res.Middleware(http.HandlerFunc(authH.Register)))
	mux.HandleFunc("GET /api/auth/me", authH.Me)
	mux.HandleFunc("POST /api/auth/change-password", authH.ChangePassword)

	mux.HandleFunc("GET /api/users", usersH.List)
	mux.HandleFunc("POST /api/users", usersH.Create)
	mux.HandleFunc("GET /api/users/{id}", usersH.Get)
	mux.HandleFunc("DELETE /api/users/{id}", usersH.Deactivate)

	mux.HandleFunc("GET /api/admin/tenants", tenantsH.List)
	mux.HandleFunc("POST /api/admin/tenants", tenantsH.Create)
	mux.HandleFunc("GET /api/admin/tenants/{id}", tenantsH.Get)
	mux.HandleFunc("PUT /api/admin/tenants/{id}/modules", tenantsH.SetModules)
	mux.HandleFunc("POST /api/admin/tenants/{id}/deactivate", tenantsH.Deactivate)
	mux.HandleFunc("DELETE /api/admin/tenants/{id}", tenantsH.Delete)

	mux.HandleFunc("GET /api/deviations", deviationsH.List)
	mux.HandleFunc("POST /api/deviations", deviationsH.Create)
	mux.HandleFunc("GET /api/deviations/{id}", deviationsH.Get)
	mux.HandleFunc("PATCH /api/deviations/{id}", deviationsH.Update)
	mux.HandleFunc("DELETE /api/deviations/{id}", deviationsH.Delete)
	mux.HandleFunc("GET /api/deviations/{id}/activity", deviationsH.Activity)

	mux.HandleFunc("GET /api/checklists", checklistsH.List)
	mux.HandleFunc("POST /api/checklists", checklistsH.Create)
	mux.HandleFunc("GET /api/checklists/{id}", checklistsH.Get)

	mux.HandleFunc("GET /api/maintenance/orders", maintenanceH.List)
	mux.HandleFunc("POST /api/maintenance/orders", maintenanceH.Create)

	mux.Handle("GET /ws/activity", activityH)

	g := gate.New(gate.Options{
		Tokens:   d.Tokens,
		Tenants:  d.Repos.Tenants,
		Resolver: res,
		Policies: Policies(),
		Resources: map[string]gate.ResourceChecker{
			"user":      d.Repos.Users,
			"deviation": d.Repos.Deviations,
			"checklist": d.Repos.Checklists,
		},
		Audit: auditLog,
	}, log)

	limiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)

	// request ID -> logging -> metrics -> CORS -> input checks -> gate -> tenant rate limit
	h := middleware.Chain(mux,
		requestid.Middleware,
		middleware.RequestLogging(log),
		metrics.HTTPMetricsMiddleware,
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.SanitizePath(log),
		middleware.ValidateJSONContentType(log),
		g.Middleware,
		middleware.RateLimit(limiter, log),
	)

	return &App{
		Handler:  otelhttp.NewHandler(h, "qualityhub"),
		Auth:     auth,
		Resolver: res,
		Audit:    auditLog,
		limiter:  limiter,
		throttle: throttle,
	}, nil
}

// SweepTasks are the periodic cleanups of in-memory state owned by the app.
func (a *App) SweepTasks() []worker.Task {
	return []worker.Task{
		{Name: "tenant_cache", Sweep: a.Resolver.Sweep},
		{Name: "login_throttle", Sweep: a.throttle.Sweep},
	}
}

// Close releases background resources.
func (a *App) Close() {
	a.limiter.Stop()
}
