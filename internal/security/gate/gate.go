// Package gate is the authorization pipeline every protected request passes
// before reaching a handler.
//
// Policies are matched by longest path prefix. Public policies skip the
// pipeline entirely. Everything else runs the stages in order: token,
// tenant isolation, resource ownership, role, module. The first failing
// stage ends the request.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/observability/metrics"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

const maxRewriteBody = 1 << 20

// Policy describes what a path prefix requires.
type Policy struct {
	Prefix string
	// Public routes skip every stage.
	Public bool
	// TenantBound routes require the Host's tenant to equal the token's.
	TenantBound bool
	// Roles lists the minimum roles admitted; empty admits any role.
	Roles []domain.Role
	// Module is the optional feature area the route belongs to.
	Module domain.Module
	// Resource names the ResourceChecker for ids following Prefix.
	Resource string
}

// TenantLookup loads the requester's tenant by id.
type TenantLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Tenant, error)
}

// HostResolver resolves the tenant addressed by a Host header.
type HostResolver interface {
	Resolve(ctx context.Context, host string) (*domain.Tenant, error)
}

// ResourceChecker reports whether id exists inside the scope's tenant.
type ResourceChecker interface {
	Exists(ctx context.Context, scope tenancy.Scope, id int64) (bool, error)
}

// Request is the state threaded through the stages.
type Request struct {
	HTTP       *http.Request
	Policy     Policy
	Scope      tenancy.Scope
	Tenant     *domain.Tenant
	ResourceID int64

	verified token.Verified
}

// Options configures a Gate.
type Options struct {
	Tokens    *token.Manager
	Tenants   TenantLookup
	Resolver  HostResolver
	Policies  []Policy
	Resources map[string]ResourceChecker
	Audit     *audit.Logger
	// Stages replaces the default pipeline. Tests only.
	Stages []Stage
}

// Gate runs the authorization pipeline.
type Gate struct {
	policies []Policy
	stages   []Stage
	audit    *audit.Logger
	tracer   trace.Tracer
	logger   *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	policies := append([]Policy(nil), opts.Policies...)
	sort.SliceStable(policies, func(i, j int) bool {
		return len(policies[i].Prefix) > len(policies[j].Prefix)
	})
	stages := opts.Stages
	if stages == nil {
		stages = defaultStages(opts.Tokens, opts.Tenants, opts.Resolver, opts.Resources)
	}
	return &Gate{
		policies: policies,
		stages:   stages,
		audit:    opts.Audit,
		tracer:   otel.Tracer("qualityhub/gate"),
		logger:   logger,
	}
}

// Match returns the policy for path. A prefix matches the path itself and
// anything below it. Unmatched paths need only a valid token.
func (g *Gate) Match(path string) Policy {
	for _, p := range g.policies {
		if path == p.Prefix || strings.HasPrefix(path, strings.TrimSuffix(p.Prefix, "/")+"/") {
			return p
		}
	}
	return Policy{Prefix: path}
}

// Authorize runs the stages for r and returns the context to serve it with.
func (g *Gate) Authorize(r *http.Request, policy Policy) (context.Context, *Request, error) {
	req := &Request{HTTP: r, Policy: policy}
	ctx := r.Context()
	for _, stage := range g.stages {
		next, err := g.run(ctx, stage, req)
		if err != nil {
			metrics.ObserveGateDecision(stage.Name(), "deny")
			var userID int64
			if req.Scope.Valid() {
				userID = req.Scope.UserID()
			}
			g.audit.LogDenied(ctx, req.Scope.TenantID(), userID, stage.Name(), r.URL.Path, apperr.Code(err))
			g.logger.Info("request denied",
				slog.String("stage", stage.Name()),
				slog.String("path", r.URL.Path),
				slog.String("code", apperr.Code(err)),
			)
			return ctx, req, err
		}
		ctx = next
	}
	metrics.ObserveGateDecision("all", "allow")
	return ctx, req, nil
}

func (g *Gate) run(ctx context.Context, stage Stage, req *Request) (context.Context, error) {
	spanCtx, span := g.tracer.Start(ctx, "gate."+stage.Name(),
		trace.WithAttributes(attribute.String("http.route_prefix", req.Policy.Prefix)))
	defer span.End()

	next, err := stage.Check(spanCtx, req)
	if err != nil {
		span.SetStatus(codes.Error, apperr.Code(err))
		return ctx, err
	}
	// Keep values added by the stage, but not its span.
	return trace.ContextWithSpan(next, trace.SpanFromContext(ctx)), nil
}

// Middleware wraps next with the pipeline.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy := g.Match(r.URL.Path)
		if policy.Public {
			next.ServeHTTP(w, r)
			return
		}
		ctx, req, err := g.Authorize(r, policy)
		if err != nil {
			apperr.WriteJSON(w, g.logger, err)
			return
		}
		r = r.WithContext(ctx)
		if err := g.correctTenantID(r, req.Scope); err != nil {
			apperr.WriteJSON(w, g.logger, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// correctTenantID overwrites a top-level "tenantId" in a JSON object body
// with the scope's tenant. The client is never told.
func (g *Gate) correctTenantID(r *http.Request, scope tenancy.Scope) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRewriteBody+1))
	_ = r.Body.Close()
	if err != nil {
		return apperr.Invalid("gate.body", "unreadable request body")
	}
	if len(body) > maxRewriteBody {
		return apperr.Invalid("gate.body", "request body too large")
	}

	out, supplied, changed := rewriteTenantID(body, scope.TenantID())
	if changed {
		metrics.IncTenantOverride()
		g.audit.LogTenantOverride(r.Context(), scope.TenantID(), scope.UserID(), r.URL.Path, supplied)
		g.logger.Warn("client supplied tenantId corrected",
			slog.Int64("tenant_id", scope.TenantID()),
			slog.Int64("user_id", scope.UserID()),
			slog.String("path", r.URL.Path),
		)
	}
	r.Body = io.NopCloser(bytes.NewReader(out))
	r.ContentLength = int64(len(out))
	return nil
}

// rewriteTenantID returns body with tenantId set to tenantID. Bodies that are
// not JSON objects, or that carry no tenantId, are returned unchanged.
func rewriteTenantID(body []byte, tenantID int64) (out []byte, supplied any, changed bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body, nil, false
	}
	raw, ok := obj["tenantId"]
	if !ok {
		return body, nil, false
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if v, err := n.Int64(); err == nil && v == tenantID {
			return body, nil, false
		}
	}
	_ = json.Unmarshal(raw, &supplied)

	obj["tenantId"], _ = json.Marshal(tenantID)
	rewritten, err := json.Marshal(obj)
	if err != nil {
		return body, nil, false
	}
	return rewritten, supplied, true
}
