package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/tenancy"
)

// Stage is one step of the pipeline. It either returns the context to hand
// to the next stage or an error that ends the request.
type Stage interface {
	Name() string
	Check(ctx context.Context, req *Request) (context.Context, error)
}

// tokenStage verifies the bearer token.
type tokenStage struct {
	tokens *token.Manager
}

func (tokenStage) Name() string { return "token" }

func (s tokenStage) Check(ctx context.Context, req *Request) (context.Context, error) {
	raw, err := token.FromHeader(req.HTTP.Header.Get("Authorization"))
	if err != nil {
		return ctx, err
	}
	v, err := s.tokens.Verify(raw)
	if err != nil {
		return ctx, err
	}
	req.verified = v
	return ctx, nil
}

// isolationStage binds the principal to its own tenant. On tenant-bound
// routes the tenant addressed by the Host must be the token's tenant.
type isolationStage struct {
	tenants  TenantLookup
	resolver HostResolver
}

func (isolationStage) Name() string { return "isolation" }

var errIsolation = &apperr.Error{Code: apperr.ETenantIsolation, Op: "gate.isolation", Msg: "forbidden"}

func (s isolationStage) Check(ctx context.Context, req *Request) (context.Context, error) {
	ctx, scope, err := tenancy.Bind(ctx, req.verified)
	if err != nil {
		return ctx, err
	}
	t, err := s.tenants.GetByID(ctx, scope.TenantID())
	if errors.Is(err, apperr.ErrNotFound) {
		return ctx, errIsolation
	}
	if err != nil {
		return ctx, err
	}
	if !t.IsActive {
		return ctx, errIsolation
	}

	if req.Policy.TenantBound && s.resolver != nil {
		hostTenant, err := s.resolver.Resolve(ctx, req.HTTP.Host)
		if err != nil || hostTenant.ID != scope.TenantID() {
			return ctx, errIsolation
		}
	}

	req.Scope = scope
	req.Tenant = t
	return tenancy.WithTenant(ctx, t), nil
}

// ownershipStage confirms that a referenced resource lives in the
// requester's tenant. A foreign id and an absent id produce the same error.
// Requests the role or module stage will reject skip the lookup, so the
// denial names the role or module and reveals nothing about the id.
type ownershipStage struct {
	resources map[string]ResourceChecker
}

func (ownershipStage) Name() string { return "ownership" }

func (s ownershipStage) Check(ctx context.Context, req *Request) (context.Context, error) {
	if req.Policy.Resource == "" {
		return ctx, nil
	}
	if !req.Scope.Role().AnyOf(req.Policy.Roles...) {
		return ctx, nil
	}
	if req.Policy.Module != "" && !req.Tenant.HasModule(req.Policy.Module) {
		return ctx, nil
	}
	seg, ok := resourceSegment(req.Policy.Prefix, req.HTTP.URL.Path)
	if !ok {
		return ctx, nil
	}
	notFound := apperr.NotFound("gate.ownership", req.Policy.Resource+" not found")
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil || id <= 0 {
		return ctx, notFound
	}
	checker, ok := s.resources[req.Policy.Resource]
	if !ok {
		return ctx, apperr.Internal("gate.ownership", fmt.Errorf("no checker for resource %q", req.Policy.Resource))
	}
	exists, err := checker.Exists(ctx, req.Scope, id)
	if err != nil {
		return ctx, err
	}
	if !exists {
		return ctx, notFound
	}
	req.ResourceID = id
	return ctx, nil
}

// resourceSegment returns the path segment right after prefix, if any.
func resourceSegment(prefix, path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimPrefix(rest, "/")
	seg, _, _ := strings.Cut(rest, "/")
	return seg, seg != ""
}

// roleStage rejects principals outside the policy's roles.
type roleStage struct{}

func (roleStage) Name() string { return "role" }

func (roleStage) Check(ctx context.Context, req *Request) (context.Context, error) {
	if req.Scope.Role().AnyOf(req.Policy.Roles...) {
		return ctx, nil
	}
	names := make([]string, len(req.Policy.Roles))
	for i, r := range req.Policy.Roles {
		names[i] = string(r)
	}
	return ctx, &apperr.Error{
		Code: apperr.EInsufficientRole,
		Op:   "gate.role",
		Msg:  "requires role " + strings.Join(names, " or "),
	}
}

// moduleStage rejects requests for modules the tenant has not enabled.
type moduleStage struct{}

func (moduleStage) Name() string { return "module" }

func (moduleStage) Check(ctx context.Context, req *Request) (context.Context, error) {
	if req.Policy.Module == "" || req.Tenant.HasModule(req.Policy.Module) {
		return ctx, nil
	}
	return ctx, &apperr.Error{
		Code: apperr.EModuleNotEnabled,
		Op:   "gate.module",
		Msg:  fmt.Sprintf("module %q is not enabled for this tenant", req.Policy.Module),
	}
}

// defaultStages is the fixed pipeline order.
func defaultStages(tokens *token.Manager, tenants TenantLookup, resolver HostResolver, resources map[string]ResourceChecker) []Stage {
	return []Stage{
		tokenStage{tokens: tokens},
		isolationStage{tenants: tenants, resolver: resolver},
		ownershipStage{resources: resources},
		roleStage{},
		moduleStage{},
	}
}
