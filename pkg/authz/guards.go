package authz

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Mode selects what a tenant guard does on denial
type Mode int

const (
	// ModeSoft lets a denied request through with authorizationChecked=false
	ModeSoft Mode = iota
	// ModeHard rejects a denied request with 403
	ModeHard
)

// Path variables a tenant guard reads, teams first
const (
	TeamIDVar = "teamId"
	OrgIDVar  = "orgId"
)

// Guard builds HTTP middleware around an Engine
type Guard struct {
	engine *Engine
	logger logrus.FieldLogger
	audit  audit.Logger
}

// NewGuard creates guards for engine
func NewGuard(engine *Engine, logger logrus.FieldLogger) *Guard {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Guard{engine: engine, logger: logger, audit: audit.Nop()}
}

// WithAudit records rejected requests to sink
func (g *Guard) WithAudit(sink audit.Logger) *Guard {
	if sink != nil {
		g.audit = sink
	}
	return g
}

// TenantPermissions checks the permissions op requires within the team or
// organization named by the route. The outcome is recorded in the request
// context, readable with contextkeys.AuthorizationChecked.
func (g *Guard) TenantPermissions(op OperationID, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := contextkeys.WithAuthorizationChecked(r.Context())

			principal, ok := auth.PrincipalFromContext(ctx)
			if !ok {
				WriteError(w, Unauthenticated("authentication required"))
				return
			}

			tenant, err := tenantFromRequest(r)
			if err != nil {
				WriteError(w, err)
				return
			}

			check := TenantCheck{
				Principal:   principal,
				Tenant:      tenant,
				Permissions: g.engine.Registry().Lookup(op).Permissions,
			}

			var decision Decision
			if mode == ModeHard {
				decision, err = g.engine.Require(ctx, check)
			} else {
				decision, err = g.engine.Decide(ctx, check)
			}
			if err != nil {
				g.fail(w, r, op, err)
				return
			}

			contextkeys.SetAuthorizationChecked(ctx, decision.Checked)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Scopes performs the wire-level principal check for op
func (g *Guard) Scopes(op OperationID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.PrincipalFromContext(r.Context())
			if err := g.engine.AuthorizeRequest(r.Context(), AccessCheck{Principal: principal, Operation: op}); err != nil {
				g.fail(w, r, op, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) fail(w http.ResponseWriter, r *http.Request, op OperationID, err error) {
	logger := observability.FromContext(r.Context(), g.logger).WithField("operation", op)
	if ae, ok := AsError(err); ok {
		logger.WithField("code", ae.Code()).Info(ae.Message)
		if denial(ae) {
			g.recordDenial(r, op, ae)
		}
	} else {
		logger.WithError(err).Error("authorization check failed")
	}
	WriteError(w, err)
}

// tenantFromRequest reads the tenant from route variables. It returns
// (nil, nil) when the route names no tenant.
func tenantFromRequest(r *http.Request) (*Tenant, error) {
	for _, v := range []struct {
		name string
		kind TenantKind
	}{{TeamIDVar, TenantTeam}, {OrgIDVar, TenantOrganization}} {
		id, ok, err := httputil.ParsePathInt64(r, v.name)
		if err != nil {
			return nil, BadRequest(err.Error())
		}
		if ok {
			return &Tenant{Kind: v.kind, ID: id}, nil
		}
	}
	return nil, nil
}

// denial reports whether e rejects an identified principal
func denial(e *Error) bool {
	switch e.Kind {
	case KindForbidden, KindInsufficientScope, KindUnauthorizedClient:
		return true
	}
	return false
}

func (g *Guard) recordDenial(r *http.Request, op OperationID, e *Error) {
	ctx := r.Context()
	event := audit.NewEvent(ctx, audit.EventTypeAccessDenied, audit.EventStatusDenied)
	event.Operation = string(op)
	event.Method = r.Method
	event.Path = r.URL.Path
	event.Message = e.Message
	event.Metadata = map[string]string{"code": e.Code()}

	if p, ok := auth.PrincipalFromContext(ctx); ok {
		event.Subject = p.Subject()
		if id, ok := auth.UserID(p); ok {
			event.UserID = &id
		}
	}
	if tenant, err := tenantFromRequest(r); err == nil && tenant != nil {
		event.Target = tenant.String()
	}

	audit.Record(ctx, g.audit, observability.FromContext(ctx, g.logger), event)
}
