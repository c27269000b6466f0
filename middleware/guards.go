package middleware

import (
	"fmt"
	"net/http"
	"strings"

	gerrors "github.com/openchami/tokengate/pkg/errors"
	"github.com/openchami/tokengate/pkg/metrics"
	"github.com/openchami/tokengate/pkg/policy"
	"github.com/openchami/tokengate/pkg/token"
)

const msgAuthenticationRequired = "Authentication required"

// RouteAuthorizer decides whether any of the grants may call method on path.
// *policy.RouteEnforcer satisfies it.
type RouteAuthorizer interface {
	Enforce(grants *policy.GrantSet, path, method string) (bool, string, error)
}

// Guard builds route guards that share a metrics recorder and decision logger.
type Guard struct {
	metrics metrics.Recorder
	logger  *policy.DecisionLogger
}

// NewGuard creates a guard factory. A nil recorder disables metrics.
func NewGuard(m metrics.Recorder) *Guard {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Guard{metrics: m, logger: policy.NewDecisionLogger()}
}

var defaultGuard = NewGuard(nil)

// Require guards a route with a permission/role requirement.
func Require(req policy.Requirement) func(http.Handler) http.Handler {
	return defaultGuard.Require(req)
}

// RequireAuthLevel guards a route with a minimum assurance level.
func RequireAuthLevel(min token.AuthLevel) func(http.Handler) http.Handler {
	return defaultGuard.RequireAuthLevel(min)
}

// RequireIdentityProvider guards a route with an identity provider allow-list.
func RequireIdentityProvider(idps ...string) func(http.Handler) http.Handler {
	return defaultGuard.RequireIdentityProvider(idps...)
}

// RequirePolicy guards a route with a casbin route policy.
func RequirePolicy(authorizer RouteAuthorizer) func(http.Handler) http.Handler {
	return defaultGuard.RequirePolicy(authorizer)
}

// Require writes 401 when the request is anonymous and 403 when its grants do not satisfy req.
func (g *Guard) Require(req policy.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := GetIdentityFromContext(r.Context())
			var grants *policy.GrantSet
			subject := ""
			if identity != nil {
				grants, subject = identity.Grants, identity.Subject
			}

			decision := policy.Decide(req, grants)
			g.record("permission", subject, r, req, decision)

			switch decision.Outcome {
			case policy.Allow:
				next.ServeHTTP(w, r)
			case policy.Unauthorized:
				gerrors.WriteStatus(w, r, http.StatusUnauthorized, msgAuthenticationRequired)
			default:
				gerrors.WriteStatus(w, r, http.StatusForbidden, "Access denied: "+decision.Reason)
			}
		})
	}
}

// RequireAuthLevel writes 401 when anonymous and 403 when the token's auth_level ranks below min.
func (g *Guard) RequireAuthLevel(min token.AuthLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentityFromContext(r.Context())
			if !ok {
				g.metrics.RecordDecision("auth_level", metrics.DecisionUnauthorized)
				gerrors.WriteStatus(w, r, http.StatusUnauthorized, msgAuthenticationRequired)
				return
			}

			have := identity.Claims.AuthLevel()
			if !have.Meets(min) {
				g.metrics.RecordDecision("auth_level", metrics.DecisionForbidden)
				gerrors.WriteStatus(w, r, http.StatusForbidden,
					fmt.Sprintf("Access denied: requires auth level %s or higher, token has %s", min, have))
				return
			}

			g.metrics.RecordDecision("auth_level", metrics.DecisionAllow)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentityProvider writes 401 when anonymous and 403 when the token's idp is not listed.
func (g *Guard) RequireIdentityProvider(idps ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(idps))
	for _, idp := range idps {
		allowed[idp] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentityFromContext(r.Context())
			if !ok {
				g.metrics.RecordDecision("identity_provider", metrics.DecisionUnauthorized)
				gerrors.WriteStatus(w, r, http.StatusUnauthorized, msgAuthenticationRequired)
				return
			}

			idp := identity.Claims.IdentityProvider()
			if !allowed[idp] {
				g.metrics.RecordDecision("identity_provider", metrics.DecisionForbidden)
				gerrors.WriteStatus(w, r, http.StatusForbidden,
					fmt.Sprintf("Access denied: identity provider '%s' not allowed, requires one of [%s]", idp, strings.Join(idps, ", ")))
				return
			}

			g.metrics.RecordDecision("identity_provider", metrics.DecisionAllow)
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePolicy writes 401 when anonymous and 403 when no grant of the identity is allowed the
// request's method on its path.
func (g *Guard) RequirePolicy(authorizer RouteAuthorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentityFromContext(r.Context())
			if !ok {
				g.metrics.RecordDecision("route_policy", metrics.DecisionUnauthorized)
				gerrors.WriteStatus(w, r, http.StatusUnauthorized, msgAuthenticationRequired)
				return
			}

			allowed, _, err := authorizer.Enforce(identity.Grants, r.URL.Path, r.Method)
			if err != nil {
				gerrors.WriteError(w, r, gerrors.Wrap(err, gerrors.ErrCodePolicyEvaluation, "failed to evaluate route policy"))
				return
			}
			if !allowed {
				g.metrics.RecordDecision("route_policy", metrics.DecisionForbidden)
				gerrors.WriteStatus(w, r, http.StatusForbidden,
					fmt.Sprintf("Access denied: subject '%s' not allowed '%s' for resource(s) '%s'", identity.Subject, r.Method, r.URL.Path))
				return
			}

			g.metrics.RecordDecision("route_policy", metrics.DecisionAllow)
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) record(guard, subject string, r *http.Request, req policy.Requirement, decision policy.Decision) {
	g.metrics.RecordDecision(guard, decision.Outcome.String())
	g.logger.LogDecision(guard, subject, r.URL.Path, req, decision)
}
