package policy

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

// DefaultRouteModel matches a grant against a path pattern and method.
// Paths use keyMatch2 so "/api/v1/cacheServices/*" and "/items/:id" both work; "*" as act allows any method.
const DefaultRouteModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// RouteEnforcer authorizes (grant, path, method) triples with a casbin enforcer.
type RouteEnforcer struct {
	enforcer *casbin.Enforcer
}

// NewRouteEnforcer loads a casbin model and policy file. An empty modelPath uses DefaultRouteModel.
func NewRouteEnforcer(modelPath, policyPath string) (*RouteEnforcer, error) {
	if policyPath == "" {
		return nil, fmt.Errorf("policy file path cannot be empty")
	}

	var (
		m   model.Model
		err error
	)
	if modelPath == "" {
		m, err = model.NewModelFromString(DefaultRouteModel)
	} else {
		m, err = model.NewModelFromFile(modelPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	return &RouteEnforcer{enforcer: e}, nil
}

// NewRouteEnforcerFromRules builds an enforcer on DefaultRouteModel from in-memory rules,
// each rule being {grant, path, method}.
func NewRouteEnforcerFromRules(rules [][]string) (*RouteEnforcer, error) {
	m, err := model.NewModelFromString(DefaultRouteModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	if len(rules) > 0 {
		if _, err := e.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("failed to add policies: %w", err)
		}
	}
	return &RouteEnforcer{enforcer: e}, nil
}

// Enforce reports whether any grant is allowed to perform method on path, and which grant matched.
func (re *RouteEnforcer) Enforce(grants *GrantSet, path, method string) (bool, string, error) {
	for _, grant := range grants.Slice() {
		ok, err := re.enforcer.Enforce(grant, path, method)
		if err != nil {
			return false, "", fmt.Errorf("failed to enforce policy: %w", err)
		}
		if ok {
			return true, grant, nil
		}
	}
	return false, "", nil
}

// Reload re-reads the policy from its adapter.
func (re *RouteEnforcer) Reload() error {
	return re.enforcer.LoadPolicy()
}
