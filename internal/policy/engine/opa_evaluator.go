package engine

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed rego/authz.rego
var authzPolicy string

const (
	roleQuery       = "data.storefront.authz.role_allowed"
	transitionQuery = "data.storefront.authz.transition_allowed"
)

// OPAEvaluator evaluates the embedded authz policy. Queries are prepared once.
type OPAEvaluator struct {
	role       rego.PreparedEvalQuery
	transition rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the embedded policy and prepares both queries.
func NewOPAEvaluator(ctx context.Context) (*OPAEvaluator, error) {
	role, err := prepare(ctx, roleQuery)
	if err != nil {
		return nil, err
	}
	transition, err := prepare(ctx, transitionQuery)
	if err != nil {
		return nil, err
	}
	return &OPAEvaluator{role: role, transition: transition}, nil
}

func prepare(ctx context.Context, query string) (rego.PreparedEvalQuery, error) {
	pq, err := rego.New(
		rego.Query(query),
		rego.Module("authz.rego", authzPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("prepare %s: %w", query, err)
	}
	return pq, nil
}

// RoleAllowed reports whether role is one of allowed.
func (e *OPAEvaluator) RoleAllowed(ctx context.Context, role string, allowed []string) (bool, error) {
	return e.eval(ctx, e.role, map[string]interface{}{
		"role":  role,
		"roles": allowed,
	})
}

// TransitionAllowed reports whether actorRole may move a booking from one status to another.
func (e *OPAEvaluator) TransitionAllowed(ctx context.Context, actorRole, from, to string) (bool, error) {
	return e.eval(ctx, e.transition, map[string]interface{}{
		"actor_role": actorRole,
		"from":       from,
		"to":         to,
	})
}

// HealthCheck evaluates a known-good input against the prepared policy.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.TransitionAllowed(ctx, "ADMIN", "NEW", "CONFIRMED")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("policy returned an unexpected decision")
	}
	return nil
}

func (e *OPAEvaluator) eval(ctx context.Context, pq rego.PreparedEvalQuery, input map[string]interface{}) (bool, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	return ok && v, nil
}
