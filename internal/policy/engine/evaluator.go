// Package engine evaluates the storefront authorization policy with OPA Rego.
package engine

import "context"

// Authorizer answers role and booking-transition questions. Implementations fail
// closed: an evaluation error is reported and the decision is false.
type Authorizer interface {
	RoleAllowed(ctx context.Context, role string, allowed []string) (bool, error)
	TransitionAllowed(ctx context.Context, actorRole, from, to string) (bool, error)
}
