package authz

import "context"

// Principal describes the authenticated actor for the current request.
type Principal struct {
	ID       int64
	FullName string
	Email    string
	Role     Role
}

// Can reports whether the principal holds the capability.
func (p *Principal) Can(cap Capability) bool {
	if p == nil {
		return false
	}
	return HasPermission(p.Role, cap)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
