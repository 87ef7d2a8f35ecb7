package auth

import (
	"context"
	"slices"
)

// Roles and principal types as issued by the session service.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	TypeUser     = "user"
	TypeService  = "service"
	TypeInternal = "internal"
)

// ScopeBypassStock lets an API key create orders without stock validation.
const ScopeBypassStock = "orders:bypass-stock"

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string
	Role    string
	Type    string
	Scopes  []string
}

// IsAdmin reports whether the principal is an administrative user.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin && p.Type == TypeUser
}

// Capabilities is the set of policy decisions derived once per request from a
// principal and handed to domain services.
type Capabilities struct {
	// BypassStock skips stock validation. Reservation still happens.
	BypassStock bool
	// ManageOrders allows status changes and admin reports.
	ManageOrders bool
}

// CapabilitiesFor derives the capabilities of a principal. Only an admin user
// or a trusted internal key carrying ScopeBypassStock may bypass stock.
func CapabilitiesFor(p Principal) Capabilities {
	internal := p.Type == TypeInternal && slices.Contains(p.Scopes, ScopeBypassStock)
	return Capabilities{
		BypassStock:  p.IsAdmin() || internal,
		ManageOrders: p.IsAdmin(),
	}
}

type principalKey struct{}

// WithPrincipal stores p in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
