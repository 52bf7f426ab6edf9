package authz

// Role is an enumerated account role.
type Role string

// Account roles.
const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleClient     Role = "client"
)

// Capability is a named permission grantable to a role.
type Capability string

// Capabilities consulted by pages and middleware.
const (
	CapViewAllStats    Capability = "view_all_stats"
	CapViewRevenue     Capability = "view_revenue"
	CapViewInvoices    Capability = "view_invoices"
	CapViewOwnStats    Capability = "view_own_stats"
	CapViewOwnInvoices Capability = "view_own_invoices"
	CapManageUsers     Capability = "manage_users"
	CapManageClients   Capability = "manage_clients"
	CapManageInvoices  Capability = "manage_invoices"
)

// policy is the static role to capability mapping. A role absent from the
// table has no capabilities.
var policy = map[Role]map[Capability]struct{}{
	RoleAdmin: capSet(
		CapViewAllStats, CapViewRevenue, CapViewInvoices,
		CapManageUsers, CapManageClients, CapManageInvoices,
	),
	RoleAccountant: capSet(
		CapViewAllStats, CapViewRevenue, CapViewInvoices,
		CapManageClients, CapManageInvoices,
	),
	RoleClient: capSet(
		CapViewOwnStats, CapViewOwnInvoices,
	),
}

func capSet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// HasPermission reports whether the role is granted the capability.
// Unknown roles have no capabilities.
func HasPermission(role Role, cap Capability) bool {
	caps, ok := policy[role]
	if !ok {
		return false
	}
	_, ok = caps[cap]
	return ok
}

// ParseRole validates a raw role string against the enumerated set.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleAdmin, RoleAccountant, RoleClient:
		return Role(raw), true
	}
	return "", false
}

// Roles lists all valid roles, for form dropdowns.
func Roles() []Role {
	return []Role{RoleAdmin, RoleAccountant, RoleClient}
}
