package rbac

type Role string
type Action string

const (
	RoleCustomer Role = "customer"
	RoleEngineer Role = "engineer"
	RoleOffice   Role = "office"
	RoleAdmin    Role = "admin"
)

const (
	// ActionOps covers the operations dashboard surfaces: attention,
	// job health flags, engineer activity and map pins.
	ActionOps      Action = "ops"
	ActionTimeline Action = "timeline"
	ActionSearch   Action = "search"
	ActionPortal   Action = "portal"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOffice:
		return action == ActionOps || action == ActionTimeline || action == ActionSearch
	case RoleEngineer:
		return action == ActionTimeline || action == ActionSearch
	case RoleCustomer:
		return action == ActionPortal
	default:
		return false
	}
}

// PathPrefix is the link namespace every href handed to a caller must live
// under. Office staff share the admin surface.
func PathPrefix(role Role) string {
	switch role {
	case RoleAdmin, RoleOffice:
		return "/admin"
	case RoleEngineer:
		return "/engineer"
	case RoleCustomer:
		return "/portal"
	default:
		return "/portal"
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleCustomer, RoleEngineer, RoleOffice, RoleAdmin:
		return Role(role)
	default:
		return RoleCustomer
	}
}
