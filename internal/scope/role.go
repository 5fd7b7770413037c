package scope

import (
	"fmt"
	"strings"
)

// Role is the four-tier access level attached to every account. The
// constants order by privilege; tier comparisons rely on this order.
type Role int

const (
	RoleCrew Role = iota
	RoleSubAdmin
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleCrew:       "crew",
	RoleSubAdmin:   "subadmin",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "superadmin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole maps a stored role string onto the tagged type. Input is
// normalized the same way status strings are: trimmed and lower-cased.
func ParseRole(s string) (Role, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "crew":
		return RoleCrew, nil
	case "subadmin", "sub-admin":
		return RoleSubAdmin, nil
	case "admin":
		return RoleAdmin, nil
	case "superadmin", "super-admin":
		return RoleSuperAdmin, nil
	default:
		return RoleCrew, fmt.Errorf("unknown role %q", s)
	}
}

// Administrative reports whether the role authenticates regardless of
// onboard status. Only crew accounts are tied to the onboard gate.
func (r Role) Administrative() bool {
	return r != RoleCrew
}

// Principal carries the authenticated caller's identity and tenancy claims.
// Admins always have a company; subadmins and crew have a company and,
// except for company-level virtual users, a ship. Superadmins may carry
// neither.
type Principal struct {
	UserID    string
	Role      Role
	CompanyID string
	ShipID    string
}
