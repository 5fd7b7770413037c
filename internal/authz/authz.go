// Package authz decides whether a caller may perform a mutating action.
// Read visibility is handled entirely by scope predicates; this package
// covers the write side: a per-action allow-set of roles plus the
// cross-boundary gate that stops admins and subadmins from assigning
// resources outside their own company or ship.
package authz

import (
	"errors"

	"crewdock.io/internal/scope"
)

// ErrForbidden is returned for every denied write. The reason (role gate,
// company boundary, ship boundary) is deliberately not disclosed.
var ErrForbidden = errors.New("forbidden")

// Action is a mutating operation class.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return "action"
}

// rule is one cell of the gate table. ownOnly restricts the role to rows
// it owns (crew editing their own incident reports).
type rule struct {
	ownOnly bool
}

type actionGates map[Action]map[scope.Role]rule

func anyAdmin() map[scope.Role]rule {
	return map[scope.Role]rule{
		scope.RoleSuperAdmin: {},
		scope.RoleAdmin:      {},
		scope.RoleSubAdmin:   {},
	}
}

func superOnly() map[scope.Role]rule {
	return map[scope.Role]rule{scope.RoleSuperAdmin: {}}
}

func superAndAdmin() map[scope.Role]rule {
	return map[scope.Role]rule{
		scope.RoleSuperAdmin: {},
		scope.RoleAdmin:      {},
	}
}

func withCrewOwn(base map[scope.Role]rule) map[scope.Role]rule {
	out := make(map[scope.Role]rule, len(base)+1)
	for role, r := range base {
		out[role] = r
	}
	out[scope.RoleCrew] = rule{ownOnly: true}
	return out
}

// gates is the full role×action×entity allow table. Adding a role or an
// entity is an edit here, not a new conditional elsewhere.
var gates = map[scope.Entity]actionGates{
	scope.EntityCompany: {
		ActionCreate: superOnly(),
		ActionUpdate: superAndAdmin(),
		ActionDelete: superOnly(),
	},
	scope.EntityShip: {
		ActionCreate: superAndAdmin(),
		ActionUpdate: anyAdmin(),
		ActionDelete: superAndAdmin(),
	},
	scope.EntityAccount: {
		ActionCreate: anyAdmin(),
		ActionUpdate: anyAdmin(),
		ActionDelete: superAndAdmin(),
	},
	scope.EntityCertificate: {
		ActionCreate: anyAdmin(),
		ActionUpdate: anyAdmin(),
		ActionDelete: anyAdmin(),
	},
	scope.EntityIncident: {
		ActionCreate: withCrewOwn(anyAdmin()),
		ActionUpdate: withCrewOwn(anyAdmin()),
		ActionDelete: withCrewOwn(anyAdmin()),
	},
	scope.EntityAssessment: {
		ActionCreate: anyAdmin(),
		ActionUpdate: anyAdmin(),
		ActionDelete: anyAdmin(),
	},
	scope.EntityActivityLog: {
		ActionCreate: anyAdmin(),
		ActionUpdate: superAndAdmin(),
		ActionDelete: superAndAdmin(),
	},
}

// CheckWrite evaluates the role gate and the cross-boundary gate for a
// mutating action. target carries the tenancy the write would result in:
// for creates the requested placement, for updates the requested target
// values (falling back to the row's current ones for unspecified fields),
// for deletes the existing row.
func CheckWrite(p scope.Principal, entity scope.Entity, action Action, target scope.Tenancy) error {
	byAction, ok := gates[entity]
	if !ok {
		return ErrForbidden
	}
	byRole, ok := byAction[action]
	if !ok {
		return ErrForbidden
	}
	r, ok := byRole[p.Role]
	if !ok {
		return ErrForbidden
	}
	if r.ownOnly && target.OwnerID != p.UserID {
		return ErrForbidden
	}
	return checkBoundary(p, entity, target)
}

// CheckRoleAssignment gates the role an account write hands out, whether
// on create or on a later promotion. A principal assigns only roles
// strictly below its own tier; superadmins assign any role.
func CheckRoleAssignment(p scope.Principal, assigned scope.Role) error {
	if p.Role == scope.RoleSuperAdmin {
		return nil
	}
	if assigned >= p.Role {
		return ErrForbidden
	}
	return nil
}

// checkBoundary compares the requested company/ship placement against the
// principal's own tenancy. The comparison is against the requested values,
// never the row's current ones: moving a resource out of scope is exactly
// what this gate exists to stop.
func checkBoundary(p scope.Principal, entity scope.Entity, target scope.Tenancy) error {
	switch p.Role {
	case scope.RoleSuperAdmin:
		return nil
	case scope.RoleAdmin:
		if target.CompanyID != p.CompanyID {
			return ErrForbidden
		}
		return nil
	default:
		if target.CompanyID != p.CompanyID {
			return ErrForbidden
		}
		// Company-level entities carry no ship placement to compare.
		if entity == scope.EntityCompany {
			return nil
		}
		if target.ShipID != "" && target.ShipID != p.ShipID {
			return ErrForbidden
		}
		return nil
	}
}
