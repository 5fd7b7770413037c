package scope

// Entity identifies the kind of row a predicate filters.
type Entity int

const (
	EntityCompany Entity = iota
	EntityShip
	EntityAccount
	EntityCertificate
	EntityIncident
	EntityAssessment
	EntityActivityLog
)

var entityNames = map[Entity]string{
	EntityCompany:     "company",
	EntityShip:        "ship",
	EntityAccount:     "account",
	EntityCertificate: "certificate",
	EntityIncident:    "incident",
	EntityAssessment:  "assessment",
	EntityActivityLog: "activity_log",
}

func (e Entity) String() string {
	if name, ok := entityNames[e]; ok {
		return name
	}
	return "entity"
}

// Resolve maps a principal onto the row filter it is entitled to for the
// given entity kind. The same predicate backs list, get, and the row
// location step of every mutation.
//
// Superadmins are unrestricted. Admins see their company. Subadmins see
// their company and ship. Crew see rows they own, with two widenings:
// incidents they reported, incidents on their ship, and company-wide
// incidents not marked ship-only; and assessments only once published.
func Resolve(p Principal, entity Entity) Predicate {
	if p.Role == RoleSuperAdmin {
		return All{}
	}

	company := Eq{Field: FieldCompany, Value: p.CompanyID}
	ship := Eq{Field: FieldShip, Value: p.ShipID}
	owner := Eq{Field: FieldOwner, Value: p.UserID}

	switch p.Role {
	case RoleAdmin:
		return company
	case RoleSubAdmin:
		if entity == EntityCompany {
			return company
		}
		return And{company, ship}
	case RoleCrew:
		switch entity {
		case EntityCompany:
			return company
		case EntityShip:
			return And{company, ship}
		case EntityIncident:
			return Or{
				owner,
				And{company, ship},
				And{company, Flag{Field: FieldShipOnly, Value: false}},
			}
		case EntityAssessment:
			return And{owner, Flag{Field: FieldPublished, Value: true}}
		default:
			// accounts, certificates, activity logs: own rows only
			return owner
		}
	}
	return None{}
}
