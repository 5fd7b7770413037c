package scope

// Field names a tenancy attribute of a row. The storage layer maps each
// field onto the concrete column of the relation being filtered.
type Field int

const (
	FieldCompany Field = iota
	FieldShip
	FieldOwner
	FieldShipOnly
	FieldPublished
)

// Tenancy is the filter-key view of a single row. Services use it to
// evaluate predicates in memory; the storage layer never sees it.
type Tenancy struct {
	CompanyID string
	ShipID    string
	OwnerID   string
	ShipOnly  bool
	Published bool
}

func (t Tenancy) field(f Field) (string, bool) {
	switch f {
	case FieldCompany:
		return t.CompanyID, false
	case FieldShip:
		return t.ShipID, false
	case FieldOwner:
		return t.OwnerID, false
	case FieldShipOnly:
		return "", t.ShipOnly
	case FieldPublished:
		return "", t.Published
	}
	return "", false
}

// Predicate is a composable row filter. It evaluates in memory via Matches
// and compiles to a parameterized WHERE clause in the storage layer.
type Predicate interface {
	Matches(t Tenancy) bool
}

// All admits every row.
type All struct{}

func (All) Matches(Tenancy) bool { return true }

// None rejects every row.
type None struct{}

func (None) Matches(Tenancy) bool { return false }

// Eq requires a string tenancy field to equal a value.
type Eq struct {
	Field Field
	Value string
}

func (e Eq) Matches(t Tenancy) bool {
	v, _ := t.field(e.Field)
	return v == e.Value
}

// Flag requires a boolean tenancy field to hold a value.
type Flag struct {
	Field Field
	Value bool
}

func (f Flag) Matches(t Tenancy) bool {
	_, b := t.field(f.Field)
	return b == f.Value
}

// And is satisfied when every child predicate is satisfied.
type And []Predicate

func (a And) Matches(t Tenancy) bool {
	for _, p := range a {
		if !p.Matches(t) {
			return false
		}
	}
	return true
}

// Or is satisfied when at least one child predicate is satisfied.
type Or []Predicate

func (o Or) Matches(t Tenancy) bool {
	for _, p := range o {
		if p.Matches(t) {
			return true
		}
	}
	return false
}
