package pg

import (
	"testing"

	"crewdock.io/internal/scope"
)

func TestCompilePredicateLeaves(t *testing.T) {
	clause, args, err := compilePredicate(scope.All{}, accountColumns, 0)
	if err != nil || clause != "true" || len(args) != 0 {
		t.Fatalf("All: %q %v %v", clause, args, err)
	}
	clause, args, err = compilePredicate(scope.None{}, accountColumns, 0)
	if err != nil || clause != "false" || len(args) != 0 {
		t.Fatalf("None: %q %v %v", clause, args, err)
	}
	clause, args, err = compilePredicate(scope.Eq{Field: scope.FieldCompany, Value: "c1"}, accountColumns, 0)
	if err != nil {
		t.Fatal(err)
	}
	if clause != "company_id = $1" || len(args) != 1 || args[0] != "c1" {
		t.Fatalf("Eq: %q %v", clause, args)
	}
}

func TestCompilePredicateOffset(t *testing.T) {
	clause, args, err := compilePredicate(scope.Eq{Field: scope.FieldShip, Value: "s1"}, accountColumns, 2)
	if err != nil {
		t.Fatal(err)
	}
	if clause != "ship_id = $3" || len(args) != 1 {
		t.Fatalf("offset not applied: %q %v", clause, args)
	}
}

func TestCompilePredicateConjunction(t *testing.T) {
	p := scope.And{
		scope.Eq{Field: scope.FieldCompany, Value: "c1"},
		scope.Eq{Field: scope.FieldShip, Value: "s1"},
	}
	clause, args, err := compilePredicate(p, shipColumns, 0)
	if err != nil {
		t.Fatal(err)
	}
	if clause != "(company_id = $1 and id = $2)" {
		t.Fatalf("unexpected clause %q", clause)
	}
	if len(args) != 2 || args[0] != "c1" || args[1] != "s1" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestCompileCrewIncidentWidening(t *testing.T) {
	p := scope.Resolve(scope.Principal{
		UserID: "u1", Role: scope.RoleCrew, CompanyID: "c1", ShipID: "s1",
	}, scope.EntityIncident)
	clause, args, err := compilePredicate(p, incidentColumns, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := "(reporter_id = $1 or (company_id = $2 and ship_id = $3) or (company_id = $4 and visible_to_ship_only = $5))"
	if clause != want {
		t.Fatalf("clause mismatch:\n got %q\nwant %q", clause, want)
	}
	if len(args) != 5 || args[0] != "u1" || args[4] != false {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestCompilePublishedExpressionColumn(t *testing.T) {
	p := scope.Resolve(scope.Principal{
		UserID: "u1", Role: scope.RoleCrew, CompanyID: "c1", ShipID: "s1",
	}, scope.EntityAssessment)
	clause, args, err := compilePredicate(p, assessmentColumns, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := "(account_id = $1 and (status = 'published') = $2)"
	if clause != want {
		t.Fatalf("clause mismatch:\n got %q\nwant %q", clause, want)
	}
	if len(args) != 2 || args[1] != true {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestCompileUnmappedFieldFails(t *testing.T) {
	_, _, err := compilePredicate(scope.Eq{Field: scope.FieldOwner, Value: "u1"}, companyColumns, 0)
	if err == nil {
		t.Fatal("a field without a column must fail loudly, not filter over-broadly")
	}
}

func TestEveryResolvedPredicateCompiles(t *testing.T) {
	relations := map[scope.Entity]columns{
		scope.EntityCompany:     companyColumns,
		scope.EntityShip:        shipColumns,
		scope.EntityAccount:     accountColumns,
		scope.EntityCertificate: certificateColumns,
		scope.EntityIncident:    incidentColumns,
		scope.EntityAssessment:  assessmentColumns,
		scope.EntityActivityLog: activityColumns,
	}
	roles := []scope.Role{scope.RoleSuperAdmin, scope.RoleAdmin, scope.RoleSubAdmin, scope.RoleCrew}
	for entity, cols := range relations {
		for _, role := range roles {
			p := scope.Principal{UserID: "u1", Role: role, CompanyID: "c1", ShipID: "s1"}
			if _, _, err := compilePredicate(scope.Resolve(p, entity), cols, 0); err != nil {
				t.Errorf("%s as %s: %v", entity, role, err)
			}
		}
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(1, 0); got != "$1" {
		t.Fatalf("got %q", got)
	}
	if got := placeholders(3, 2); got != "$3, $4, $5" {
		t.Fatalf("got %q", got)
	}
}
