package pg

import (
	"fmt"
	"strings"

	"crewdock.io/internal/scope"
)

// columns maps abstract tenancy fields onto the concrete columns (or
// boolean expressions) of one relation.
type columns map[scope.Field]string

var (
	accountColumns = columns{
		scope.FieldCompany: "company_id",
		scope.FieldShip:    "ship_id",
		scope.FieldOwner:   "id",
	}
	companyColumns = columns{
		scope.FieldCompany: "id",
	}
	shipColumns = columns{
		scope.FieldCompany: "company_id",
		scope.FieldShip:    "id",
	}
	certificateColumns = columns{
		scope.FieldCompany: "company_id",
		scope.FieldShip:    "ship_id",
		scope.FieldOwner:   "account_id",
	}
	incidentColumns = columns{
		scope.FieldCompany:  "company_id",
		scope.FieldShip:     "ship_id",
		scope.FieldOwner:    "reporter_id",
		scope.FieldShipOnly: "visible_to_ship_only",
	}
	assessmentColumns = columns{
		scope.FieldCompany:   "company_id",
		scope.FieldShip:      "ship_id",
		scope.FieldOwner:     "account_id",
		scope.FieldPublished: "(status = 'published')",
	}
	activityColumns = columns{
		scope.FieldCompany: "company_id",
		scope.FieldShip:    "ship_id",
		scope.FieldOwner:   "actor_id",
	}
)

// compilePredicate renders a scope predicate as a parameterized SQL
// fragment. Argument placeholders start at offset+1. A predicate naming a
// field the relation does not carry is a programming error and compiles
// to a loud failure rather than an over-broad filter.
func compilePredicate(p scope.Predicate, cols columns, offset int) (string, []any, error) {
	var args []any
	clause, err := compileNode(p, cols, offset, &args)
	if err != nil {
		return "", nil, err
	}
	return clause, args, nil
}

func compileNode(p scope.Predicate, cols columns, offset int, args *[]any) (string, error) {
	switch node := p.(type) {
	case scope.All:
		return "true", nil
	case scope.None:
		return "false", nil
	case scope.Eq:
		col, ok := cols[node.Field]
		if !ok {
			return "", fmt.Errorf("pg: relation has no column for field %d", node.Field)
		}
		*args = append(*args, node.Value)
		return fmt.Sprintf("%s = $%d", col, offset+len(*args)), nil
	case scope.Flag:
		col, ok := cols[node.Field]
		if !ok {
			return "", fmt.Errorf("pg: relation has no column for field %d", node.Field)
		}
		*args = append(*args, node.Value)
		return fmt.Sprintf("%s = $%d", col, offset+len(*args)), nil
	case scope.And:
		return compileList(node, " and ", cols, offset, args)
	case scope.Or:
		return compileList(node, " or ", cols, offset, args)
	default:
		return "", fmt.Errorf("pg: unsupported predicate %T", p)
	}
}

func compileList(nodes []scope.Predicate, sep string, cols columns, offset int, args *[]any) (string, error) {
	if len(nodes) == 0 {
		return "true", nil
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		clause, err := compileNode(n, cols, offset, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// placeholders renders $offset+1..$offset+n for IN-style lists.
func placeholders(n, offset int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", offset+i+1)
	}
	return strings.Join(parts, ", ")
}
