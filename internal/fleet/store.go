package fleet

import (
	"context"

	"crewdock.io/internal/scope"
)

// Store describes persistence for the scoped fleet resources. List methods
// take the resolved scope predicate and compile it into the query, so
// out-of-scope rows never leave the storage layer.
type Store interface {
	CreateCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, id string) (*Company, error)
	ListCompanies(ctx context.Context, p scope.Predicate) ([]*Company, error)
	UpdateCompany(ctx context.Context, id string, upd CompanyUpdate) (*Company, error)
	DeleteCompany(ctx context.Context, id string) error

	CreateShip(ctx context.Context, s *Ship) error
	GetShip(ctx context.Context, id string) (*Ship, error)
	ListShips(ctx context.Context, p scope.Predicate) ([]*Ship, error)
	UpdateShip(ctx context.Context, id string, upd ShipUpdate) (*Ship, error)
	DeleteShip(ctx context.Context, id string) error

	CreateCertificate(ctx context.Context, c *Certificate) error
	GetCertificate(ctx context.Context, id string) (*Certificate, error)
	ListCertificates(ctx context.Context, p scope.Predicate) ([]*Certificate, error)
	UpdateCertificate(ctx context.Context, id string, upd CertificateUpdate) (*Certificate, error)
	DeleteCertificate(ctx context.Context, id string) error

	CreateIncident(ctx context.Context, i *Incident) error
	GetIncident(ctx context.Context, id string) (*Incident, error)
	ListIncidents(ctx context.Context, p scope.Predicate) ([]*Incident, error)
	UpdateIncident(ctx context.Context, id string, upd IncidentUpdate) (*Incident, error)
	// SoftDeleteIncident marks the row deleted; it stays in storage.
	SoftDeleteIncident(ctx context.Context, id string) error

	CreateAssessment(ctx context.Context, a *Assessment) error
	GetAssessment(ctx context.Context, id string) (*Assessment, error)
	ListAssessments(ctx context.Context, p scope.Predicate) ([]*Assessment, error)
	UpdateAssessment(ctx context.Context, id string, upd AssessmentUpdate) (*Assessment, error)
	DeleteAssessment(ctx context.Context, id string) error

	AppendActivity(ctx context.Context, l *ActivityLog) error
	GetActivity(ctx context.Context, id string) (*ActivityLog, error)
	ListActivity(ctx context.Context, p scope.Predicate) ([]*ActivityLog, error)
	DeleteActivity(ctx context.Context, id string) error
}
