package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewdock.io/internal/authz"
	"crewdock.io/internal/ids"
	"crewdock.io/internal/scope"
)

// Service owns CRUD over the scoped fleet resources. Every read goes
// through the resolved scope predicate; every write passes the role gate
// and the cross-boundary gate before the store is touched.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the fleet service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("fleet: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// checkRead applies the NotFound-before-Forbidden ordering for targeted
// reads and write lookups.
func checkRead(p scope.Principal, entity scope.Entity, t scope.Tenancy) error {
	if !scope.Resolve(p, entity).Matches(t) {
		return ErrForbidden
	}
	return nil
}

// --- Companies ---

func (s *Service) CreateCompany(ctx context.Context, p scope.Principal, name, address string) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	if err := authz.CheckWrite(p, scope.EntityCompany, authz.ActionCreate, scope.Tenancy{}); err != nil {
		return nil, ErrForbidden
	}
	company := &Company{ID: ids.New(), Name: name, Address: strings.TrimSpace(address)}
	if err := s.store.CreateCompany(ctx, company); err != nil {
		return nil, err
	}
	return company, nil
}

func (s *Service) GetCompany(ctx context.Context, p scope.Principal, id string) (*Company, error) {
	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityCompany, company.Tenancy()); err != nil {
		return nil, err
	}
	return company, nil
}

func (s *Service) ListCompanies(ctx context.Context, p scope.Principal) ([]*Company, error) {
	return s.store.ListCompanies(ctx, scope.Resolve(p, scope.EntityCompany))
}

func (s *Service) UpdateCompany(ctx context.Context, p scope.Principal, id string, upd CompanyUpdate) (*Company, error) {
	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityCompany, company.Tenancy()); err != nil {
		return nil, err
	}
	if err := authz.CheckWrite(p, scope.EntityCompany, authz.ActionUpdate, company.Tenancy()); err != nil {
		return nil, ErrForbidden
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: company name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	return s.store.UpdateCompany(ctx, id, upd)
}

func (s *Service) DeleteCompany(ctx context.Context, p scope.Principal, id string) error {
	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return err
	}
	if err := checkRead(p, scope.EntityCompany, company.Tenancy()); err != nil {
		return err
	}
	if err := authz.CheckWrite(p, scope.EntityCompany, authz.ActionDelete, company.Tenancy()); err != nil {
		return ErrForbidden
	}
	return s.store.DeleteCompany(ctx, id)
}

// --- Ships ---

// NewShip is the input for ship creation. CompanyID is the requested
// placement the boundary gate evaluates.
type NewShip struct {
	CompanyID string
	Name      string
	IMO       string
	Flag      string
}

func (s *Service) CreateShip(ctx context.Context, p scope.Principal, in NewShip) (*Ship, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.CompanyID == "" {
		return nil, fmt.Errorf("%w: ship name and company_id are required", ErrInvalidInput)
	}
	target := scope.Tenancy{CompanyID: in.CompanyID}
	if err := authz.CheckWrite(p, scope.EntityShip, authz.ActionCreate, target); err != nil {
		return nil, ErrForbidden
	}
	ship := &Ship{
		ID:        ids.New(),
		CompanyID: in.CompanyID,
		Name:      in.Name,
		IMO:       strings.TrimSpace(in.IMO),
		Flag:      strings.TrimSpace(in.Flag),
	}
	if err := s.store.CreateShip(ctx, ship); err != nil {
		return nil, err
	}
	return ship, nil
}

func (s *Service) GetShip(ctx context.Context, p scope.Principal, id string) (*Ship, error) {
	ship, err := s.store.GetShip(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityShip, ship.Tenancy()); err != nil {
		return nil, err
	}
	return ship, nil
}

func (s *Service) ListShips(ctx context.Context, p scope.Principal) ([]*Ship, error) {
	return s.store.ListShips(ctx, scope.Resolve(p, scope.EntityShip))
}

func (s *Service) UpdateShip(ctx context.Context, p scope.Principal, id string, upd ShipUpdate) (*Ship, error) {
	ship, err := s.store.GetShip(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityShip, ship.Tenancy()); err != nil {
		return nil, err
	}
	if err := authz.CheckWrite(p, scope.EntityShip, authz.ActionUpdate, ship.Tenancy()); err != nil {
		return nil, ErrForbidden
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: ship name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	return s.store.UpdateShip(ctx, id, upd)
}

func (s *Service) DeleteShip(ctx context.Context, p scope.Principal, id string) error {
	ship, err := s.store.GetShip(ctx, id)
	if err != nil {
		return err
	}
	if err := checkRead(p, scope.EntityShip, ship.Tenancy()); err != nil {
		return err
	}
	if err := authz.CheckWrite(p, scope.EntityShip, authz.ActionDelete, ship.Tenancy()); err != nil {
		return ErrForbidden
	}
	return s.store.DeleteShip(ctx, id)
}

// --- Certificates ---

type NewCertificate struct {
	CompanyID string
	ShipID    string
	AccountID string
	Name      string
	Authority string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s *Service) CreateCertificate(ctx context.Context, p scope.Principal, in NewCertificate) (*Certificate, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.CompanyID == "" || in.AccountID == "" {
		return nil, fmt.Errorf("%w: certificate name, company_id and account_id are required", ErrInvalidInput)
	}
	target := scope.Tenancy{CompanyID: in.CompanyID, ShipID: in.ShipID, OwnerID: in.AccountID}
	if err := authz.CheckWrite(p, scope.EntityCertificate, authz.ActionCreate, target); err != nil {
		return nil, ErrForbidden
	}
	issued := in.IssuedAt
	if issued.IsZero() {
		issued = s.now().UTC()
	}
	cert := &Certificate{
		ID:        ids.New(),
		CompanyID: in.CompanyID,
		ShipID:    in.ShipID,
		AccountID: in.AccountID,
		Name:      in.Name,
		Authority: strings.TrimSpace(in.Authority),
		IssuedAt:  issued,
		ExpiresAt: in.ExpiresAt,
	}
	if err := s.store.CreateCertificate(ctx, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

func (s *Service) GetCertificate(ctx context.Context, p scope.Principal, id string) (*Certificate, error) {
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityCertificate, cert.Tenancy()); err != nil {
		return nil, err
	}
	return cert, nil
}

func (s *Service) ListCertificates(ctx context.Context, p scope.Principal) ([]*Certificate, error) {
	return s.store.ListCertificates(ctx, scope.Resolve(p, scope.EntityCertificate))
}

func (s *Service) UpdateCertificate(ctx context.Context, p scope.Principal, id string, upd CertificateUpdate) (*Certificate, error) {
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityCertificate, cert.Tenancy()); err != nil {
		return nil, err
	}
	target := cert.Tenancy()
	if upd.ShipID != nil {
		target.ShipID = *upd.ShipID
	}
	if err := authz.CheckWrite(p, scope.EntityCertificate, authz.ActionUpdate, target); err != nil {
		return nil, ErrForbidden
	}
	return s.store.UpdateCertificate(ctx, id, upd)
}

func (s *Service) DeleteCertificate(ctx context.Context, p scope.Principal, id string) error {
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return err
	}
	if err := checkRead(p, scope.EntityCertificate, cert.Tenancy()); err != nil {
		return err
	}
	if err := authz.CheckWrite(p, scope.EntityCertificate, authz.ActionDelete, cert.Tenancy()); err != nil {
		return ErrForbidden
	}
	return s.store.DeleteCertificate(ctx, id)
}

// --- Incidents ---

type NewIncident struct {
	CompanyID         string
	ShipID            string
	Title             string
	Description       string
	Severity          string
	VisibleToShipOnly bool
}

// CreateIncident records an incident reported by the caller. Crew may
// report, but only within their own company and ship.
func (s *Service) CreateIncident(ctx context.Context, p scope.Principal, in NewIncident) (*Incident, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.CompanyID == "" || in.ShipID == "" {
		return nil, fmt.Errorf("%w: incident title, company_id and ship_id are required", ErrInvalidInput)
	}
	target := scope.Tenancy{CompanyID: in.CompanyID, ShipID: in.ShipID, OwnerID: p.UserID}
	if err := authz.CheckWrite(p, scope.EntityIncident, authz.ActionCreate, target); err != nil {
		return nil, ErrForbidden
	}
	incident := &Incident{
		ID:                ids.New(),
		CompanyID:         in.CompanyID,
		ShipID:            in.ShipID,
		ReporterID:        p.UserID,
		Title:             in.Title,
		Description:       strings.TrimSpace(in.Description),
		Severity:          strings.TrimSpace(in.Severity),
		VisibleToShipOnly: in.VisibleToShipOnly,
	}
	if err := s.store.CreateIncident(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

func (s *Service) GetIncident(ctx context.Context, p scope.Principal, id string) (*Incident, error) {
	incident, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityIncident, incident.Tenancy()); err != nil {
		return nil, err
	}
	return incident, nil
}

func (s *Service) ListIncidents(ctx context.Context, p scope.Principal) ([]*Incident, error) {
	return s.store.ListIncidents(ctx, scope.Resolve(p, scope.EntityIncident))
}

func (s *Service) UpdateIncident(ctx context.Context, p scope.Principal, id string, upd IncidentUpdate) (*Incident, error) {
	incident, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityIncident, incident.Tenancy()); err != nil {
		return nil, err
	}
	if err := authz.CheckWrite(p, scope.EntityIncident, authz.ActionUpdate, incident.Tenancy()); err != nil {
		return nil, ErrForbidden
	}
	if upd.Title != nil {
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: incident title is required", ErrInvalidInput)
		}
		upd.Title = &trimmed
	}
	return s.store.UpdateIncident(ctx, id, upd)
}

// DeleteIncident soft-deletes: the row is flagged, not removed.
func (s *Service) DeleteIncident(ctx context.Context, p scope.Principal, id string) error {
	incident, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return err
	}
	if err := checkRead(p, scope.EntityIncident, incident.Tenancy()); err != nil {
		return err
	}
	if err := authz.CheckWrite(p, scope.EntityIncident, authz.ActionDelete, incident.Tenancy()); err != nil {
		return ErrForbidden
	}
	return s.store.SoftDeleteIncident(ctx, id)
}

// --- Assessments ---

type NewAssessment struct {
	CompanyID string
	ShipID    string
	AccountID string
	Title     string
	Score     int
	Status    string
}

func (s *Service) CreateAssessment(ctx context.Context, p scope.Principal, in NewAssessment) (*Assessment, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.CompanyID == "" || in.AccountID == "" {
		return nil, fmt.Errorf("%w: assessment title, company_id and account_id are required", ErrInvalidInput)
	}
	target := scope.Tenancy{CompanyID: in.CompanyID, ShipID: in.ShipID, OwnerID: in.AccountID}
	if err := authz.CheckWrite(p, scope.EntityAssessment, authz.ActionCreate, target); err != nil {
		return nil, ErrForbidden
	}
	status := strings.TrimSpace(strings.ToLower(in.Status))
	if status == "" {
		status = "draft"
	}
	assessment := &Assessment{
		ID:        ids.New(),
		CompanyID: in.CompanyID,
		ShipID:    in.ShipID,
		AccountID: in.AccountID,
		Title:     in.Title,
		Score:     in.Score,
		Status:    status,
	}
	if err := s.store.CreateAssessment(ctx, assessment); err != nil {
		return nil, err
	}
	return assessment, nil
}

func (s *Service) GetAssessment(ctx context.Context, p scope.Principal, id string) (*Assessment, error) {
	assessment, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityAssessment, assessment.Tenancy()); err != nil {
		return nil, err
	}
	return assessment, nil
}

func (s *Service) ListAssessments(ctx context.Context, p scope.Principal) ([]*Assessment, error) {
	return s.store.ListAssessments(ctx, scope.Resolve(p, scope.EntityAssessment))
}

func (s *Service) UpdateAssessment(ctx context.Context, p scope.Principal, id string, upd AssessmentUpdate) (*Assessment, error) {
	assessment, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityAssessment, assessment.Tenancy()); err != nil {
		return nil, err
	}
	if err := authz.CheckWrite(p, scope.EntityAssessment, authz.ActionUpdate, assessment.Tenancy()); err != nil {
		return nil, ErrForbidden
	}
	if upd.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*upd.Status))
		upd.Status = &status
	}
	return s.store.UpdateAssessment(ctx, id, upd)
}

func (s *Service) DeleteAssessment(ctx context.Context, p scope.Principal, id string) error {
	assessment, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return err
	}
	if err := checkRead(p, scope.EntityAssessment, assessment.Tenancy()); err != nil {
		return err
	}
	if err := authz.CheckWrite(p, scope.EntityAssessment, authz.ActionDelete, assessment.Tenancy()); err != nil {
		return ErrForbidden
	}
	return s.store.DeleteAssessment(ctx, id)
}

// --- Activity logs ---

// LogActivity appends one activity row for a completed action. Failures
// here are reported to the caller but must not fail the action itself;
// handlers log and continue.
func (s *Service) LogActivity(ctx context.Context, p scope.Principal, action, resourceType, resourceID, requestID string) error {
	entry := &ActivityLog{
		ID:           ids.New(),
		CompanyID:    p.CompanyID,
		ShipID:       p.ShipID,
		ActorID:      p.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    requestID,
		OccurredAt:   s.now().UTC(),
	}
	return s.store.AppendActivity(ctx, entry)
}

func (s *Service) GetActivity(ctx context.Context, p scope.Principal, id string) (*ActivityLog, error) {
	entry, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(p, scope.EntityActivityLog, entry.Tenancy()); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ListActivity(ctx context.Context, p scope.Principal) ([]*ActivityLog, error) {
	return s.store.ListActivity(ctx, scope.Resolve(p, scope.EntityActivityLog))
}

func (s *Service) DeleteActivity(ctx context.Context, p scope.Principal, id string) error {
	entry, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	if err := checkRead(p, scope.EntityActivityLog, entry.Tenancy()); err != nil {
		return err
	}
	if err := authz.CheckWrite(p, scope.EntityActivityLog, authz.ActionDelete, entry.Tenancy()); err != nil {
		return ErrForbidden
	}
	return s.store.DeleteActivity(ctx, id)
}
