package fleet

import (
	"errors"
	"strings"
	"time"

	"crewdock.io/internal/scope"
)

var (
	ErrInvalidInput = errors.New("fleet: invalid input")
	ErrNotFound     = errors.New("fleet: not found")
	ErrConflict     = errors.New("fleet: duplicate")
	ErrForbidden    = errors.New("fleet: forbidden")
)

// AssessmentPublished is the status value that makes an assessment visible
// to the assessed crew member.
const AssessmentPublished = "published"

// Company is a tenant: it owns ships and everything aboard them.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Company) Tenancy() scope.Tenancy {
	return scope.Tenancy{CompanyID: c.ID}
}

// Ship groups accounts and scoped resources under a company.
type Ship struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	IMO       string    `json:"imo,omitempty"`
	Flag      string    `json:"flag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Ship) Tenancy() scope.Tenancy {
	return scope.Tenancy{CompanyID: s.CompanyID, ShipID: s.ID}
}

// Certificate is a qualification document held by a crew member.
type Certificate struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	ShipID    string    `json:"ship_id,omitempty"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Authority string    `json:"authority,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Certificate) Tenancy() scope.Tenancy {
	return scope.Tenancy{CompanyID: c.CompanyID, ShipID: c.ShipID, OwnerID: c.AccountID}
}

// Incident is a reported event aboard a ship. Incidents are soft-deleted
// and may be restricted to the reporting ship via VisibleToShipOnly.
type Incident struct {
	ID                string    `json:"id"`
	CompanyID         string    `json:"company_id"`
	ShipID            string    `json:"ship_id"`
	ReporterID        string    `json:"reporter_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Severity          string    `json:"severity,omitempty"`
	VisibleToShipOnly bool      `json:"visible_to_ship_only"`
	Deleted           bool      `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (i *Incident) Tenancy() scope.Tenancy {
	return scope.Tenancy{
		CompanyID: i.CompanyID,
		ShipID:    i.ShipID,
		OwnerID:   i.ReporterID,
		ShipOnly:  i.VisibleToShipOnly,
	}
}

// Assessment is a performance review of a crew member. Crew only see their
// own once published.
type Assessment struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	ShipID    string    `json:"ship_id,omitempty"`
	AccountID string    `json:"account_id"`
	Title     string    `json:"title"`
	Score     int       `json:"score"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Assessment) Published() bool {
	return strings.EqualFold(strings.TrimSpace(a.Status), AssessmentPublished)
}

func (a *Assessment) Tenancy() scope.Tenancy {
	return scope.Tenancy{
		CompanyID: a.CompanyID,
		ShipID:    a.ShipID,
		OwnerID:   a.AccountID,
		Published: a.Published(),
	}
}

// ActivityLog records one action taken against the system.
type ActivityLog struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id,omitempty"`
	ShipID       string    `json:"ship_id,omitempty"`
	ActorID      string    `json:"actor_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (l *ActivityLog) Tenancy() scope.Tenancy {
	return scope.Tenancy{CompanyID: l.CompanyID, ShipID: l.ShipID, OwnerID: l.ActorID}
}

// Partial updates: nil fields preserve stored values.

type CompanyUpdate struct {
	Name    *string
	Address *string
}

type ShipUpdate struct {
	Name *string
	IMO  *string
	Flag *string
}

type CertificateUpdate struct {
	ShipID    *string
	Name      *string
	Authority *string
	IssuedAt  *time.Time
	ExpiresAt *time.Time
}

type IncidentUpdate struct {
	Title             *string
	Description       *string
	Severity          *string
	VisibleToShipOnly *bool
}

type AssessmentUpdate struct {
	Title  *string
	Score  *int
	Status *string
}
