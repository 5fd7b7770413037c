package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crewdock.io/internal/fleet"
	"crewdock.io/internal/scope"
)

var _ fleet.Store = (*Store)(nil)

func fleetErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fleet.ErrNotFound
	case isUniqueViolation(err):
		return fleet.ErrConflict
	}
	return err
}

// Companies

func (s *Store) CreateCompany(ctx context.Context, c *fleet.Company) error {
	_, err := s.db.ExecContext(ctx, `
		insert into companies (id, name, address) values ($1, $2, $3)
	`, c.ID, c.Name, c.Address)
	return fleetErr(err)
}

func (s *Store) GetCompany(ctx context.Context, id string) (*fleet.Company, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, address, created_at, updated_at from companies where id = $1`, id)
	return scanCompany(row)
}

func (s *Store) ListCompanies(ctx context.Context, p scope.Predicate) ([]*fleet.Company, error) {
	clause, args, err := compilePredicate(p, companyColumns, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, address, created_at, updated_at from companies
		where `+clause+` order by created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*fleet.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCompany(ctx context.Context, id string, upd fleet.CompanyUpdate) (*fleet.Company, error) {
	row := s.db.QueryRowContext(ctx, `
		update companies set
			name = coalesce($2, name),
			address = coalesce($3, address),
			updated_at = now()
		where id = $1
		returning id, name, address, created_at, updated_at`,
		id, upd.Name, upd.Address)
	return scanCompany(row)
}

func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from companies where id = $1`, id)
	if err != nil {
		return fleetErr(err)
	}
	return requireAffected(res, fleet.ErrNotFound)
}

func scanCompany(row interface{ Scan(...any) error }) (*fleet.Company, error) {
	var c fleet.Company
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fleetErr(err)
	}
	return &c, nil
}

// Ships

func (s *Store) CreateShip(ctx context.Context, sh *fleet.Ship) error {
	_, err := s.db.ExecContext(ctx, `
		insert into ships (id, company_id, name, imo, flag) values ($1, $2, $3, $4, $5)
	`, sh.ID, sh.CompanyID, sh.Name, sh.IMO, sh.Flag)
	return fleetErr(err)
}

func (s *Store) GetShip(ctx context.Context, id string) (*fleet.Ship, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, company_id, name, imo, flag, created_at, updated_at from ships where id = $1`, id)
	return scanShip(row)
}

func (s *Store) ListShips(ctx context.Context, p scope.Predicate) ([]*fleet.Ship, error) {
	clause, args, err := compilePredicate(p, shipColumns, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, company_id, name, imo, flag, created_at, updated_at from ships
		where `+clause+` order by created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*fleet.Ship
	for rows.Next() {
		sh, err := scanShip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) UpdateShip(ctx context.Context, id string, upd fleet.ShipUpdate) (*fleet.Ship, error) {
	row := s.db.QueryRowContext(ctx, `
		update ships set
			name = coalesce($2, name),
			imo = coalesce($3, imo),
			flag = coalesce($4, flag),
			updated_at = now()
		where id = $1
		returning id, company_id, name, imo, flag, created_at, updated_at`,
		id, upd.Name, upd.IMO, upd.Flag)
	return scanShip(row)
}

func (s *Store) DeleteShip(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from ships where id = $1`, id)
	if err != nil {
		return fleetErr(err)
	}
	return requireAffected(res, fleet.ErrNotFound)
}

func scanShip(row interface{ Scan(...any) error }) (*fleet.Ship, error) {
	var sh fleet.Ship
	err := row.Scan(&sh.ID, &sh.CompanyID, &sh.Name, &sh.IMO, &sh.Flag, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		return nil, fleetErr(err)
	}
	return &sh, nil
}

// Certificates

const certificateColumnsSQL = `id, company_id, ship_id, account_id, name, authority,
	issued_at, expires_at, created_at, updated_at`

func (s *Store) CreateCertificate(ctx context.Context, c *fleet.Certificate) error {
	_, err := s.db.ExecContext(ctx, `
		insert into certificates (id, company_id, ship_id, account_id, name, authority, issued_at, expires_at)
		values ($1, $2, nullif($3, ''), $4, $5, $6, $7, $8)
	`, c.ID, c.CompanyID, c.ShipID, c.AccountID, c.Name, c.Authority, c.IssuedAt, nullTime(c.ExpiresAt))
	return fleetErr(err)
}

func (s *Store) GetCertificate(ctx context.Context, id string) (*fleet.Certificate, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from certificates where id = $1`, certificateColumnsSQL), id)
	return scanCertificate(row)
}

func (s *Store) ListCertificates(ctx context.Context, p scope.Predicate) ([]*fleet.Certificate, error) {
	clause, args, err := compilePredicate(p, certificateColumns, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`select %s from certificates where %s order by created_at`, certificateColumnsSQL, clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*fleet.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCertificate(ctx context.Context, id string, upd fleet.CertificateUpdate) (*fleet.Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		update certificates set
			ship_id = coalesce($2, ship_id),
			name = coalesce($3, name),
			authority = coalesce($4, authority),
			issued_at = coalesce($5, issued_at),
			expires_at = coalesce($6, expires_at),
			updated_at = now()
		where id = $1
		returning `+certificateColumnsSQL,
		id, upd.ShipID, upd.Name, upd.Authority, upd.IssuedAt, upd.ExpiresAt)
	return scanCertificate(row)
}

func (s *Store) DeleteCertificate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from certificates where id = $1`, id)
	if err != nil {
		return fleetErr(err)
	}
	return requireAffected(res, fleet.ErrNotFound)
}

func scanCertificate(row interface{ Scan(...any) error }) (*fleet.Certificate, error) {
	var (
		c       fleet.Certificate
		shipID  sql.NullString
		expires sql.NullTime
	)
	err := row.Scan(&c.ID, &c.CompanyID, &shipID, &c.AccountID, &c.Name, &c.Authority,
		&c.IssuedAt, &expires, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fleetErr(err)
	}
	c.ShipID = shipID.String
	c.ExpiresAt = expires.Time
	return &c, nil
}

// Incidents. Soft-deleted rows never leave the storage layer.

const incidentColumnsSQL = `id, company_id, ship_id, reporter_id, title, description,
	severity, visible_to_ship_only, created_at, updated_at`

func (s *Store) CreateIncident(ctx context.Context, i *fleet.Incident) error {
	_, err := s.db.ExecContext(ctx, `
		insert into incidents (id, company_id, ship_id, reporter_id, title, description, severity, visible_to_ship_only)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, i.ID, i.CompanyID, i.ShipID, i.ReporterID, i.Title, i.Description, i.Severity, i.VisibleToShipOnly)
	return fleetErr(err)
}

func (s *Store) GetIncident(ctx context.Context, id string) (*fleet.Incident, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`select %s from incidents where id = $1 and deleted = false`, incidentColumnsSQL), id)
	return scanIncident(row)
}

func (s *Store) ListIncidents(ctx context.Context, p scope.Predicate) ([]*fleet.Incident, error) {
	clause, args, err := compilePredicate(p, incidentColumns, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`select %s from incidents where deleted = false and (%s) order by created_at desc`,
		incidentColumnsSQL, clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*fleet.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) UpdateIncident(ctx context.Context, id string, upd fleet.IncidentUpdate) (*fleet.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		update incidents set
			title = coalesce($2, title),
			description = coalesce($3, description),
			severity = coalesce($4, severity),
			visible_to_ship_only = coalesce($5, visible_to_ship_only),
			updated_at = now()
		where id = $1 and deleted = false
		returning `+incidentColumnsSQL,
		id, upd.Title, upd.Description, upd.Severity, upd.VisibleToShipOnly)
	return scanIncident(row)
}

func (s *Store) SoftDeleteIncident(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update incidents set deleted = true, updated_at = now()
		where id = $1 and deleted = false`, id)
	if err != nil {
		return fleetErr(err)
	}
	return requireAffected(res, fleet.ErrNotFound)
}

func scanIncident(row interface{ Scan(...any) error }) (*fleet.Incident, error) {
	var i fleet.Incident
	err := row.Scan(&i.ID, &i.CompanyID, &i.ShipID, &i.ReporterID, &i.Title, &i.Description,
		&i.Severity, &i.VisibleToShipOnly, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, fleetErr(err)
	}
	return &i, nil
}

// Assessments

const assessmentColumnsSQL = `id, company_id, ship_id, account_id, title, score, status, created_at, updated_at`

func (s *Store) CreateAssessment(ctx context.Context, a *fleet.Assessment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into assessments (id, company_id, ship_id, account_id, title, score, status)
		values ($1, $2, nullif($3, ''), $4, $5, $6, $7)
	`, a.ID, a.CompanyID, a.ShipID, a.AccountID, a.Title, a.Score, a.Status)
	return fleetErr(err)
}

func (s *Store) GetAssessment(ctx context.Context, id string) (*fleet.Assessment, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`select %s from assessments where id = $1`, assessmentColumnsSQL), id)
	return scanAssessment(row)
}

func (s *Store) ListAssessments(ctx context.Context, p scope.Predicate) ([]*fleet.Assessment, error) {
	clause, args, err := compilePredicate(p, assessmentColumns, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`select %s from assessments where %s order by created_at desc`, assessmentColumnsSQL, clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*fleet.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAssessment(ctx context.Context, id string, upd fleet.AssessmentUpdate) (*fleet.Assessment, error) {
	row := s.db.QueryRowContext(ctx, `
		update assessments set
			title = coalesce($2, title),
			score = coalesce($3, score),
			status = coalesce($4, status),
			updated_at = now()
		where id = $1
		returning `+assessmentColumnsSQL,
		id, upd.Title, upd.Score, upd.Status)
	return scanAssessment(row)
}

func (s *Store) DeleteAssessment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from assessments where id = $1`, id)
	if err != nil {
		return fleetErr(err)
	}
	return requireAffected(res, fleet.ErrNotFound)
}

func scanAssessment(row interface{ Scan(...any) error }) (*fleet.Assessment, error) {
	var (
		a      fleet.Assessment
		shipID sql.NullString
	)
	err := row.Scan(&a.ID, &a.CompanyID, &shipID, &a.AccountID, &a.Title, &a.Score, &a.Status,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fleetErr(err)
	}
	a.ShipID = shipID.String
	return &a, nil
}

// Activity logs

const activityColumnsSQL = `id, company_id, ship_id, actor_id, action, resource_type, resource_id, request_id, occurred_at`

func (s *Store) AppendActivity(ctx context.Context, l *fleet.ActivityLog) error {
	_, err := s.db.ExecContext(ctx, `
		insert into activity_logs (id, company_id, ship_id, actor_id, action, resource_type, resource_id, request_id, occurred_at)
		values ($1, nullif($2, ''), nullif($3, ''), $4, $5, $6, nullif($7, ''), nullif($8, ''), $9)
	`, l.ID, l.CompanyID, l.ShipID, l.ActorID, l.Action, l.ResourceType, l.ResourceID, l.RequestID, l.OccurredAt)
	return fleetErr(err)
}

func (s *Store) GetActivity(ctx context.Context, id string) (*fleet.ActivityLog, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`select %s from activity_logs where id = $1`, activityColumnsSQL), id)
	return scanActivity(row)
}

func (s *Store) ListActivity(ctx context.Context, p scope.Predicate) ([]*fleet.ActivityLog, error) {
	clause, args, err := compilePredicate(p, activityColumns, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`select %s from activity_logs where %s order by occurred_at desc`, activityColumnsSQL, clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*fleet.ActivityLog
	for rows.Next() {
		l, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) DeleteActivity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from activity_logs where id = $1`, id)
	if err != nil {
		return fleetErr(err)
	}
	return requireAffected(res, fleet.ErrNotFound)
}

func scanActivity(row interface{ Scan(...any) error }) (*fleet.ActivityLog, error) {
	var (
		l          fleet.ActivityLog
		companyID  sql.NullString
		shipID     sql.NullString
		resourceID sql.NullString
		requestID  sql.NullString
	)
	err := row.Scan(&l.ID, &companyID, &shipID, &l.ActorID, &l.Action, &l.ResourceType,
		&resourceID, &requestID, &l.OccurredAt)
	if err != nil {
		return nil, fleetErr(err)
	}
	l.CompanyID = companyID.String
	l.ShipID = shipID.String
	l.ResourceID = resourceID.String
	l.RequestID = requestID.String
	return &l, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
