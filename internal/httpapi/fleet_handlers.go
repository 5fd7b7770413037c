package httpapi

import (
	"net/http"
	"strings"
	"time"

	"crewdock.io/internal/fleet"
	"crewdock.io/internal/obs"
	"crewdock.io/internal/scope"
)

// logActivity records one activity row for a completed mutation. A
// failure here must not fail the request that already succeeded.
func (a *API) logActivity(r *http.Request, p scope.Principal, action, resourceType, resourceID string) {
	err := a.fleet.LogActivity(r.Context(), p, action, resourceType, resourceID, RequestIDFromContext(r.Context()))
	if err != nil {
		obs.Log("warn", "activity_log_failed", map[string]any{
			"action":     action,
			"resource":   resourceType,
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
	}
}

func resourceID(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

// --- Companies ---

type companyRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (a *API) handleCompanies(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		companies, err := a.fleet.ListCompanies(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
	case http.MethodPost:
		var req companyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		company, err := a.fleet.CreateCompany(r.Context(), p, req.Name, req.Address)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "company.created", "company", company.ID)
		writeJSON(w, http.StatusCreated, company)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateCompanyRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
}

func (a *API) handleCompanyByID(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r, "/v1/companies/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		company, err := a.fleet.GetCompany(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, company)
	case http.MethodPatch:
		var req updateCompanyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		company, err := a.fleet.UpdateCompany(r.Context(), p, id, fleet.CompanyUpdate{
			Name:    req.Name,
			Address: req.Address,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "company.updated", "company", id)
		writeJSON(w, http.StatusOK, company)
	case http.MethodDelete:
		if err := a.fleet.DeleteCompany(r.Context(), p, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "company.deleted", "company", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- Ships ---

type shipRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	IMO       string `json:"imo"`
	Flag      string `json:"flag"`
}

func (a *API) handleShips(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		ships, err := a.fleet.ListShips(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ships": ships})
	case http.MethodPost:
		var req shipRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ship, err := a.fleet.CreateShip(r.Context(), p, fleet.NewShip{
			CompanyID: req.CompanyID,
			Name:      req.Name,
			IMO:       req.IMO,
			Flag:      req.Flag,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "ship.created", "ship", ship.ID)
		writeJSON(w, http.StatusCreated, ship)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateShipRequest struct {
	Name *string `json:"name"`
	IMO  *string `json:"imo"`
	Flag *string `json:"flag"`
}

func (a *API) handleShipByID(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r, "/v1/ships/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		ship, err := a.fleet.GetShip(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ship)
	case http.MethodPatch:
		var req updateShipRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ship, err := a.fleet.UpdateShip(r.Context(), p, id, fleet.ShipUpdate{
			Name: req.Name,
			IMO:  req.IMO,
			Flag: req.Flag,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "ship.updated", "ship", id)
		writeJSON(w, http.StatusOK, ship)
	case http.MethodDelete:
		if err := a.fleet.DeleteShip(r.Context(), p, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "ship.deleted", "ship", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- Certificates ---

type certificateRequest struct {
	CompanyID string    `json:"company_id"`
	ShipID    string    `json:"ship_id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Authority string    `json:"authority"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleCertificates(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		certs, err := a.fleet.ListCertificates(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"certificates": certs})
	case http.MethodPost:
		var req certificateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		cert, err := a.fleet.CreateCertificate(r.Context(), p, fleet.NewCertificate{
			CompanyID: req.CompanyID,
			ShipID:    req.ShipID,
			AccountID: req.AccountID,
			Name:      req.Name,
			Authority: req.Authority,
			IssuedAt:  req.IssuedAt,
			ExpiresAt: req.ExpiresAt,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "certificate.created", "certificate", cert.ID)
		writeJSON(w, http.StatusCreated, cert)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateCertificateRequest struct {
	ShipID    *string    `json:"ship_id"`
	Name      *string    `json:"name"`
	Authority *string    `json:"authority"`
	IssuedAt  *time.Time `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (a *API) handleCertificateByID(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r, "/v1/certificates/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cert, err := a.fleet.GetCertificate(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cert)
	case http.MethodPatch:
		var req updateCertificateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		cert, err := a.fleet.UpdateCertificate(r.Context(), p, id, fleet.CertificateUpdate{
			ShipID:    req.ShipID,
			Name:      req.Name,
			Authority: req.Authority,
			IssuedAt:  req.IssuedAt,
			ExpiresAt: req.ExpiresAt,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "certificate.updated", "certificate", id)
		writeJSON(w, http.StatusOK, cert)
	case http.MethodDelete:
		if err := a.fleet.DeleteCertificate(r.Context(), p, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "certificate.deleted", "certificate", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- Incidents ---

type incidentRequest struct {
	CompanyID         string `json:"company_id"`
	ShipID            string `json:"ship_id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Severity          string `json:"severity"`
	VisibleToShipOnly bool   `json:"visible_to_ship_only"`
}

func (a *API) handleIncidents(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		incidents, err := a.fleet.ListIncidents(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
	case http.MethodPost:
		var req incidentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		incident, err := a.fleet.CreateIncident(r.Context(), p, fleet.NewIncident{
			CompanyID:         req.CompanyID,
			ShipID:            req.ShipID,
			Title:             req.Title,
			Description:       req.Description,
			Severity:          req.Severity,
			VisibleToShipOnly: req.VisibleToShipOnly,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "incident.created", "incident", incident.ID)
		writeJSON(w, http.StatusCreated, incident)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateIncidentRequest struct {
	Title             *string `json:"title"`
	Description       *string `json:"description"`
	Severity          *string `json:"severity"`
	VisibleToShipOnly *bool   `json:"visible_to_ship_only"`
}

func (a *API) handleIncidentByID(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r, "/v1/incidents/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		incident, err := a.fleet.GetIncident(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, incident)
	case http.MethodPatch:
		var req updateIncidentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		incident, err := a.fleet.UpdateIncident(r.Context(), p, id, fleet.IncidentUpdate{
			Title:             req.Title,
			Description:       req.Description,
			Severity:          req.Severity,
			VisibleToShipOnly: req.VisibleToShipOnly,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "incident.updated", "incident", id)
		writeJSON(w, http.StatusOK, incident)
	case http.MethodDelete:
		if err := a.fleet.DeleteIncident(r.Context(), p, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "incident.deleted", "incident", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- Assessments ---

type assessmentRequest struct {
	CompanyID string `json:"company_id"`
	ShipID    string `json:"ship_id"`
	AccountID string `json:"account_id"`
	Title     string `json:"title"`
	Score     int    `json:"score"`
	Status    string `json:"status"`
}

func (a *API) handleAssessments(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		assessments, err := a.fleet.ListAssessments(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assessments": assessments})
	case http.MethodPost:
		var req assessmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assessment, err := a.fleet.CreateAssessment(r.Context(), p, fleet.NewAssessment{
			CompanyID: req.CompanyID,
			ShipID:    req.ShipID,
			AccountID: req.AccountID,
			Title:     req.Title,
			Score:     req.Score,
			Status:    req.Status,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "assessment.created", "assessment", assessment.ID)
		writeJSON(w, http.StatusCreated, assessment)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateAssessmentRequest struct {
	Title  *string `json:"title"`
	Score  *int    `json:"score"`
	Status *string `json:"status"`
}

func (a *API) handleAssessmentByID(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r, "/v1/assessments/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		assessment, err := a.fleet.GetAssessment(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assessment)
	case http.MethodPatch:
		var req updateAssessmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assessment, err := a.fleet.UpdateAssessment(r.Context(), p, id, fleet.AssessmentUpdate{
			Title:  req.Title,
			Score:  req.Score,
			Status: req.Status,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "assessment.updated", "assessment", id)
		writeJSON(w, http.StatusOK, assessment)
	case http.MethodDelete:
		if err := a.fleet.DeleteAssessment(r.Context(), p, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "assessment.deleted", "assessment", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- Activity logs ---

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	entries, err := a.fleet.ListActivity(r.Context(), p)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

func (a *API) handleActivityByID(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r, "/v1/activity/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		entry, err := a.fleet.GetActivity(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		if err := a.fleet.DeleteActivity(r.Context(), p, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}
