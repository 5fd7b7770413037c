package httpapi

import (
	"net/http"
	"strings"

	"crewdock.io/internal/crew"
	"crewdock.io/internal/obs"
	"crewdock.io/internal/scope"
)

type createAccountRequest struct {
	SeafarerID string `json:"seafarer_id"`
	FullName   string `json:"full_name"`
	Rank       string `json:"rank"`
	CompanyID  string `json:"company_id"`
	ShipID     string `json:"ship_id"`
	Status     string `json:"status"`
	Role       string `json:"role"`
}

type accountResponse struct {
	Account     *crew.Account           `json:"account"`
	Credentials *crew.IssuedCredentials `json:"credentials,omitempty"`
}

func (a *API) handleCrewCollection(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		accounts, err := a.crew.List(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	case http.MethodPost:
		var req createAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role := scope.RoleCrew
		if strings.TrimSpace(req.Role) != "" {
			parsed, err := scope.ParseRole(req.Role)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			role = parsed
		}
		account, issued, err := a.crew.Create(r.Context(), p, crew.NewAccount{
			SeafarerID: req.SeafarerID,
			FullName:   req.FullName,
			Rank:       req.Rank,
			CompanyID:  req.CompanyID,
			ShipID:     req.ShipID,
			Status:     req.Status,
			Role:       role,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if issued != nil {
			obs.CredentialIssued()
		}
		a.logActivity(r, p, "account.created", "account", account.ID)
		writeJSON(w, http.StatusCreated, accountResponse{Account: account, Credentials: issued})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCrewResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/crew/"), "/")
	if rest == "status" {
		a.handleCrewStatus(w, r)
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		if parts[1] == "password" {
			a.handleCrewPassword(w, r, id)
			return
		}
		http.NotFound(w, r)
		return
	}

	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		account, err := a.crew.Get(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	case http.MethodPatch:
		a.handleCrewUpdate(w, r, p, id)
	case http.MethodDelete:
		if err := a.crew.Delete(r.Context(), p, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "account.deleted", "account", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

type updateAccountRequest struct {
	FullName          *string `json:"full_name"`
	Rank              *string `json:"rank"`
	ShipID            *string `json:"ship_id"`
	Status            *string `json:"status"`
	Role              *string `json:"role"`
	RemoveCredentials bool    `json:"remove_credentials"`
}

func (a *API) handleCrewUpdate(w http.ResponseWriter, r *http.Request, p scope.Principal, id string) {
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := crew.AccountUpdate{
		FullName: req.FullName,
		Rank:     req.Rank,
		ShipID:   req.ShipID,
		Status:   req.Status,
	}
	if req.Role != nil {
		role, err := scope.ParseRole(*req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd.Role = &role
	}
	account, issued, err := a.crew.Update(r.Context(), p, id, upd, req.RemoveCredentials)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if issued != nil {
		obs.CredentialIssued()
	}
	a.logActivity(r, p, "account.updated", "account", id)
	writeJSON(w, http.StatusOK, accountResponse{Account: account, Credentials: issued})
}

type changeStatusRequest struct {
	AccountIDs        []string `json:"account_ids"`
	Status            string   `json:"status"`
	RemoveCredentials bool     `json:"remove_credentials"`
}

// handleCrewStatus applies a bulk status transition. The authorization
// pre-check over the whole batch is all-or-nothing; row outcomes come
// back per account.
func (a *API) handleCrewStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req changeStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	results, err := a.crew.ChangeStatus(r.Context(), p, req.AccountIDs, req.Status, req.RemoveCredentials)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	for _, res := range results {
		if res.Credentials != nil {
			obs.CredentialIssued()
		}
	}
	a.logActivity(r, p, "account.status_changed", "account", strings.Join(req.AccountIDs, ","))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

// handleCrewPassword serves the administrative credential endpoints:
// GET recovers the stored plaintext, PUT replaces it.
func (a *API) handleCrewPassword(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		password, available, err := a.crew.RecoverPassword(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		payload := map[string]any{"available": available}
		if available {
			payload["password"] = password
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		var req setPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.crew.SetPassword(r.Context(), p, id, req.Password); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.logActivity(r, p, "account.password_set", "account", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
