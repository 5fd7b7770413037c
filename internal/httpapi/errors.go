package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"crewdock.io/internal/credential"
	"crewdock.io/internal/crew"
	"crewdock.io/internal/fleet"
	"crewdock.io/internal/session"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps domain sentinels onto HTTP status codes. On
// targeted access the services already order NotFound before Forbidden.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crew.ErrInvalidInput), errors.Is(err, fleet.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, crew.ErrNotFound), errors.Is(err, fleet.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, crew.ErrForbidden), errors.Is(err, fleet.ErrForbidden), errors.Is(err, session.ErrNotOnboard):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, credential.ErrUsernameExhausted):
		// The retry bound is internal policy, not caller input.
		writeError(w, r, http.StatusInternalServerError, "credential issuance failed")
	case errors.Is(err, crew.ErrConflict), errors.Is(err, fleet.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
