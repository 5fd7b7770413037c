package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"crewdock.io/internal/crew"
	"crewdock.io/internal/fleet"
	"crewdock.io/internal/obs"
	"crewdock.io/internal/session"
)

// ReadyProbe reports readiness; with a DB attached it pings it.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the HTTP-layer knobs.
type Config struct {
	MaxBodyBytes       int64
	RateLimitPerSecond int
	RateLimitBurst     int
}

// API is the HTTP layer over the crew, fleet and session services.
type API struct {
	mux        *http.ServeMux
	crew       *crew.Service
	fleet      *fleet.Service
	sessions   *session.Manager
	readyProbe ReadyProbe
	version    string
	cfg        Config
}

func New(crewSvc *crew.Service, fleetSvc *fleet.Service, sessions *session.Manager, rp ReadyProbe, version string, cfg Config) *API {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		crew:       crewSvc,
		fleet:      fleetSvc,
		sessions:   sessions,
		readyProbe: rp,
		version:    version,
		cfg:        cfg,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)

	// crew accounts and the status lifecycle
	a.mux.HandleFunc("/v1/crew", a.handleCrewCollection)
	a.mux.HandleFunc("/v1/crew/", a.handleCrewResource)

	// fleet resources
	a.mux.HandleFunc("/v1/companies", a.handleCompanies)
	a.mux.HandleFunc("/v1/companies/", a.handleCompanyByID)
	a.mux.HandleFunc("/v1/ships", a.handleShips)
	a.mux.HandleFunc("/v1/ships/", a.handleShipByID)
	a.mux.HandleFunc("/v1/certificates", a.handleCertificates)
	a.mux.HandleFunc("/v1/certificates/", a.handleCertificateByID)
	a.mux.HandleFunc("/v1/incidents", a.handleIncidents)
	a.mux.HandleFunc("/v1/incidents/", a.handleIncidentByID)
	a.mux.HandleFunc("/v1/assessments", a.handleAssessments)
	a.mux.HandleFunc("/v1/assessments/", a.handleAssessmentByID)
	a.mux.HandleFunc("/v1/activity", a.handleActivity)
	a.mux.HandleFunc("/v1/activity/", a.handleActivityByID)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	if a.cfg.RateLimitPerSecond > 0 {
		h = RateLimit(h, a.cfg.RateLimitBurst, a.cfg.RateLimitPerSecond)
	}
	h = SecurityHeaders(h)
	h = CORS(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "crewdock-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "crewdock-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
