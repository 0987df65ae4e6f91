// Package httpapi exposes the login engine over HTTP.
//
// Routes:
//
//	POST /api/v1/auth/login      {"email","password"}
//	POST /api/v1/auth/federated  bearer federation token, {"email","display_name","avatar_url","provider"}
//	GET  /api/v1/auth/session    bearer session token
//	GET  /healthz
//	GET  /metrics
//
// Every security decision is answered with 401 {"error":"authentication failed"}.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/loginguard"
	"github.com/MrEthical07/loginguard/internal/logging"
	"github.com/MrEthical07/loginguard/jwt"
	"github.com/MrEthical07/loginguard/middleware"
	"github.com/google/uuid"
)

// Engine is the subset of *loginguard.Engine the handlers use.
type Engine interface {
	middleware.SessionParser
	Login(ctx context.Context, req loginguard.LoginRequest) (*loginguard.LoginResult, error)
	LoginFederated(ctx context.Context, id loginguard.FederatedIdentity) (*loginguard.LoginResult, error)
	Session(claims *jwt.SessionClaims) loginguard.Session
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	// FederationToken authorizes callers of the federated endpoint. Empty
	// disables the endpoint.
	FederationToken string
	MaxBodyBytes    int64
	Metrics         http.Handler
	Health          map[string]HealthCheck
	Logger          logging.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	engine          Engine
	federationToken []byte
	maxBody         int64
	metrics         http.Handler
	health          map[string]HealthCheck
	log             logging.Logger
}

// New returns a Server backed by engine.
func New(engine Engine, opts Options) *Server {
	s := &Server{
		engine:  engine,
		maxBody: opts.MaxBodyBytes,
		metrics: opts.Metrics,
		health:  opts.Health,
		log:     opts.Logger,
	}
	if opts.FederationToken != "" {
		s.federationToken = []byte(opts.FederationToken)
	}
	if s.maxBody <= 0 {
		s.maxBody = 1 << 16
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

// Handler returns the routed handler with request-id and origin middleware
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", s.login)
	mux.HandleFunc("POST /api/v1/auth/federated", s.federated)
	mux.Handle("GET /api/v1/auth/session", middleware.RequireSession(s.engine)(http.HandlerFunc(s.session)))
	mux.HandleFunc("GET /healthz", s.healthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.requestID(middleware.Origin(mux))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Provider    string `json:"provider"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !s.decode(w, r, &body) {
		return
	}

	res, err := s.engine.Login(r.Context(), loginguard.LoginRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) federated(w http.ResponseWriter, r *http.Request) {
	if !s.federationAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var body federatedRequest
	if !s.decode(w, r, &body) {
		return
	}

	res, err := s.engine.LoginFederated(r.Context(), loginguard.FederatedIdentity{
		Email:       body.Email,
		DisplayName: body.DisplayName,
		AvatarURL:   body.AvatarURL,
		Provider:    body.Provider,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) federationAuthorized(r *http.Request) bool {
	if len(s.federationToken) == 0 {
		return false
	}
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), s.federationToken) == 1
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	claims, ok := loginguard.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Session(claims))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			status[name] = "unavailable"
			code = http.StatusServiceUnavailable
			s.log.Warn(ctx, "health check failed", "dependency", name, "error", err)
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, status)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return false
	}
	return true
}

// writeError maps engine errors onto status codes. Decision reasons never
// reach the response body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, loginguard.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
	case errors.Is(err, loginguard.ErrAuthenticationFailed):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication failed"})
	case errors.Is(err, loginguard.ErrDependencyUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})
	default:
		s.log.Error(r.Context(), "login handler error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
