// Package api - Thin HTTP layer over the pricing engine
// The API is ONLY responsible for: authentication, request decoding,
// engine calls and response encoding. It NEVER performs pricing logic.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"shop-pricing/core/engine"
	"shop-pricing/core/principal"
	"shop-pricing/internal/errors"
	"shop-pricing/internal/logging"
	"shop-pricing/internal/metrics"
)

// TokenResolver turns a bearer token into a principal
type TokenResolver interface {
	Resolve(token string) (principal.Principal, error)
}

// Server is the API server
type Server struct {
	engine  *engine.Engine
	auth    TokenResolver
	router  *mux.Router
	version string
	log     *zap.Logger
}

// NewServer creates a new API server
func NewServer(version string, eng *engine.Engine, auth TokenResolver) *Server {
	s := &Server{
		engine:  eng,
		auth:    auth,
		router:  mux.NewRouter(),
		version: version,
		log:     logging.Named("api"),
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.Use(requestIDMiddleware, metrics.InstrumentHandler)

	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Tenant endpoints
	t := s.router.PathPrefix("/v1/tenants/{tenantID}").Subrouter()
	t.Use(s.authMiddleware)
	t.HandleFunc("/quotes", s.handleQuote).Methods(http.MethodPost)
	t.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	t.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPatch)
	t.HandleFunc("/settings/history", s.handleSettingsHistory).Methods(http.MethodGet)
	t.HandleFunc("/pricing-logs", s.handlePricingLogs).Methods(http.MethodGet)
	t.HandleFunc("/pricing-runs/{runID}/steps", s.handleRunSteps).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errors.NotFound("route", r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, errorBody{Error: errorDetail{Code: "METHOD_NOT_ALLOWED", Message: r.Method + " not allowed"}}, http.StatusMethodNotAllowed)
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if err := s.engine.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, map[string]interface{}{
		"status":  status,
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, code)
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"version":     s.version,
		"engine":      "shop-pricing",
		"api_version": "v1",
	}, http.StatusOK)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer wraps the router in an http.Server with the given timeouts
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"requestId,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps the error kind to a status. Internal causes are logged,
// never returned to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errType := errors.TypeOf(err)
	status := statusFor(errType)

	detail := errorDetail{Code: string(errType), Message: err.Error(), RequestID: w.Header().Get(requestIDHeader)}
	var e *errors.Error
	if errors.As(err, &e) {
		detail.Message = e.Message
		if status < http.StatusInternalServerError {
			detail.Context = e.Context
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", detail.RequestID),
			zap.Error(err),
		)
	}
	writeJSON(w, errorBody{Error: detail}, status)
}

func statusFor(t errors.Type) int {
	switch t {
	case errors.TypeValidation:
		return http.StatusBadRequest
	case errors.TypeUnauthenticated:
		return http.StatusUnauthorized
	case errors.TypeAuthorization:
		return http.StatusForbidden
	case errors.TypeNotFound:
		return http.StatusNotFound
	case errors.TypeStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
