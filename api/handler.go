// Package api - HTTP handlers
// Handlers wrap the engine; they contain NO pricing logic.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"shop-pricing/core/engine"
	"shop-pricing/core/settings"
	"shop-pricing/internal/errors"
)

const maxBodyBytes = 1 << 20

// handleQuote handles POST /v1/tenants/{tenantID}/quotes
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	p, tenantID := caller(r)

	var req engine.QuoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	q, err := s.engine.Quote(r.Context(), p, tenantID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if q.Run != nil {
		status = http.StatusCreated
	}
	writeJSON(w, q, status)
}

// handleGetSettings handles GET /v1/tenants/{tenantID}/settings[?at=]
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	p, tenantID := caller(r)

	at, ok, err := parseAt(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ok {
		cat, err := s.engine.Settings().SettingsAt(r.Context(), p, tenantID, at)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, cat, http.StatusOK)
		return
	}

	cat, err := s.engine.CurrentSettings(r.Context(), p, tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, cat, http.StatusOK)
}

// handleUpdateSettings handles PATCH /v1/tenants/{tenantID}/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	p, tenantID := caller(r)

	// authorize before reading the body
	if err := p.RequireWrite(tenantID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var u settings.Update
	if err := decodeBody(r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}

	change, err := s.engine.UpdateSettings(r.Context(), p, tenantID, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, SettingsResponse{
		Catalog: change.Catalog,
		Entries: change.Entries,
		Changed: change.Changed(),
	}, http.StatusOK)
}

// handleSettingsHistory handles GET /v1/tenants/{tenantID}/settings/history
func (s *Server) handleSettingsHistory(w http.ResponseWriter, r *http.Request) {
	p, tenantID := caller(r)

	page, err := parsePage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	versions, err := s.engine.SettingsHistory(r.Context(), p, tenantID, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, SettingsHistoryResponse{
		Versions: versions,
		Page:     PageInfo{Limit: page.Limit, Offset: page.Offset, Count: len(versions)},
	}, http.StatusOK)
}

// handlePricingLogs handles GET /v1/tenants/{tenantID}/pricing-logs
func (s *Server) handlePricingLogs(w http.ResponseWriter, r *http.Request) {
	p, tenantID := caller(r)

	page, err := parsePage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.engine.GetPricingLogs(r.Context(), p, tenantID, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, PricingLogsResponse{
		Entries: entries,
		Page:    PageInfo{Limit: page.Limit, Offset: page.Offset, Count: len(entries)},
	}, http.StatusOK)
}

// handleRunSteps handles GET /v1/tenants/{tenantID}/pricing-runs/{runID}/steps
func (s *Server) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	p, tenantID := caller(r)

	run, err := s.engine.GetPricingLogSteps(r.Context(), p, tenantID, mux.Vars(r)["runID"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, run, http.StatusOK)
}

// decodeBody decodes a single JSON document, rejecting unknown fields
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.Validation("request body is required")
		}
		return errors.Validationf("invalid JSON body: %v", err)
	}
	if dec.More() {
		return errors.Validation("request body must contain a single JSON document")
	}
	return nil
}
