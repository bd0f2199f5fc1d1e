// Package api - API types
// Request bodies reuse the engine's types; these wrap list responses.
package api

import (
	"net/http"
	"strconv"
	"time"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
)

// PageInfo echoes the pagination that was applied
type PageInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// PricingLogsResponse is the body of GET /pricing-logs
type PricingLogsResponse struct {
	Entries []audit.LogEntry `json:"entries"`
	Page    PageInfo         `json:"page"`
}

// SettingsHistoryResponse is the body of GET /settings/history
type SettingsHistoryResponse struct {
	Versions []*catalog.RateCatalog `json:"versions"`
	Page     PageInfo               `json:"page"`
}

// SettingsResponse is the body of PATCH /settings
type SettingsResponse struct {
	Catalog *catalog.RateCatalog `json:"catalog"`
	Entries []audit.LogEntry     `json:"entries"`
	Changed bool                 `json:"changed"`
}

// parsePage reads limit and offset query parameters
func parsePage(r *http.Request) (db.Page, error) {
	var page db.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return db.Page{}, errors.Validationf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return page.Normalize(), nil
}

// parseAt reads the optional at query parameter (RFC 3339)
func parseAt(r *http.Request) (time.Time, bool, error) {
	v := r.URL.Query().Get("at")
	if v == "" {
		return time.Time{}, false, nil
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, errors.Validation("at must be an RFC 3339 timestamp")
	}
	return at, true, nil
}
