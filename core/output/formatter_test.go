package output

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/engine"
	"shop-pricing/core/pricing"
	"shop-pricing/core/principal"
	"shop-pricing/core/settings"
	"shop-pricing/db"
	"shop-pricing/db/memory"
	"shop-pricing/internal/errors"
)

var owner = principal.Principal{UserID: "owner-1", TenantID: "shop-1", Role: principal.RoleOwner}

// fixtures prices and records one emergency oil change, then raises the
// parts markup once so every renderer has something to show.
func fixtures(t *testing.T) (*engine.Quote, *settings.Change, []*catalog.RateCatalog, []audit.LogEntry) {
	t.Helper()
	ctx := context.Background()
	eng := engine.New(memory.New(), engine.Config{Fallback: catalog.Default})

	q, err := eng.Quote(ctx, owner, "shop-1", engine.QuoteRequest{
		Request: pricing.Request{
			Selection: []pricing.ServiceSelection{{ServiceKey: "oil_change", Quantity: 1}},
			Urgency:   catalog.UrgencyEmergency,
		},
		Record: true,
		RLData: &audit.RLData{Namespace: "her.v1", Payload: json.RawMessage(`{"score":0.8}`)},
	})
	require.NoError(t, err)

	markup := decimal.RequireFromString("1.30")
	change, err := eng.UpdateSettings(ctx, owner, "shop-1", settings.Update{PartsMarkup: &markup, Reason: "supplier | costs"})
	require.NoError(t, err)

	history, err := eng.SettingsHistory(ctx, owner, "shop-1", db.Page{})
	require.NoError(t, err)
	entries, err := eng.GetPricingLogs(ctx, owner, "shop-1", db.Page{})
	require.NoError(t, err)
	return q, change, history, entries
}

func renderAll(t *testing.T, f Formatter) string {
	t.Helper()
	q, change, history, entries := fixtures(t)
	var buf bytes.Buffer
	require.NoError(t, f.Quote(&buf, q))
	require.NoError(t, f.Catalog(&buf, change.Catalog))
	require.NoError(t, f.Change(&buf, change))
	require.NoError(t, f.History(&buf, history))
	require.NoError(t, f.LogEntries(&buf, entries))
	require.NoError(t, f.Run(&buf, q.Run))
	return buf.String()
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []Format{FormatCLI, FormatJSON, FormatMarkdown}, r.Formats())

	f, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, FormatCLI, f.Format())

	_, err = r.Get("html")
	assert.True(t, errors.IsType(err, errors.TypeValidation))

	assert.Error(t, r.Register(NewJSONFormatter()))
}

func TestCLIFormatter(t *testing.T) {
	out := renderAll(t, NewCLIFormatter())
	assert.Contains(t, out, "oil_change x1")
	assert.Contains(t, out, "Urgency emergency x1.5")
	assert.Contains(t, out, "FINAL PRICE")
	assert.Contains(t, out, "Recorded run ")
	assert.Contains(t, out, "Saved version 1")
	assert.Contains(t, out, "parts_markup")
	assert.Contains(t, out, "reason: supplier | costs")
	assert.Contains(t, out, "rl[her.v1]")
}

func TestJSONFormatterWritesWireForm(t *testing.T) {
	q, _, _, _ := fixtures(t)
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter().Quote(&buf, q))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "finalPrice")

	buf.Reset()
	require.NoError(t, NewJSONFormatter().LogEntries(&buf, nil))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestMarkdownFormatterEscapesCells(t *testing.T) {
	out := renderAll(t, NewMarkdownFormatter())
	assert.Contains(t, out, "## Quote for shop-1")
	assert.Contains(t, out, "**Final price: ")
	assert.Contains(t, out, "## Catalog v1")
	assert.Contains(t, out, `supplier \| costs`)
	assert.Contains(t, out, "RL metadata `her.v1`")
}

func TestChangeWithoutEntries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCLIFormatter().Change(&buf, &settings.Change{}))
	assert.Contains(t, buf.String(), "Nothing changed")
}
