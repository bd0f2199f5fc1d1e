package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/determinism"
	"shop-pricing/core/engine"
	"shop-pricing/core/settings"
)

// MarkdownFormatter renders GitHub-flavored markdown tables
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates the markdown formatter
func NewMarkdownFormatter() *MarkdownFormatter { return &MarkdownFormatter{} }

// Format implements Formatter
func (f *MarkdownFormatter) Format() Format { return FormatMarkdown }

// cell escapes pipes so free text cannot break a table row
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Quote implements Formatter
func (f *MarkdownFormatter) Quote(w io.Writer, q *engine.Quote) error {
	b := q.Breakdown
	fmt.Fprintf(w, "## Quote for %s\n\n", b.TenantID)
	fmt.Fprintln(w, "| Service | Qty | Service | Labor | Parts | Total |")
	fmt.Fprintln(w, "|---|---:|---:|---:|---:|---:|")
	for _, l := range b.Lines {
		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s |\n",
			cell(l.ServiceKey), l.Quantity, l.Service.StringRaw(), l.Labor.StringRaw(), l.Parts.StringRaw(), l.Total.StringRaw())
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "- Base price: %s\n", b.BasePrice.StringRaw())
	fmt.Fprintf(w, "- Urgency `%s` x%s: %s\n", b.SelectedUrgency, b.UrgencyMultiplier, b.AfterUrgency.StringRaw())
	for _, d := range b.AppliedDiscounts {
		clamped := ""
		if d.Clamped {
			clamped = " (clamped)"
		}
		fmt.Fprintf(w, "- Discount `%s` %s%%%s: -%s\n", d.Kind, d.Percentage, clamped, d.AmountRemoved.StringRaw())
	}
	fmt.Fprintf(w, "\n**Final price: %s**\n", b.FinalPrice.String())
	if q.Run != nil {
		fmt.Fprintf(w, "\nRecorded run `%s`\n", q.Run.ID)
	}
	return nil
}

// Catalog implements Formatter
func (f *MarkdownFormatter) Catalog(w io.Writer, cat *catalog.RateCatalog) error {
	if cat.Version > 0 {
		fmt.Fprintf(w, "## Catalog v%d\n\n", cat.Version)
		fmt.Fprintf(w, "Saved by %s at %s\n\n", cell(cat.UpdatedBy), cat.UpdatedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "## Default catalog")
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "- Currency: %s\n", cat.CurrencyOrDefault())
	fmt.Fprintf(w, "- Labor rate: %s/h\n", cat.LaborRate)
	fmt.Fprintf(w, "- Parts markup: x%s\n\n", cat.PartsMarkup)

	fmt.Fprintln(w, "| Service | Base rate |")
	fmt.Fprintln(w, "|---|---:|")
	for _, key := range determinism.SortedKeys(cat.ServiceRates) {
		fmt.Fprintf(w, "| %s | %s |\n", cell(key), cat.ServiceRates[key])
	}

	fmt.Fprintln(w, "\n| Urgency | Multiplier |")
	fmt.Fprintln(w, "|---|---:|")
	for _, tier := range determinism.SortedKeys(cat.UrgencyMultipliers) {
		fmt.Fprintf(w, "| %s | %s |\n", cell(string(tier)), cat.UrgencyMultipliers[tier])
	}

	fmt.Fprintln(w, "\n| # | Discount | Percent | State | Criteria |")
	fmt.Fprintln(w, "|---:|---|---:|---|---|")
	for i, r := range cat.Discounts {
		fmt.Fprintf(w, "| %d | %s | %s | %s | `%s` |\n", i+1, cell(string(r.Kind)), r.Percentage, enabledLabel(r.Enabled), r.Canonical())
	}
	return nil
}

// Change implements Formatter
func (f *MarkdownFormatter) Change(w io.Writer, c *settings.Change) error {
	if !c.Changed() {
		fmt.Fprintln(w, "_No changes._")
		return nil
	}
	fmt.Fprintf(w, "## Settings v%d\n\n", c.Catalog.Version)
	return f.LogEntries(w, c.Entries)
}

// History implements Formatter
func (f *MarkdownFormatter) History(w io.Writer, versions []*catalog.RateCatalog) error {
	fmt.Fprintln(w, "| Version | Saved at | By | ID |")
	fmt.Fprintln(w, "|---:|---|---|---|")
	for _, v := range versions {
		fmt.Fprintf(w, "| %d | %s | %s | `%s` |\n", v.Version, v.UpdatedAt.Format(time.RFC3339), cell(v.UpdatedBy), v.ID)
	}
	return nil
}

// LogEntries implements Formatter
func (f *MarkdownFormatter) LogEntries(w io.Writer, entries []audit.LogEntry) error {
	fmt.Fprintln(w, "| When | Change | Field | Old | New | By | Reason |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, e := range entries {
		fmt.Fprintf(w, "| %s | %s | `%s` | %s | %s | %s | %s |\n",
			e.UpdatedAt.Format(time.RFC3339), e.ChangeType, e.FieldName,
			cell(orDash(e.OldValue)), cell(orDash(e.NewValue)), cell(e.UpdatedBy), cell(e.Reason))
	}
	return nil
}

// Run implements Formatter
func (f *MarkdownFormatter) Run(w io.Writer, run *audit.Run) error {
	fmt.Fprintf(w, "## Pricing run `%s`\n\n", run.ID)
	fmt.Fprintf(w, "Recorded by %s at %s against catalog `%s`\n\n", cell(run.ActorID), run.CreatedAt.Format(time.RFC3339), run.CatalogVersionID)
	for _, s := range run.Steps {
		fmt.Fprintf(w, "### %d. %s\n\n%s\n\n```json\n%s\n```\n\n", s.Sequence, s.Title, s.Description, string(s.Data))
		if s.RLData != nil {
			fmt.Fprintf(w, "RL metadata `%s`:\n\n```json\n%s\n```\n\n", s.RLData.Namespace, string(s.RLData.Payload))
		}
	}
	return nil
}
