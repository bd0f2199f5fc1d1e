package output

import (
	"fmt"
	"io"
	"time"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/determinism"
	"shop-pricing/core/engine"
	"shop-pricing/core/settings"
)

// CLIFormatter renders box tables and aligned columns for a terminal
type CLIFormatter struct{}

// NewCLIFormatter creates the terminal formatter
func NewCLIFormatter() *CLIFormatter { return &CLIFormatter{} }

// Format implements Formatter
func (f *CLIFormatter) Format() Format { return FormatCLI }

const (
	boxTop    = "┌────────────────────────────────────────────────────────────────┐"
	boxRule   = "├────────────────────────────────────────────────────────────────┤"
	boxBottom = "└────────────────────────────────────────────────────────────────┘"
)

func boxRow(w io.Writer, label, value string) {
	fmt.Fprintf(w, "│ %-40s %21s │\n", label, value)
}

// Quote implements Formatter
func (f *CLIFormatter) Quote(w io.Writer, q *engine.Quote) error {
	b := q.Breakdown
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxTop)
	boxRow(w, "Service", "Total")
	fmt.Fprintln(w, boxRule)
	for _, l := range b.Lines {
		boxRow(w, fmt.Sprintf("%s x%d", l.ServiceKey, l.Quantity), l.Total.StringRaw())
		if !l.Labor.IsZero() {
			fmt.Fprintf(w, "│   └─ %-36s %21s │\n", fmt.Sprintf("labor %sh", l.LaborHours), l.Labor.StringRaw())
		}
		if !l.Parts.IsZero() {
			fmt.Fprintf(w, "│   └─ %-36s %21s │\n", "parts", l.Parts.StringRaw())
		}
	}
	fmt.Fprintln(w, boxRule)
	boxRow(w, "Base price", b.BasePrice.StringRaw())
	boxRow(w, fmt.Sprintf("Urgency %s x%s", b.SelectedUrgency, b.UrgencyMultiplier), b.AfterUrgency.StringRaw())
	for _, d := range b.AppliedDiscounts {
		label := fmt.Sprintf("%s -%s%%", d.Kind, d.Percentage)
		if d.Clamped {
			label += " (clamped)"
		}
		boxRow(w, label, "-"+d.AmountRemoved.StringRaw())
	}
	fmt.Fprintln(w, boxRule)
	boxRow(w, "FINAL PRICE", b.FinalPrice.String())
	fmt.Fprintln(w, boxBottom)
	if q.Run != nil {
		fmt.Fprintf(w, "\nRecorded run %s\n", q.Run.ID)
	}
	return nil
}

// Catalog implements Formatter
func (f *CLIFormatter) Catalog(w io.Writer, cat *catalog.RateCatalog) error {
	if cat.IsDefault {
		fmt.Fprintln(w, "No saved settings; showing the default catalog.")
	}
	if cat.Version > 0 {
		fmt.Fprintf(w, "Version %d (%s) by %s at %s\n", cat.Version, cat.ID, cat.UpdatedBy, cat.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Currency:      %s\n", cat.CurrencyOrDefault())
	fmt.Fprintf(w, "Labor rate:    %s/h\n", cat.LaborRate)
	fmt.Fprintf(w, "Parts markup:  x%s\n", cat.PartsMarkup)

	fmt.Fprintln(w, "\nServices:")
	for _, key := range determinism.SortedKeys(cat.ServiceRates) {
		fmt.Fprintf(w, "  %-30s %12s\n", key, cat.ServiceRates[key])
	}

	fmt.Fprintln(w, "\nUrgency:")
	for _, tier := range determinism.SortedKeys(cat.UrgencyMultipliers) {
		fmt.Fprintf(w, "  %-30s %12s\n", tier, "x"+cat.UrgencyMultipliers[tier].String())
	}

	fmt.Fprintln(w, "\nDiscounts (applied in this order):")
	if len(cat.Discounts) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for i, r := range cat.Discounts {
		fmt.Fprintf(w, "  %d. %-12s %6s%%  %-8s %s\n", i+1, r.Kind, r.Percentage, enabledLabel(r.Enabled), r.Canonical())
	}
	return nil
}

// Change implements Formatter
func (f *CLIFormatter) Change(w io.Writer, c *settings.Change) error {
	if !c.Changed() {
		fmt.Fprintln(w, "Nothing changed; no new version written.")
		return nil
	}
	fmt.Fprintf(w, "Saved version %d (%s)\n\n", c.Catalog.Version, c.Catalog.ID)
	for _, e := range c.Entries {
		fmt.Fprintf(w, "  %-36s %s -> %s\n", e.FieldName, orDash(e.OldValue), orDash(e.NewValue))
	}
	return nil
}

// History implements Formatter
func (f *CLIFormatter) History(w io.Writer, versions []*catalog.RateCatalog) error {
	if len(versions) == 0 {
		fmt.Fprintln(w, "No saved versions.")
	}
	for _, v := range versions {
		fmt.Fprintf(w, "v%-4d %s  %s  %s\n", v.Version, v.UpdatedAt.Format(time.RFC3339), v.UpdatedBy, v.ID)
	}
	return nil
}

// LogEntries implements Formatter
func (f *CLIFormatter) LogEntries(w io.Writer, entries []audit.LogEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No log entries.")
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-8s %-36s %s -> %s  (%s)\n",
			e.UpdatedAt.Format(time.RFC3339), e.ChangeType, e.FieldName, orDash(e.OldValue), orDash(e.NewValue), e.UpdatedBy)
		if e.Reason != "" {
			fmt.Fprintf(w, "    reason: %s\n", e.Reason)
		}
	}
	return nil
}

// Run implements Formatter
func (f *CLIFormatter) Run(w io.Writer, run *audit.Run) error {
	fmt.Fprintf(w, "Run %s by %s at %s\n", run.ID, run.ActorID, run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Catalog %s  hash %s\n\n", run.CatalogVersionID, run.ContentHash)
	for _, s := range run.Steps {
		fmt.Fprintf(w, "%d. %-20s %s\n", s.Sequence, s.Stage, s.Title)
		fmt.Fprintf(w, "   %s\n", string(s.Data))
		if s.RLData != nil {
			fmt.Fprintf(w, "   rl[%s]: %s\n", s.RLData.Namespace, string(s.RLData.Payload))
		}
	}
	return nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
