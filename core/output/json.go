package output

import (
	"encoding/json"
	"io"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/engine"
	"shop-pricing/core/settings"
)

// JSONFormatter writes indented JSON using each type's wire form
type JSONFormatter struct{}

// NewJSONFormatter creates the JSON formatter
func NewJSONFormatter() *JSONFormatter { return &JSONFormatter{} }

// Format implements Formatter
func (f *JSONFormatter) Format() Format { return FormatJSON }

func (f *JSONFormatter) write(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Quote implements Formatter
func (f *JSONFormatter) Quote(w io.Writer, q *engine.Quote) error { return f.write(w, q) }

// Catalog implements Formatter
func (f *JSONFormatter) Catalog(w io.Writer, cat *catalog.RateCatalog) error { return f.write(w, cat) }

// Change implements Formatter
func (f *JSONFormatter) Change(w io.Writer, c *settings.Change) error { return f.write(w, c) }

// History implements Formatter
func (f *JSONFormatter) History(w io.Writer, versions []*catalog.RateCatalog) error {
	if versions == nil {
		versions = []*catalog.RateCatalog{}
	}
	return f.write(w, versions)
}

// LogEntries implements Formatter
func (f *JSONFormatter) LogEntries(w io.Writer, entries []audit.LogEntry) error {
	if entries == nil {
		entries = []audit.LogEntry{}
	}
	return f.write(w, entries)
}

// Run implements Formatter
func (f *JSONFormatter) Run(w io.Writer, run *audit.Run) error { return f.write(w, run) }
