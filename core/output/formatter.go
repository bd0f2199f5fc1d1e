// Package output provides output formatting for pricing results.
// This package produces human and machine-readable outputs.
package output

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/engine"
	"shop-pricing/core/settings"
	"shop-pricing/internal/errors"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is a human-readable CLI table
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"

	// FormatMarkdown is a markdown report, e.g. for a work order or ticket
	FormatMarkdown Format = "markdown"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Quote renders a priced selection and, when recorded, its run id
	Quote(w io.Writer, q *engine.Quote) error

	// Catalog renders one catalog version
	Catalog(w io.Writer, cat *catalog.RateCatalog) error

	// Change renders the outcome of a settings update
	Change(w io.Writer, c *settings.Change) error

	// History renders stored catalog versions, newest first
	History(w io.Writer, versions []*catalog.RateCatalog) error

	// LogEntries renders settings change log entries
	LogEntries(w io.Writer, entries []audit.LogEntry) error

	// Run renders the frozen steps of a recorded run
	Run(w io.Writer, run *audit.Run) error
}

// Registry manages formatter registration
type Registry struct {
	mu         sync.RWMutex
	formatters map[Format]Formatter
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{formatters: make(map[Format]Formatter)}
}

// DefaultRegistry returns a registry holding the cli, json and markdown formatters
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NewCLIFormatter())
	_ = r.Register(NewJSONFormatter())
	_ = r.Register(NewMarkdownFormatter())
	return r
}

// Register adds a formatter; registering a format twice is an error
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.formatters[f.Format()]; ok {
		return fmt.Errorf("formatter %q already registered", f.Format())
	}
	r.formatters[f.Format()] = f
	return nil
}

// Get returns the formatter for a format name
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = string(FormatCLI)
	}
	f, ok := r.formatters[Format(name)]
	if !ok {
		return nil, errors.Validationf("unknown output format %q (want one of %v)", name, r.formatsLocked())
	}
	return f, nil
}

// Formats lists the registered format names, sorted
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatsLocked()
}

func (r *Registry) formatsLocked() []Format {
	out := make([]Format, 0, len(r.formatters))
	for f := range r.formatters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
