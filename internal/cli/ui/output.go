package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/tuplesaver/tuplesaver/internal/orm/migrate"
)

// Printer writes status lines, colored unless disabled
type Printer struct {
	w       io.Writer
	noColor bool
}

// NewPrinter creates a printer over w
func NewPrinter(w io.Writer, noColor bool) *Printer {
	return &Printer{w: w, noColor: noColor}
}

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer { return p.w }

// NoColor reports whether color is disabled
func (p *Printer) NoColor() bool { return p.noColor }

func (p *Printer) print(c *color.Color, symbol, format string, args ...any) {
	if p.noColor {
		c.DisableColor()
	}
	c.Fprintf(p.w, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

// Success prints a green line
func (p *Printer) Success(format string, args ...any) {
	p.print(color.New(color.FgGreen, color.Bold), "✓", format, args...)
}

// Info prints a cyan line
func (p *Printer) Info(format string, args ...any) {
	p.print(color.New(color.FgCyan), "→", format, args...)
}

// Warn prints a yellow line
func (p *Printer) Warn(format string, args ...any) {
	p.print(color.New(color.FgYellow), "⚠", format, args...)
}

// Error prints a red line
func (p *Printer) Error(format string, args ...any) {
	p.print(color.New(color.FgRed, color.Bold), "✗", format, args...)
}

// StateColor returns the color a migration state is shown in
func StateColor(s migrate.State) *color.Color {
	switch s {
	case migrate.StateCurrent:
		return color.New(color.FgGreen, color.Bold)
	case migrate.StatePending, migrate.StateDrift:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

// RenderCheck prints the state of a migration check, its findings, and a
// table of the scripts it saw
func RenderCheck(w io.Writer, result *migrate.CheckResult, noColor bool) {
	state := StateColor(result.State())
	if noColor {
		state.DisableColor()
	}
	state.Fprintf(w, "State: %s\n", result.State())
	fmt.Fprintln(w, result.Status())

	if len(result.Applied)+len(result.Pending) == 0 {
		return
	}
	fmt.Fprintln(w)

	divergent := make(map[string]bool, len(result.Divergent))
	for _, name := range result.Divergent {
		divergent[name] = true
	}
	table := NewTable(w, noColor, "SCRIPT", "STATUS")
	for _, name := range result.Applied {
		if divergent[name] {
			table.AddColoredRow(color.New(color.FgRed), name, "diverged")
			continue
		}
		table.AddColoredRow(color.New(color.FgGreen), name, "applied")
	}
	for _, name := range result.Pending {
		table.AddColoredRow(color.New(color.FgYellow), name, "pending")
	}
	table.Render()
}
