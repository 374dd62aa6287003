// Package ui renders command output: colored status lines, tables and
// suggestions for mistyped names.
package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table represents a simple table for displaying tabular data
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]cell
	noColor bool
}

type cell struct {
	text  string
	color *color.Color
}

// NewTable creates a new table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{writer: w, headers: headers, noColor: noColor}
}

// AddRow adds a row of plain cells
func (t *Table) AddRow(cells ...string) {
	row := make([]cell, len(cells))
	for i, c := range cells {
		row[i] = cell{text: c}
	}
	t.rows = append(t.rows, row)
}

// AddColoredRow adds a row whose last cell is printed in c
func (t *Table) AddColoredRow(c *color.Color, cells ...string) {
	t.AddRow(cells...)
	if len(cells) > 0 {
		t.rows[len(t.rows)-1][len(cells)-1].color = c
	}
}

// Render renders the table to the writer
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(c.text))
			}
		}
	}

	bold := t.paint(color.New(color.Bold, color.FgCyan))
	for i, h := range t.headers {
		bold.Fprint(t.writer, t.pad(h, widths, i))
	}
	fmt.Fprintln(t.writer)

	gray := t.paint(color.New(color.FgHiBlack))
	for i, w := range widths {
		gray.Fprint(t.writer, t.pad(strings.Repeat("─", w), widths, i))
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i, c := range row {
			if i >= len(widths) {
				break
			}
			text := t.pad(c.text, widths, i)
			if c.color != nil {
				t.paint(c.color).Fprint(t.writer, text)
			} else {
				fmt.Fprint(t.writer, text)
			}
		}
		fmt.Fprintln(t.writer)
	}
}

// pad right-pads a cell to its column, leaving the last column unpadded
func (t *Table) pad(s string, widths []int, col int) string {
	if col == len(widths)-1 {
		return s
	}
	n := widths[col] - utf8.RuneCountInString(s)
	return s + strings.Repeat(" ", max(n, 0)) + "  "
}

func (t *Table) paint(c *color.Color) *color.Color {
	if t.noColor {
		c = color.New()
		c.DisableColor()
	}
	return c
}

// KeyValueTable renders aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair to the table
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render renders the key-value table
func (t *KeyValueTable) Render() {
	width := 0
	for _, k := range t.keys {
		width = max(width, len(k)+1)
	}
	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for i, k := range t.keys {
		cyan.Fprint(t.writer, k+":"+strings.Repeat(" ", width-len(k)-1))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}
