// Package ui - Terminal user interface
// Operator output for pipeline runs: colored status lines, tables and JSON.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// ANSI styles
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
)

// Verbosity levels
const (
	Quiet = iota
	Normal
	Verbose
)

// Writer renders operator output
type Writer struct {
	out       io.Writer
	noColor   bool
	verbosity int
}

// NewWriter creates a writer on out, stdout when nil.
func NewWriter(out io.Writer, noColor bool) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{out: out, noColor: noColor, verbosity: Normal}
}

// SetVerbosity sets the level below which Info and Debug are dropped.
func (w *Writer) SetVerbosity(level int) {
	w.verbosity = level
}

func (w *Writer) style(s, text string) string {
	if w.noColor || s == "" {
		return text
	}
	return s + text + Reset
}

// JSON writes v as indented JSON
func (w *Writer) JSON(v interface{}) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Print writes formatted text
func (w *Writer) Print(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

// Println writes formatted text and a newline
func (w *Writer) Println(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Header prints a section title surrounded by blank lines
func (w *Writer) Header(title string) {
	fmt.Fprintf(w.out, "\n%s\n\n", w.style(Bold+Cyan, "━━━ "+title+" ━━━"))
}

func (w *Writer) status(min int, icon, s, format string, args []interface{}) {
	if w.verbosity < min {
		return
	}
	fmt.Fprintf(w.out, "%s %s\n", w.style(s, icon), fmt.Sprintf(format, args...))
}

// Success prints a success line
func (w *Writer) Success(format string, args ...interface{}) {
	w.status(Quiet, "✓", Green, format, args)
}

// Warning prints a warning line
func (w *Writer) Warning(format string, args ...interface{}) {
	w.status(Quiet, "⚠", Yellow, format, args)
}

// Error prints an error line
func (w *Writer) Error(format string, args ...interface{}) {
	w.status(Quiet, "✗", Red, format, args)
}

// Info prints at Normal verbosity
func (w *Writer) Info(format string, args ...interface{}) {
	w.status(Normal, "ℹ", Blue, format, args)
}

// Debug prints at Verbose verbosity
func (w *Writer) Debug(format string, args ...interface{}) {
	w.status(Verbose, " ", Dim, format, args)
}

// Table collects rows and renders them with aligned columns
type Table struct {
	w       *Writer
	headers []string
	rows    [][]string
	widths  []int
	right   map[int]bool
}

// NewTable creates a table with the given column headers
func (w *Writer) NewTable(headers ...string) *Table {
	t := &Table{w: w, headers: headers, widths: make([]int, len(headers)), right: map[int]bool{}}
	for i, h := range headers {
		t.widths[i] = utf8.RuneCountInString(h)
	}
	return t
}

// AlignRight right-aligns the given columns, for counts and amounts.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// AddRow appends a row; missing cells are blank and extra cells dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	for i, cell := range row {
		if n := utf8.RuneCountInString(cell); n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render prints the header, a rule and every row.
func (t *Table) Render() {
	var b strings.Builder

	b.WriteString(t.w.style(Bold, t.line(t.headers)))
	b.WriteByte('\n')

	rule := make([]string, len(t.widths))
	for i, width := range t.widths {
		rule[i] = strings.Repeat("─", width)
	}
	b.WriteString(strings.Join(rule, "─┼─"))
	b.WriteByte('\n')

	for _, row := range t.rows {
		b.WriteString(t.line(row))
		b.WriteByte('\n')
	}
	io.WriteString(t.w.out, b.String())
}

func (t *Table) line(cells []string) string {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		if t.right[i] {
			padded[i] = fmt.Sprintf("%*s", t.widths[i], cell)
		} else {
			padded[i] = fmt.Sprintf("%-*s", t.widths[i], cell)
		}
	}
	return strings.Join(padded, " │ ")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "< 1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
