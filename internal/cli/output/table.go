package output

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
)

// Tabular is implemented by results that know how to lay themselves out as
// one or more tables.
type Tabular interface {
	Tables() []*Table
}

// TableFormatter formats data as aligned text tables.
type TableFormatter struct {
	NoHeaders bool
}

// Format renders a *Table, a []*Table or a Tabular value. Anything else is
// written as indented JSON.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	var tables []*Table
	switch v := data.(type) {
	case nil:
		return nil
	case *Table:
		tables = []*Table{v}
	case []*Table:
		tables = v
	case Tabular:
		tables = v.Tables()
	default:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	}

	for i, t := range tables {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := t.RenderWithOptions(w, f.NoHeaders); err != nil {
			return err
		}
	}
	return nil
}

// Table represents tabular data with an optional title line.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(title string, headers ...string) *Table {
	return &Table{Title: title, Headers: headers}
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table, without the header row when
// noHeaders is set.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	if t.Title != "" {
		if _, err := fmt.Fprintln(w, t.Title); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Counters renders a counter map as "k=v" pairs in key order, or "-" when
// empty. Whole numbers print without a fraction.
func Counters[V int | uint64 | float64](m map[string]V) string {
	if len(m) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		key := k
		if key == "" {
			key = "total"
		}
		parts = append(parts, key+"="+Number(float64(m[k])))
	}
	return strings.Join(parts, ", ")
}

// Number formats a float, dropping the fraction of whole values.
func Number(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// Duration formats d rounded to the microsecond.
func Duration(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}

// Time formats t, or "-" for the zero time.
func Time(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// Bool formats b as yes or no.
func Bool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
