package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type twoTables struct{}

func (twoTables) Tables() []*Table {
	a := NewTable("PROCESSES", "PID", "EXIT")
	a.AddRow("100", "42")
	b := NewTable("PARENT", "TID", "PENDING")
	b.AddRow("100", "SIGCHLD")
	return []*Table{a, b}
}

func TestTableFormatter_Format(t *testing.T) {
	tbl := NewTable("", "NAME", "VALUE")
	tbl.AddRow("key1", "value1")
	tbl.AddRow("a-much-longer-key", "v")

	tests := []struct {
		name      string
		data      any
		noHeaders bool
		contains  []string
		excludes  []string
	}{
		{"table", tbl, false, []string{"NAME", "key1", "a-much-longer-key"}, nil},
		{"no headers", tbl, true, []string{"key1"}, []string{"NAME"}},
		{"slice", []*Table{tbl, tbl}, false, []string{"v\n\nNAME"}, nil},
		{"tabular", twoTables{}, false, []string{"PROCESSES\nPID", "PARENT\nTID", "SIGCHLD"}, nil},
		{"fallback json", map[string]int{"threads": 4}, false, []string{`"threads": 4`}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := &TableFormatter{NoHeaders: tt.noHeaders}
			if err := f.Format(&buf, tt.data); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			out := buf.String()
			for _, s := range tt.contains {
				if !strings.Contains(out, s) {
					t.Errorf("Format() = %q, missing %q", out, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(out, s) {
					t.Errorf("Format() = %q, should not contain %q", out, s)
				}
			}
		})
	}
}

func TestTableFormatter_Format_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, nil); err != nil {
		t.Fatalf("Format(nil) error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Format(nil) wrote %q", buf.String())
	}
}

func TestTable_RenderAligns(t *testing.T) {
	tbl := NewTable("", "A", "B")
	tbl.AddRow("x", "1")
	tbl.AddRow("longer", "2")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if strings.Index(lines[0], "B") != strings.Index(lines[2], "2") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestCounters(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"empty", Counters(map[string]float64{}), "-"},
		{"sorted", Counters(map[string]float64{"remote": 1, "local_parent": 3}), "local_parent=3, remote=1"},
		{"unlabelled", Counters(map[string]float64{"": 2}), "total=2"},
		{"ints", Counters(map[string]int{"exec": 1}), "exec=1"},
		{"fraction", Counters(map[string]float64{"x": 0.5}), "x=0.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Counters() = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := Duration(1234567 * time.Nanosecond); got != "1.235ms" {
		t.Errorf("Duration() = %q, want 1.235ms", got)
	}
	if got := Time(time.Time{}); got != "-" {
		t.Errorf("Time(zero) = %q, want -", got)
	}
	if Bool(true) != "yes" || Bool(false) != "no" {
		t.Error("Bool() mismatch")
	}
	if Number(3) != "3" {
		t.Errorf("Number(3) = %q", Number(3))
	}
}
