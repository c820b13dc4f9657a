package output

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"", FormatTable, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, `"pid": 1`},
		{FormatYAML, "pid: 1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(tt.format).Format(&buf, map[string]int{"pid": 1}); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("Format() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
	if _, ok := NewFormatter("unknown").(*TableFormatter); !ok {
		t.Error("NewFormatter(unknown) should default to table")
	}
}

type record struct {
	PID      int32  `json:"pid" yaml:"pid"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
	State    string `json:"state" yaml:"state"`
}

func TestEncodeJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, record{PID: 100, ExitCode: 42, State: "cleanup"}); err != nil {
		t.Fatalf("EncodeJSON() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"pid": 100`, `"exit_code": 42`, `"state": "cleanup"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() = %s, missing %s", out, want)
		}
	}
}

func TestEncodeYAML(t *testing.T) {
	in := []record{{PID: 100, ExitCode: 42}, {PID: 200, ExitCode: 9, State: "terminate_only"}}

	var buf bytes.Buffer
	if err := EncodeYAML(&buf, in); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), "exit_code: 42") {
		t.Errorf("Format() = %s, missing exit_code", buf.String())
	}

	var out []record
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if len(out) != 2 || out[1] != in[1] {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}
}
