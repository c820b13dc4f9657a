package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat checks a --output value, ignoring case. Empty means table.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// Formatter writes a command result to w.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// FormatterFunc adapts an encoding function to Formatter.
type FormatterFunc func(w io.Writer, data any) error

// Format calls f.
func (f FormatterFunc) Format(w io.Writer, data any) error { return f(w, data) }

// NewFormatter returns the formatter for format. Unknown formats fall back
// to a table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return FormatterFunc(EncodeJSON)
	case FormatYAML:
		return FormatterFunc(EncodeYAML)
	}
	return &TableFormatter{}
}

// EncodeJSON writes data as JSON indented by two spaces.
func EncodeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// EncodeYAML writes data as a YAML document indented by two spaces.
func EncodeYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(data)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	return err
}
