package repl

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxSize bounds a History created with a non-positive size.
const DefaultMaxSize = 1000

// History is the list of lines entered in the shell, oldest first,
// optionally backed by a file.
type History struct {
	file  string
	limit int
	lines []string
}

// NewHistory returns an empty History that loads from and saves to file.
// An empty file keeps the history in memory only.
func NewHistory(file string, limit int) *History {
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	return &History{file: file, limit: limit}
}

// DefaultFile is ~/.libos/history, or "" without a home directory.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".libos", "history")
}

// Add records line. Blank lines and repeats of the previous line are
// skipped; the oldest line is dropped past the limit.
func (h *History) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if n := len(h.lines); n > 0 && h.lines[n-1] == line {
		return
	}
	h.lines = append(h.lines, line)
	if over := len(h.lines) - h.limit; over > 0 {
		h.lines = append(h.lines[:0], h.lines[over:]...)
	}
}

// Len is the number of recorded lines.
func (h *History) Len() int { return len(h.lines) }

// Get returns the line n steps back, 0 being the latest, or "" when out
// of range.
func (h *History) Get(n int) string {
	if n < 0 || n >= len(h.lines) {
		return ""
	}
	return h.lines[len(h.lines)-1-n]
}

// Entries returns a copy of the lines, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.lines...)
}

// Load adds the lines saved in the file. A missing file is not an error.
func (h *History) Load() error {
	if h.file == "" {
		return nil
	}
	data, err := os.ReadFile(h.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		h.Add(sc.Text())
	}
	return sc.Err()
}

// Save replaces the file with the recorded lines. The file is written
// next to its final path and renamed into place.
func (h *History) Save() error {
	if h.file == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.file), 0o700); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, l := range h.lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	tmp := h.file + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, h.file); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
