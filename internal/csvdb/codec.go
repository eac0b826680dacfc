// Maps rows to and from the five column CSV text format.

package csvdb

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/healthsys/internal/errors"
)

// LoadCSV appends every row of the CSV file at path to t.
//
// On failure, rows parsed before the error stay in the table.
func (t *Table) LoadCSV(path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is chosen by the operator.
	if err != nil {
		return errors.Storage(fmt.Sprintf("failed to open %s", path), err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := t.ReadCSV(f); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ReadCSV appends every row read from r to t. The first line is the header and
// is discarded.
//
// On failure, rows parsed before the error stay in the table.
func (t *Table) ReadCSV(r io.Reader) error {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if header == "" {
		if err == nil || err == io.EOF {
			return errors.ErrMissingHeader
		}
		return errors.Storage("failed to read header", err)
	}
	for err == nil {
		var line string
		line, err = br.ReadString('\n')
		if err != nil && err != io.EOF {
			return errors.Storage("failed to read row", err)
		}
		if isBlankLine(line) {
			continue
		}
		t.Insert(parseLine(line))
	}
	return nil
}

// isBlankLine reports whether a raw line, terminator included, holds no row.
func isBlankLine(line string) bool {
	return len(line) < 2 || line[0] == '\n' || line[0] == '\r'
}

// parseLine converts one raw line into a row of NumColumns fields.
func parseLine(line string) *Row {
	cols := splitLine(line)
	row := NewRow()
	for i, v := range cols {
		switch {
		case v == "":
			row.Append(Null())
		case isIntColumn(i):
			row.Append(Int(atoi(v)))
		default:
			row.Append(Text(v))
		}
	}
	return row
}

// splitLine splits line into NumColumns columns. Commas and line terminators
// end a column; columns past the fifth are ignored and missing trailing
// columns are empty.
func splitLine(line string) [NumColumns]string {
	var cols [NumColumns]string
	n, start := 0, 0
	for i := 0; i <= len(line) && n < NumColumns; i++ {
		if i < len(line) {
			if c := line[i]; c != ',' && c != '\r' && c != '\n' && c != 0 {
				continue
			}
		}
		cols[n] = line[start:i]
		n++
		start = i + 1
	}
	return cols
}

// atoi parses the leading integer of s like C atoi: optional leading spaces
// and sign, then digits up to the first other byte. No digits yields 0.
// Values out of range saturate.
func atoi(s string) int64 {
	i := 0
	for i < len(s) && strings.IndexByte(" \t\n\v\f\r", s[i]) >= 0 {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	var n uint64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		d := uint64(s[i] - '0')
		if n > (math.MaxInt64-d)/10 {
			if neg {
				return math.MinInt64
			}
			return math.MaxInt64
		}
		n = n*10 + d
	}
	if neg {
		return -int64(n)
	}
	return int64(n)
}

// SaveCSV writes t to path. The data goes to a temporary file in the same
// directory which then replaces path, so a failed save leaves the previous
// file intact. The file keeps its permissions; a new file gets 0644.
func (t *Table) SaveCSV(path string) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return errors.Storage(fmt.Sprintf("failed to create temporary file for %s", path), err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	// CreateTemp uses 0600; keep the mode of the file being replaced.
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		return errors.Storage(fmt.Sprintf("failed to set mode of %s", tmp.Name()), err)
	}
	if err := t.WriteCSV(tmp); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	if err := tmp.Sync(); err != nil {
		return errors.Storage(fmt.Sprintf("failed to sync %s", tmp.Name()), err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Storage(fmt.Sprintf("failed to close %s", tmp.Name()), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Storage(fmt.Sprintf("failed to replace %s", path), err)
	}
	renamed = true
	return nil
}

// WriteCSV writes the header then one line per row to w.
//
// Text values holding a comma, a line terminator or a NUL byte cannot be
// represented and fail with an INVALID_VALUE error.
func (t *Table) WriteCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return errors.Storage("failed to write header", err)
	}
	for i, row := range t.All() {
		line, err := formatLine(row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := bw.WriteString(line); err != nil {
			return errors.Storage("failed to write row", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Storage("failed to flush writer", err)
	}
	return nil
}

// Delimiters holds every byte that ends a column on read. Text values must not
// contain any of them.
const Delimiters = ",\r\n\x00"

// formatLine renders the first NumColumns fields of row as one CSV line.
// Missing fields are written as empty columns.
func formatLine(row *Row) (string, error) {
	var b strings.Builder
	for col := range NumColumns {
		if col != 0 {
			b.WriteByte(',')
		}
		f, err := row.Field(col)
		if err != nil {
			continue
		}
		s := f.String()
		if strings.ContainsAny(s, Delimiters) {
			return "", errors.InvalidValue(Columns[col].Name, s, "contains a delimiter")
		}
		b.WriteString(s)
	}
	b.WriteByte('\n')
	return b.String(), nil
}
