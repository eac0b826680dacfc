package csvdb

import (
	"strconv"
	"strings"

	"github.com/maruel/healthsys/internal/errors"
)

// Keep is the UpdateNamed argument that leaves a column unchanged.
const Keep = "-"

// Row is one record: an ordered sequence of fields.
//
// Rows held by a Table have exactly NumColumns fields. InsertAt and RemoveAt
// may transiently break that; callers using them must restore the layout.
type Row struct {
	fields []Field
}

// NewRow returns a row holding a copy of fields, or an empty row.
func NewRow(fields ...Field) *Row {
	r := &Row{fields: make([]Field, 0, max(len(fields), NumColumns))}
	r.fields = append(r.fields, fields...)
	return r
}

// NewPatientRow builds a row in the fixed layout from user supplied values.
//
// Empty cpf, name or date become Null, which is what a CSV reload of the same
// row produces.
func NewPatientRow(id int64, cpf, name string, age int64, date string) *Row {
	return NewRow(Int(id), textOrNull(cpf), textOrNull(name), Int(age), textOrNull(date))
}

func textOrNull(s string) Field {
	if s == "" {
		return Null()
	}
	return Text(s)
}

// Len returns the number of fields.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// IsEmpty reports whether the row has no fields.
func (r *Row) IsEmpty() bool {
	return r.Len() == 0
}

// Field returns the field at index i.
func (r *Row) Field(i int) (Field, error) {
	if i < 0 || i >= r.Len() {
		return Field{}, errors.InvalidIndex(i, r.Len())
	}
	return r.fields[i], nil
}

// Fields returns a copy of the fields in positional order.
func (r *Row) Fields() []Field {
	out := make([]Field, r.Len())
	if r != nil {
		copy(out, r.fields)
	}
	return out
}

// Append adds f at the end of the row.
func (r *Row) Append(f Field) {
	r.fields = append(r.fields, f)
}

// Set replaces the field at index i.
func (r *Row) Set(i int, f Field) error {
	if i < 0 || i >= r.Len() {
		return errors.InvalidIndex(i, r.Len())
	}
	r.fields[i] = f
	return nil
}

// InsertAt inserts f before position pos. Positions at or below zero insert at
// the start, positions at or past Len() append.
func (r *Row) InsertAt(pos int, f Field) {
	pos = min(max(pos, 0), len(r.fields))
	r.fields = append(r.fields, Field{})
	copy(r.fields[pos+1:], r.fields[pos:])
	r.fields[pos] = f
}

// RemoveAt drops the field at index i.
func (r *Row) RemoveAt(i int) error {
	if i < 0 || i >= r.Len() {
		return errors.InvalidIndex(i, r.Len())
	}
	copy(r.fields[i:], r.fields[i+1:])
	r.fields[len(r.fields)-1] = Field{}
	r.fields = r.fields[:len(r.fields)-1]
	return nil
}

// UpdateNamed updates CPF, Name, Age and registration date in one call.
//
// For each argument, Keep leaves the column unchanged, the empty string sets
// it to Null and any other value replaces it. age must be a decimal integer.
// The ID column is never touched. On error the row is unchanged.
func (r *Row) UpdateNamed(cpf, name, age, date string) error {
	if r.Len() != NumColumns {
		return errors.InvalidIndex(NumColumns-1, r.Len())
	}
	values := [NumColumns]string{ColCPF: cpf, ColName: name, ColAge: age, ColDate: date}
	var next [NumColumns]Field
	copy(next[:], r.fields)
	for col := ColCPF; col < NumColumns; col++ {
		v := values[col]
		if v == Keep {
			continue
		}
		f, err := parseValue(col, v)
		if err != nil {
			return err
		}
		next[col] = f
	}
	copy(r.fields, next[:])
	return nil
}

// parseValue converts user input for column col. Unlike CSV loading, integer
// columns are parsed strictly.
func parseValue(col int, v string) (Field, error) {
	if v == "" {
		return Null(), nil
	}
	if isIntColumn(col) {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Field{}, errors.InvalidValue(Columns[col].Name, v, "not an integer").Wrap(err)
		}
		return Int(n), nil
	}
	return Text(v), nil
}

// Clone returns a deep copy sharing no memory with r.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	return NewRow(r.fields...)
}

// Clear drops every field.
func (r *Row) Clear() {
	clear(r.fields)
	r.fields = r.fields[:0]
}

// String renders the row for display: non-Null fields separated by a space,
// followed by a newline.
func (r *Row) String() string {
	var b strings.Builder
	if r != nil {
		sep := false
		for _, f := range r.fields {
			if f.IsNull() {
				continue
			}
			if sep {
				b.WriteByte(' ')
			}
			b.WriteString(f.String())
			sep = true
		}
	}
	b.WriteByte('\n')
	return b.String()
}
