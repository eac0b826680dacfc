package csvdb

import (
	"fmt"
	"iter"

	"github.com/maruel/healthsys/internal/errors"
)

// initialCapacity is the capacity of a new Table.
const initialCapacity = 4

// IndexError is the panic value of positional accessors called out of range.
type IndexError struct {
	Op     string
	Index  int
	Length int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("csvdb: %s: index %d out of range [0:%d]", e.Op, e.Index, e.Length)
}

// Table is the ordered, growable collection of rows.
//
// Capacity starts at 4, doubles when full and never shrinks. Column 0 of row i
// equals i+1 only after Renumber; mutations other than RemoveAt do not
// maintain it.
type Table struct {
	rows []*Row
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{rows: make([]*Row, 0, initialCapacity)}
}

// Len returns the number of rows. It returns 0 on a nil Table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Cap returns the current capacity.
func (t *Table) Cap() int {
	if t == nil {
		return 0
	}
	return cap(t.rows)
}

// Insert appends row, doubling the capacity first when the table is full.
//
// The table takes ownership of row. Inserting a nil row panics.
func (t *Table) Insert(row *Row) {
	if row == nil {
		panic("csvdb: Insert of nil row")
	}
	if len(t.rows) == cap(t.rows) {
		t.grow()
	}
	t.rows = append(t.rows, row)
}

func (t *Table) grow() {
	n := max(2*cap(t.rows), initialCapacity)
	rows := make([]*Row, len(t.rows), n)
	copy(rows, t.rows)
	t.rows = rows
}

// At returns the row at index i. The row is owned by the table; mutate it in
// place or Clone it first.
//
// It panics with an *IndexError unless 0 <= i < Len(). Callers check bounds
// with Len first.
func (t *Table) At(i int) *Row {
	if i < 0 || i >= t.Len() {
		panic(&IndexError{Op: "At", Index: i, Length: t.Len()})
	}
	return t.rows[i]
}

// Field returns the field at the given row and column.
func (t *Table) Field(row, col int) (Field, error) {
	if row < 0 || row >= t.Len() {
		return Field{}, errors.NotFound(fmt.Sprintf("row %d", row))
	}
	f, err := t.rows[row].Field(col)
	if err != nil {
		return Field{}, errors.NotFound(fmt.Sprintf("column %d of row %d", col, row)).Wrap(err)
	}
	return f, nil
}

// All returns an iterator over the rows and their index.
func (t *Table) All() iter.Seq2[int, *Row] {
	return func(yield func(int, *Row) bool) {
		for i := range t.Len() {
			if !yield(i, t.rows[i]) {
				return
			}
		}
	}
}

// FindByField returns the rows whose column col is a text field starting with
// query, ignoring case, in table order.
func (t *Table) FindByField(query string, col int) []*Row {
	var out []*Row
	for i := range t.Len() {
		f, err := t.Field(i, col)
		if err != nil {
			continue
		}
		if f.HasPrefixFold(query) {
			out = append(out, t.rows[i])
		}
	}
	return out
}

// RemoveAt drops the row at index i, closes the gap and renumbers the table.
// It returns false and does nothing when i is out of range.
func (t *Table) RemoveAt(i int) bool {
	if i < 0 || i >= t.Len() {
		return false
	}
	t.rows[i].Clear()
	copy(t.rows[i:], t.rows[i+1:])
	t.rows[len(t.rows)-1] = nil
	t.rows = t.rows[:len(t.rows)-1]
	t.Renumber()
	return true
}

// Renumber sets column 0 of every row to its 1-based position.
func (t *Table) Renumber() {
	for i, row := range t.rows {
		id := Int(int64(i + 1))
		if row.Len() == 0 {
			row.Append(id)
			continue
		}
		_ = row.Set(ColID, id)
	}
}

// Detach empties the table and returns its rows to the caller, who becomes
// their owner. The capacity is kept.
func (t *Table) Detach() []*Row {
	rows := make([]*Row, len(t.rows))
	copy(rows, t.rows)
	clear(t.rows)
	t.rows = t.rows[:0]
	return rows
}

// Clear empties every row, then the table. The capacity is kept.
func (t *Table) Clear() {
	for _, row := range t.rows {
		row.Clear()
	}
	clear(t.rows)
	t.rows = t.rows[:0]
}
