package csvdb

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Kind identifies which payload of a Field is meaningful.
type Kind uint8

const (
	// KindNull is an explicit absence of value. It is the zero Kind.
	KindNull Kind = iota
	// KindInt holds a signed 64 bits integer.
	KindInt
	// KindText holds a string.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Field is one cell value. The zero value is Null.
//
// Only the payload matching Kind is meaningful. Fields are values: copying one
// never shares mutable state with the original.
type Field struct {
	kind Kind
	i    int64
	s    string
}

// Int returns an integer field.
func Int(v int64) Field {
	return Field{kind: KindInt, i: v}
}

// Text returns a text field. The empty string is a valid text value, distinct
// from Null.
func Text(s string) Field {
	return Field{kind: KindText, s: s}
}

// Null returns an explicit absence of value.
func Null() Field {
	return Field{}
}

// Kind returns the field kind.
func (f Field) Kind() Kind {
	return f.kind
}

// IsNull reports whether the field holds no value.
func (f Field) IsNull() bool {
	return f.kind == KindNull
}

// Int returns the integer payload and true if f is an integer field.
func (f Field) Int() (int64, bool) {
	return f.i, f.kind == KindInt
}

// Text returns the text payload and true if f is a text field.
func (f Field) Text() (string, bool) {
	return f.s, f.kind == KindText
}

// String renders the field the way it appears in a CSV column: integers in
// decimal, text verbatim, Null as the empty string.
func (f Field) String() string {
	switch f.kind {
	case KindInt:
		return strconv.FormatInt(f.i, 10)
	case KindText:
		return f.s
	default:
		return ""
	}
}

// HasPrefixFold reports whether f is a text field starting with query, ignoring
// case. Integer and Null fields never match.
func (f Field) HasPrefixFold(query string) bool {
	if f.kind != KindText {
		return false
	}
	// A Caser carries state; use a fresh one per call.
	return strings.HasPrefix(cases.Fold().String(f.s), cases.Fold().String(query))
}
