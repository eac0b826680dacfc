// Package csvdb provides an in-memory, fixed-schema record store persisted as
// a flat CSV file.
//
// # Overview
//
// The package centers around [Table], a growable collection of [Row] values.
// Each Row is an ordered sequence of [Field] values; a Field is an integer, a
// text or an explicit absence (Null). Rows in a Table follow the fixed five
// column patient layout described by [Columns]: ID, CPF, Name, Age and
// registration date.
//
// # Errors
//
// Positional accessors that callers are expected to bounds-check first
// ([Table.At], [Table.Insert] with a nil row) panic with an [IndexError].
// Everything else returns errors from the internal errors package.
//
// # Concurrency
//
// Tables and Rows are not safe for concurrent use. Callers that share a
// Table across goroutines must serialize access.
//
// # File Format
//
// Line 1 is the header "ID,CPF,Nome,Idade,Data_Cadastro". Every following
// line holds five comma separated columns. Empty columns are Null. There is
// no quoting: text values cannot contain commas or line terminators.
package csvdb
