// Describes the fixed five column layout of a patient row.

package csvdb

// Column positions of a patient row.
const (
	ColID = iota
	ColCPF
	ColName
	ColAge
	ColDate

	// NumColumns is the number of fields in a well formed row.
	NumColumns
)

// Header is the first line of every CSV file.
const Header = "ID,CPF,Nome,Idade,Data_Cadastro"

// Column describes one position of the fixed layout.
type Column struct {
	// Name is the header name, as written in the CSV file.
	Name string
	// Kind is the non-null kind the column holds.
	Kind Kind
}

// Columns lists the layout in positional order.
var Columns = [NumColumns]Column{
	{Name: "ID", Kind: KindInt},
	{Name: "CPF", Kind: KindText},
	{Name: "Nome", Kind: KindText},
	{Name: "Idade", Kind: KindInt},
	{Name: "Data_Cadastro", Kind: KindText},
}

// isIntColumn reports whether non-empty CSV values of column col parse as
// integers.
func isIntColumn(col int) bool {
	return col >= 0 && col < NumColumns && Columns[col].Kind == KindInt
}
