// Package models defines the typed patient record exchanged above the csvdb layer.
package models

import (
	"fmt"
	"strings"

	"github.com/maruel/healthsys/internal/csvdb"
	"github.com/maruel/healthsys/internal/errors"
)

// Patient is the typed view of a row of the patient table.
type Patient struct {
	ID   int64  `json:"id"`
	CPF  string `json:"cpf,omitempty"`
	Name string `json:"name,omitempty"`
	// Age is nil when unknown.
	Age *int64 `json:"age,omitempty"`
	// RegisteredAt is the registration date as entered, usually YYYY-MM-DD.
	RegisteredAt string `json:"registered_at,omitempty"`
}

// PatientFromRow converts a row in the fixed layout. Fields of an unexpected
// kind are left at their zero value.
func PatientFromRow(row *csvdb.Row) Patient {
	var p Patient
	for col, f := range row.Fields() {
		switch col {
		case csvdb.ColID:
			p.ID, _ = f.Int()
		case csvdb.ColCPF:
			p.CPF, _ = f.Text()
		case csvdb.ColName:
			p.Name, _ = f.Text()
		case csvdb.ColAge:
			if v, ok := f.Int(); ok {
				p.Age = &v
			}
		case csvdb.ColDate:
			p.RegisteredAt, _ = f.Text()
		}
	}
	return p
}

// Row builds a row in the fixed layout. Empty strings and a nil Age are Null.
func (p *Patient) Row() *csvdb.Row {
	row := csvdb.NewPatientRow(p.ID, p.CPF, p.Name, 0, p.RegisteredAt)
	age := csvdb.Null()
	if p.Age != nil {
		age = csvdb.Int(*p.Age)
	}
	_ = row.Set(csvdb.ColAge, age)
	return row
}

// Validate checks that every text value can be stored in a CSV column.
func (p *Patient) Validate() error {
	if err := validateText("CPF", p.CPF); err != nil {
		return err
	}
	if err := validateText("Nome", p.Name); err != nil {
		return err
	}
	if p.Age != nil && *p.Age < 0 {
		return errors.InvalidValue("Idade", fmt.Sprint(*p.Age), "must be non-negative")
	}
	return validateText("Data_Cadastro", p.RegisteredAt)
}

// PatientEdit holds raw values for csvdb.Row.UpdateNamed. csvdb.Keep leaves a
// column unchanged.
type PatientEdit struct {
	CPF          string
	Name         string
	Age          string
	RegisteredAt string
}

// KeepAll returns an edit that changes nothing.
func KeepAll() PatientEdit {
	return PatientEdit{CPF: csvdb.Keep, Name: csvdb.Keep, Age: csvdb.Keep, RegisteredAt: csvdb.Keep}
}

// Validate checks that every replaced text value can be stored in a CSV
// column. Age is validated by csvdb.Row.UpdateNamed.
func (e *PatientEdit) Validate() error {
	if err := validateText("CPF", e.CPF); err != nil {
		return err
	}
	if err := validateText("Nome", e.Name); err != nil {
		return err
	}
	if strings.HasPrefix(strings.TrimSpace(e.Age), "-") && e.Age != csvdb.Keep {
		return errors.InvalidValue("Idade", e.Age, "must be non-negative")
	}
	return validateText("Data_Cadastro", e.RegisteredAt)
}

// Apply runs the edit against row.
func (e *PatientEdit) Apply(row *csvdb.Row) error {
	return row.UpdateNamed(e.CPF, e.Name, e.Age, e.RegisteredAt)
}

func validateText(column, v string) error {
	if strings.ContainsAny(v, csvdb.Delimiters) {
		return errors.InvalidValue(column, v, "must not contain a column delimiter")
	}
	return nil
}

// String renders the patient like csvdb.Row.String.
func (p Patient) String() string {
	return p.Row().String()
}
