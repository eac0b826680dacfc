package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/healthsys/internal/csvdb"
	"github.com/maruel/healthsys/internal/errors"
	"github.com/maruel/healthsys/internal/models"
)

func age(v int64) *int64 {
	return &v
}

func newTestStore(t *testing.T, csv string) *PatientStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bd_paciente.csv")
	if csv != "" {
		if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	s, err := OpenPatientStore(t.Context(), path, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenPatientStore failed: %v", err)
	}
	return s
}

const testCSV = csvdb.Header + "\n" +
	"1,111,Ana Souza,30,2024-01-01\n" +
	"2,222,Bob,40,2024-01-02\n" +
	"3,333,ana maria,,2024-01-03\n"

func TestOpenPatientStore(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		s := newTestStore(t, "")
		if s.Len() != 0 || s.Dirty() {
			t.Errorf("Len() = %d, Dirty() = %v", s.Len(), s.Dirty())
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bd.csv")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		s, err := OpenPatientStore(t.Context(), path, StoreOptions{})
		if err != nil {
			t.Fatalf("OpenPatientStore failed: %v", err)
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
	})

	t.Run("loads rows", func(t *testing.T) {
		s := newTestStore(t, testCSV)
		if s.Len() != 3 || s.Dirty() {
			t.Fatalf("Len() = %d, Dirty() = %v", s.Len(), s.Dirty())
		}
		p, err := s.Get(3)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if p.Name != "ana maria" || p.Age != nil {
			t.Errorf("Get(3) = %+v", p)
		}
	})

	t.Run("renumbers", func(t *testing.T) {
		s := newTestStore(t, csvdb.Header+"\n7,1,A,1,d\n9,2,B,2,d\n")
		if !s.Dirty() {
			t.Error("renumbered store should be dirty")
		}
		for i, p := range s.List() {
			if p.ID != int64(i+1) {
				t.Errorf("List()[%d].ID = %d", i, p.ID)
			}
		}
	})
}

func TestPatientStore_Search(t *testing.T) {
	s := newTestStore(t, testCSV)
	tests := []struct {
		name  string
		by    SearchField
		query string
		want  []int64
	}{
		{"name prefix", SearchByName, "ana", []int64{1, 3}},
		{"name case", SearchByName, "BOB", []int64{2}},
		{"name not substring", SearchByName, "Souza", nil},
		{"cpf", SearchByCPF, "22", []int64{2}},
		{"no match", SearchByCPF, "9", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Search(tt.by, tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("Search() returned %d patients, want %d", len(got), len(tt.want))
			}
			for i, p := range got {
				if p.ID != tt.want[i] {
					t.Errorf("Search()[%d].ID = %d, want %d", i, p.ID, tt.want[i])
				}
			}
		})
	}
}

func TestPatientStore_Get(t *testing.T) {
	s := newTestStore(t, testCSV)
	for _, id := range []int64{0, -1, 4} {
		if _, err := s.Get(id); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("Get(%d) error = %v, want NOT_FOUND", id, err)
		}
	}
}

func TestPatientStore_Add(t *testing.T) {
	s := newTestStore(t, testCSV)
	ctx := t.Context()
	if s.NextID() != 4 {
		t.Errorf("NextID() = %d, want 4", s.NextID())
	}
	p, err := s.Add(ctx, models.Patient{ID: 99, CPF: "444", Name: "Caio", Age: age(5), RegisteredAt: "2024-02-01"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if p.ID != 4 || s.Len() != 4 || !s.Dirty() {
		t.Errorf("Add() = %+v, Len() = %d, Dirty() = %v", p, s.Len(), s.Dirty())
	}
	if _, err := s.Add(ctx, models.Patient{Name: "a,b"}); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("Add with comma error = %v, want INVALID_VALUE", err)
	}
	if _, err := s.Add(ctx, models.Patient{Name: "Ana\x00Maria", Age: age(30), RegisteredAt: "2024-01-01"}); !errors.Is(err, errors.ErrInvalidValue) {
		t.Errorf("Add with NUL error = %v, want INVALID_VALUE", err)
	}
	if s.Len() != 4 {
		t.Errorf("rejected Add changed Len() to %d", s.Len())
	}
}

func TestPatientStore_PreviewUpdate(t *testing.T) {
	s := newTestStore(t, testCSV)
	ctx := t.Context()
	edit := models.PatientEdit{CPF: csvdb.Keep, Name: "Bruno", Age: "41", RegisteredAt: ""}

	preview, err := s.Preview(2, edit)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if preview.Name != "Bruno" || *preview.Age != 41 || preview.RegisteredAt != "" || preview.CPF != "222" {
		t.Errorf("Preview() = %+v", preview)
	}
	if p, _ := s.Get(2); p.Name != "Bob" {
		t.Errorf("Preview modified the table: %+v", p)
	}
	if s.Dirty() {
		t.Error("Preview should not dirty the store")
	}

	updated, err := s.Update(ctx, 2, edit)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.String() != preview.String() {
		t.Errorf("Update() = %q, want %q", updated.String(), preview.String())
	}
	if !s.Dirty() {
		t.Error("Update should dirty the store")
	}

	t.Run("errors", func(t *testing.T) {
		bad := models.KeepAll()
		bad.Age = "abc"
		if _, err := s.Update(ctx, 1, bad); !errors.Is(err, errors.ErrInvalidValue) {
			t.Errorf("Update with bad age error = %v, want INVALID_VALUE", err)
		}
		if p, _ := s.Get(1); *p.Age != 30 {
			t.Errorf("failed Update changed age to %d", *p.Age)
		}
		if _, err := s.Preview(9, models.KeepAll()); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("Preview of missing patient error = %v, want NOT_FOUND", err)
		}
		comma := models.KeepAll()
		comma.CPF = "1,2"
		if _, err := s.Preview(1, comma); !errors.Is(err, errors.ErrInvalidValue) {
			t.Errorf("Preview with comma error = %v, want INVALID_VALUE", err)
		}
	})
}

func TestPatientStore_Remove(t *testing.T) {
	s := newTestStore(t, testCSV)
	p, err := s.Remove(t.Context(), 1)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if p.Name != "Ana Souza" {
		t.Errorf("Remove() = %+v", p)
	}
	list := s.List()
	if len(list) != 2 || list[0].Name != "Bob" || list[0].ID != 1 || list[1].ID != 2 {
		t.Errorf("List() after Remove = %+v", list)
	}
	if _, err := s.Remove(t.Context(), 3); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Remove(3) error = %v, want NOT_FOUND", err)
	}
}

func TestPatientStore_Save(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	path := filepath.Join(dir, "bd_paciente.csv")
	h, err := OpenHistory(dir, "tester", "tester@localhost")
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	s, err := OpenPatientStore(ctx, path, StoreOptions{History: h})
	if err != nil {
		t.Fatalf("OpenPatientStore failed: %v", err)
	}
	if _, err := s.Add(ctx, models.Patient{CPF: "111", Name: "Ana", Age: age(30), RegisteredAt: "2024-01-01"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, models.Patient{Name: "Bob"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if s.Dirty() || s.Modified() {
		t.Errorf("after Save: Dirty() = %v, Modified() = %v", s.Dirty(), s.Modified())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := csvdb.Header + "\n1,111,Ana,30,2024-01-01\n2,,Bob,,\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
	commits, err := h.Log(ctx, 10)
	if err != nil || len(commits) != 1 || commits[0].Message != "Save 2 patients" {
		t.Errorf("Log() = %v, %v", commits, err)
	}
	if err := s.HistoryError(); err != nil {
		t.Errorf("HistoryError() = %v", err)
	}

	reloaded, err := OpenPatientStore(ctx, path, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenPatientStore failed: %v", err)
	}
	got := reloaded.List()
	if len(got) != 2 || got[0].String() != "1 111 Ana 30 2024-01-01\n" || got[1].String() != "2 Bob\n" {
		t.Errorf("reloaded = %q", got)
	}

	if err := os.WriteFile(path, []byte(csvdb.Header+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !s.Modified() {
		t.Error("external write not detected")
	}
}

func TestPatientStore_SaveHistoryFailure(t *testing.T) {
	ctx := t.Context()
	// The repository does not contain the CSV file so every commit fails.
	h, err := OpenHistory(t.TempDir(), "tester", "tester@localhost")
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bd_paciente.csv")
	s, err := OpenPatientStore(ctx, path, StoreOptions{History: h})
	if err != nil {
		t.Fatalf("OpenPatientStore failed: %v", err)
	}
	if _, err := s.Add(ctx, models.Patient{Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if s.HistoryError() == nil {
		t.Error("HistoryError() = nil, want the commit failure")
	}
	if s.Dirty() {
		t.Error("Dirty() = true after Save")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := csvdb.Header + "\n1,,Ana,,\n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestPatientStore_Journal(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "bd_paciente.csv")
	if err := os.WriteFile(path, []byte(testCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	opts := StoreOptions{Journal: true, Session: "s1"}
	s, err := OpenPatientStore(ctx, path, opts)
	if err != nil {
		t.Fatalf("OpenPatientStore failed: %v", err)
	}
	if len(s.Unsaved()) != 0 {
		t.Fatalf("Unsaved() = %v", s.Unsaved())
	}
	if _, err := s.Add(ctx, models.Patient{Name: "Caio"}); err != nil {
		t.Fatal(err)
	}
	edit := models.KeepAll()
	edit.Name = "Bruno"
	if _, err := s.Update(ctx, 2, edit); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Remove(ctx, 1); err != nil {
		t.Fatal(err)
	}
	// A rejected change is not journaled.
	if _, err := s.Update(ctx, 9, edit); err == nil {
		t.Fatal("Update of a missing patient should fail")
	}

	// The session ends without saving.
	s2, err := OpenPatientStore(ctx, path, opts)
	if err != nil {
		t.Fatalf("OpenPatientStore failed: %v", err)
	}
	unsaved := s2.Unsaved()
	if len(unsaved) != 3 {
		t.Fatalf("Unsaved() returned %d entries, want 3", len(unsaved))
	}
	wantOps := []string{OpAdd, OpUpdate, OpRemove}
	wantNames := []string{"Caio", "Bruno", "Ana Souza"}
	for i, e := range unsaved {
		if e.Op != wantOps[i] || e.Patient.Name != wantNames[i] || e.Session != "s1" || e.Time.IsZero() {
			t.Errorf("Unsaved()[%d] = %+v", i, e)
		}
	}
	if s2.Len() != 3 {
		t.Errorf("unsaved changes leaked into the CSV file: Len() = %d", s2.Len())
	}

	if err := s2.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(s2.Unsaved()) != 0 {
		t.Error("Save should clear Unsaved()")
	}
	if _, err := os.Stat(JournalPath(path)); !os.IsNotExist(err) {
		t.Errorf("journal still present after Save: %v", err)
	}
}

func TestJournalPath(t *testing.T) {
	if got, want := JournalPath(filepath.Join("data", "bd.csv")), filepath.Join("data", "bd.journal.jsonl"); got != want {
		t.Errorf("JournalPath() = %q, want %q", got, want)
	}
}
