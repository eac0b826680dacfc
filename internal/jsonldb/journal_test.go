package jsonldb

import (
	"os"
	"path/filepath"
	"testing"
)

type testEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test.jsonl")

	j, err := Open[testEntry](path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if j.Len() != 0 {
		t.Fatalf("new journal has %d entries", j.Len())
	}

	for _, e := range []testEntry{{ID: 1, Name: "One"}, {ID: 2, Name: "Two"}} {
		if err := j.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if all := j.All(); len(all) != 2 || all[1].Name != "Two" {
		t.Errorf("All() = %+v", all)
	}

	t.Run("reload", func(t *testing.T) {
		j2, err := Open[testEntry](path)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		all := j2.All()
		if len(all) != 2 || all[0].Name != "One" || all[1].ID != 2 {
			t.Errorf("reloaded entries = %+v", all)
		}
	})

	t.Run("torn last line", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "torn.jsonl")
		if err := os.WriteFile(p, []byte("{\"id\":1,\"name\":\"One\"}\n\n{\"id\":2,\"na"), 0o600); err != nil {
			t.Fatal(err)
		}
		j, err := Open[testEntry](p)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if j.Len() != 1 {
			t.Errorf("Len() = %d, want 1", j.Len())
		}
		if err := j.Append(testEntry{ID: 3, Name: "Three"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		j2, err := Open[testEntry](p)
		if err != nil {
			t.Fatalf("Open after repair failed: %v", err)
		}
		if all := j2.All(); len(all) != 2 || all[1].ID != 3 {
			t.Errorf("entries after repair = %+v", all)
		}
	})

	t.Run("corrupt middle line", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "bad.jsonl")
		if err := os.WriteFile(p, []byte("nope\n{\"id\":2}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Open[testEntry](p); err == nil {
			t.Error("Open should fail")
		}
	})

	if err := j.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if j.Len() != 0 {
		t.Errorf("Len() after Reset = %d", j.Len())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("journal file still present: %v", err)
	}
	if err := j.Reset(); err != nil {
		t.Errorf("second Reset failed: %v", err)
	}
}
