package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHistory(dir, "tester", "tester@localhost")
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	ctx := t.Context()

	commits, err := h.Log(ctx, 10)
	if err != nil || len(commits) != 0 {
		t.Fatalf("Log() on empty repo = %v, %v", commits, err)
	}

	file := filepath.Join(dir, "bd.csv")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	write("ID,CPF,Nome,Idade,Data_Cadastro\n")
	if err := h.Commit(ctx, file, "first"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	// Unchanged content does not create a commit.
	if err := h.Commit(ctx, file, "noop"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	write("ID,CPF,Nome,Idade,Data_Cadastro\n1,,Ana,30,\n")
	if err := h.Commit(ctx, file, "second\n\nbody"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	commits, err = h.Log(ctx, 10)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("Log() returned %d commits, want 2", len(commits))
	}
	if commits[0].Message != "second" || commits[1].Message != "first" {
		t.Errorf("messages = %q, %q", commits[0].Message, commits[1].Message)
	}
	if commits[0].Author != "tester" || commits[0].Email != "tester@localhost" {
		t.Errorf("author = %s <%s>", commits[0].Author, commits[0].Email)
	}
	if commits[0].Hash == "" || commits[0].When.IsZero() {
		t.Errorf("incomplete commit: %+v", commits[0])
	}

	if got, err := h.Log(ctx, 1); err != nil || len(got) != 1 {
		t.Errorf("Log(1) = %d commits, %v", len(got), err)
	}

	t.Run("reopen", func(t *testing.T) {
		h2, err := OpenHistory(dir, "other", "other@localhost")
		if err != nil {
			t.Fatalf("OpenHistory failed: %v", err)
		}
		commits, err := h2.Log(ctx, 0)
		if err != nil || len(commits) != 2 {
			t.Errorf("Log() after reopen = %d commits, %v", len(commits), err)
		}
	})

	t.Run("outside repository", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "x.csv")
		if err := h.Commit(ctx, outside, "nope"); err == nil {
			t.Error("Commit of a file outside the repository should fail")
		}
	})

	t.Run("corrupt repository", func(t *testing.T) {
		head, err := os.ReadFile(filepath.Join(dir, ".git", "HEAD"))
		if err != nil {
			t.Fatal(err)
		}
		ref := strings.TrimSpace(strings.TrimPrefix(string(head), "ref:"))
		// Point the branch at a commit that does not exist.
		missing := strings.Repeat("1", 40) + "\n"
		if err := os.WriteFile(filepath.Join(dir, ".git", filepath.FromSlash(ref)), []byte(missing), 0o600); err != nil {
			t.Fatal(err)
		}
		h2, err := OpenHistory(dir, "tester", "tester@localhost")
		if err != nil {
			t.Fatalf("OpenHistory failed: %v", err)
		}
		if commits, err := h2.Log(ctx, 10); err == nil {
			t.Errorf("Log() on corrupt repo = %v, want error", commits)
		}
	})
}
