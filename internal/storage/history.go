// Records every save of the patient table in a git repository using go-git.

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is one entry of the save history.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	When    time.Time `json:"when"`
}

// History commits files of a directory to a git repository, creating it on
// first use.
type History struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
}

// OpenHistory opens the git repository rooted at dir, initializing it when
// needed.
func OpenHistory(dir, name, email string) (*History, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &History{dir: dir, name: name, email: email, repo: repo}, nil
}

// Commit stages file, which must be inside the repository, and commits it
// with msg. It does nothing when the file is unchanged since the last commit.
func (h *History) Commit(ctx context.Context, file, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rel, err := filepath.Rel(h.dir, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s is outside of %s", file, h.dir)
	}
	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Add(filepath.ToSlash(rel)); err != nil {
		return fmt.Errorf("failed to stage %s: %w", rel, err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if s, ok := status[filepath.ToSlash(rel)]; !ok || s.Staging == gogit.Unmodified {
		slog.DebugContext(ctx, "History unchanged", "file", rel)
		return nil
	}
	sig := &object.Signature{Name: h.name, Email: h.email, When: time.Now()}
	hash, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	slog.DebugContext(ctx, "History committed", "file", rel, "hash", hash.String())
	return nil
}

// Log returns up to n commits, newest first. A repository without commits
// yields an empty list.
func (h *History) Log(_ context.Context, n int) ([]*Commit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > 1000 {
		n = 1000
	}
	iter, err := h.repo.Log(&gogit.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			When:    c.Author.When,
		})
	}
	return commits, nil
}
