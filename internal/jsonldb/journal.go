// Package jsonldb provides an append-only journal stored as JSON Lines.
package jsonldb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Journal is an append-only sequence of entries persisted one JSON object per
// line. Every Append reaches the file before it returns.
type Journal[T any] struct {
	path string

	mu      sync.Mutex
	entries []T
}

// Open loads the journal at path. A missing file is an empty journal.
//
// An unparsable last line is dropped: it is the trace of a write interrupted
// by a crash. An unparsable line anywhere else is an error.
func Open[T any](path string) (*Journal[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	j := &Journal[T]{path: path}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal[T]) load() error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read journal %s: %w", j.path, err)
	}
	var lines [][]byte
	for line := range bytes.SplitSeq(data, []byte{'\n'}) {
		if line = bytes.TrimSpace(line); len(line) != 0 {
			lines = append(lines, line)
		}
	}
	torn := len(data) != 0 && data[len(data)-1] != '\n'
	for i, line := range lines {
		var entry T
		if err := json.Unmarshal(line, &entry); err != nil {
			if i == len(lines)-1 {
				torn = true
				break
			}
			return fmt.Errorf("failed to unmarshal line %d of %s: %w", i+1, j.path, err)
		}
		j.entries = append(j.entries, entry)
	}
	if torn {
		return j.rewrite()
	}
	return nil
}

// rewrite replaces the file with the entries in memory.
func (j *Journal[T]) rewrite() error {
	var buf bytes.Buffer
	for _, entry := range j.entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(j.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to rewrite journal %s: %w", j.path, err)
	}
	return nil
}

// Path returns the journal file path.
func (j *Journal[T]) Path() string {
	return j.path
}

// Len returns the number of entries.
func (j *Journal[T]) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// All returns a copy of all entries.
func (j *Journal[T]) All() []T {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]T, len(j.entries))
	copy(out, j.entries)
	return out
}

// Append persists entry at the end of the journal.
func (j *Journal[T]) Append(entry T) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: path is chosen by the operator.
	if err != nil {
		return fmt.Errorf("failed to open journal for append: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.entries = append(j.entries, entry)
	return nil
}

// Reset drops every entry and removes the file.
func (j *Journal[T]) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove journal: %w", err)
	}
	j.entries = nil
	return nil
}
