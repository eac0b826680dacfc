// Provides the patient table backed by a CSV file.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maruel/healthsys/internal/csvdb"
	"github.com/maruel/healthsys/internal/errors"
	"github.com/maruel/healthsys/internal/jsonldb"
	"github.com/maruel/healthsys/internal/models"
)

// Journal operations.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpRemove = "remove"
)

// JournalEntry records one change made since the last save.
type JournalEntry struct {
	Time    time.Time      `json:"time"`
	Session string         `json:"session,omitempty"`
	Op      string         `json:"op"`
	Patient models.Patient `json:"patient"`
}

// JournalPath returns the journal file kept next to the CSV file at path.
func JournalPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".journal.jsonl"
}

// StoreOptions configures OpenPatientStore.
type StoreOptions struct {
	// History, when set, records every save.
	History *History
	// Journal persists every change until the next save, so changes of a
	// session that ends without saving can be reported later.
	Journal bool
	// Session identifies the session in journal entries.
	Session string
}

// SearchField selects the column matched by PatientStore.Search.
type SearchField int

// Searchable columns.
const (
	SearchByName SearchField = iota
	SearchByCPF
)

func (f SearchField) column() int {
	if f == SearchByCPF {
		return csvdb.ColCPF
	}
	return csvdb.ColName
}

// fileState identifies the content of the CSV file as last read or written.
type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statFile(path string) (fileState, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileState{}, nil
		}
		return fileState{}, err
	}
	return fileState{exists: true, size: fi.Size(), modTime: fi.ModTime()}, nil
}

// PatientStore holds the patient table in memory and persists it to a CSV
// file on Save.
//
// Patient IDs are 1-based positions: the table is renumbered on load and on
// every removal.
type PatientStore struct {
	path    string
	history *History
	journal *jsonldb.Journal[JournalEntry]
	session string
	pending []JournalEntry

	mu         sync.Mutex
	table      *csvdb.Table
	state      fileState
	dirty      bool
	historyErr error
}

// OpenPatientStore loads the CSV file at path. A missing or empty file yields
// an empty store.
func OpenPatientStore(ctx context.Context, path string, opts StoreOptions) (*PatientStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	s := &PatientStore{path: path, history: opts.History, session: opts.Session, table: csvdb.NewTable()}
	if opts.Journal {
		j, err := jsonldb.Open[JournalEntry](JournalPath(path))
		if err != nil {
			return nil, errors.Storage("failed to open journal", err)
		}
		s.journal = j
		if s.pending = j.All(); len(s.pending) != 0 {
			slog.WarnContext(ctx, "Changes of a previous session were not saved", "journal", j.Path(), "count", len(s.pending))
		}
	}
	state, err := statFile(path)
	if err != nil {
		return nil, errors.Storage(fmt.Sprintf("failed to stat %s", path), err)
	}
	s.state = state
	if !state.exists {
		slog.InfoContext(ctx, "Patient file not found, starting empty", "path", path)
		return s, nil
	}
	if err := s.table.LoadCSV(path); err != nil {
		if !errors.Is(err, errors.ErrMissingHeader) {
			return nil, err
		}
		slog.InfoContext(ctx, "Patient file is empty", "path", path)
	}
	if !s.hasSequentialIDs() {
		s.table.Renumber()
		s.dirty = true
		slog.WarnContext(ctx, "Renumbered patient IDs", "path", path)
	}
	slog.InfoContext(ctx, "Loaded patients", "path", path, "count", s.table.Len())
	return s, nil
}

func (s *PatientStore) hasSequentialIDs() bool {
	for i, row := range s.table.All() {
		f, err := row.Field(csvdb.ColID)
		if err != nil {
			return false
		}
		if id, ok := f.Int(); !ok || id != int64(i+1) {
			return false
		}
	}
	return true
}

// Unsaved returns the journal entries left by sessions that ended without
// saving, oldest first.
func (s *PatientStore) Unsaved() []JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// record appends a journal entry. It is called before the table changes so
// that a failure leaves both untouched.
func (s *PatientStore) record(op string, p models.Patient) error {
	if s.journal == nil {
		return nil
	}
	e := JournalEntry{Time: time.Now().UTC(), Session: s.session, Op: op, Patient: p}
	if err := s.journal.Append(e); err != nil {
		return errors.Storage("failed to write journal", err)
	}
	return nil
}

// Path returns the CSV file path.
func (s *PatientStore) Path() string {
	return s.path
}

// Len returns the number of patients.
func (s *PatientStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Len()
}

// NextID returns the ID the next added patient will get.
func (s *PatientStore) NextID() int64 {
	return int64(s.Len() + 1)
}

// Dirty reports whether the table changed since it was loaded or saved.
func (s *PatientStore) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// List returns every patient in table order.
func (s *PatientStore) List() []models.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Patient, 0, s.table.Len())
	for _, row := range s.table.All() {
		out = append(out, models.PatientFromRow(row))
	}
	return out
}

// Search returns the patients whose field starts with query, ignoring case.
func (s *PatientStore) Search(by SearchField, query string) []models.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.table.FindByField(query, by.column())
	out := make([]models.Patient, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.PatientFromRow(row))
	}
	return out
}

// Get returns the patient with the given ID.
func (s *PatientStore) Get(id int64) (models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return models.Patient{}, err
	}
	return models.PatientFromRow(row), nil
}

func (s *PatientStore) rowLocked(id int64) (*csvdb.Row, error) {
	if id < 1 || id > int64(s.table.Len()) {
		return nil, errors.NotFound(fmt.Sprintf("patient %d", id)).WithDetail("id", id)
	}
	return s.table.At(int(id - 1)), nil
}

// Add appends p with the next ID and returns the stored patient. p.ID is
// ignored.
func (s *PatientStore) Add(ctx context.Context, p models.Patient) (models.Patient, error) {
	if err := p.Validate(); err != nil {
		return models.Patient{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = int64(s.table.Len() + 1)
	if err := s.record(OpAdd, p); err != nil {
		return models.Patient{}, err
	}
	s.table.Insert(p.Row())
	s.dirty = true
	slog.DebugContext(ctx, "Added patient", "id", p.ID)
	return p, nil
}

// Preview returns the patient as it would be after applying edit, without
// changing the table.
func (s *PatientStore) Preview(id int64, edit models.PatientEdit) (models.Patient, error) {
	if err := edit.Validate(); err != nil {
		return models.Patient{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return models.Patient{}, err
	}
	preview := row.Clone()
	if err := edit.Apply(preview); err != nil {
		return models.Patient{}, err
	}
	return models.PatientFromRow(preview), nil
}

// Update applies edit to the patient with the given ID and returns the
// result. On error the patient is unchanged.
func (s *PatientStore) Update(ctx context.Context, id int64, edit models.PatientEdit) (models.Patient, error) {
	if err := edit.Validate(); err != nil {
		return models.Patient{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return models.Patient{}, err
	}
	next := row.Clone()
	if err := edit.Apply(next); err != nil {
		return models.Patient{}, err
	}
	p := models.PatientFromRow(next)
	if err := s.record(OpUpdate, p); err != nil {
		return models.Patient{}, err
	}
	if err := edit.Apply(row); err != nil {
		return models.Patient{}, err
	}
	s.dirty = true
	slog.DebugContext(ctx, "Updated patient", "id", id)
	return p, nil
}

// Remove deletes the patient with the given ID and returns it. Patients after
// it move up by one ID.
func (s *PatientStore) Remove(ctx context.Context, id int64) (models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return models.Patient{}, err
	}
	p := models.PatientFromRow(row)
	if err := s.record(OpRemove, p); err != nil {
		return models.Patient{}, err
	}
	s.table.RemoveAt(int(id - 1))
	s.dirty = true
	slog.DebugContext(ctx, "Removed patient", "id", id)
	return p, nil
}

// Save writes the table to the CSV file and, when history is enabled, commits
// it. A failed commit does not fail the save: it is logged and reported by
// HistoryError.
func (s *PatientStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.SaveCSV(s.path); err != nil {
		return err
	}
	state, err := statFile(s.path)
	if err != nil {
		return errors.Storage(fmt.Sprintf("failed to stat %s", s.path), err)
	}
	s.state = state
	s.dirty = false
	s.pending = nil
	if s.journal != nil {
		if err := s.journal.Reset(); err != nil {
			return fmt.Errorf("saved but failed to reset journal: %w", err)
		}
	}
	slog.InfoContext(ctx, "Saved patients", "path", s.path, "count", s.table.Len())
	if s.history != nil {
		msg := fmt.Sprintf("Save %d patients", s.table.Len())
		s.historyErr = s.history.Commit(ctx, s.path, msg)
		if s.historyErr != nil {
			slog.WarnContext(ctx, "Saved but failed to record history", "path", s.path, "err", s.historyErr)
		}
	}
	return nil
}

// HistoryError returns the error of the history commit of the last Save, if
// any.
func (s *PatientStore) HistoryError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyErr
}

// Modified reports whether the CSV file differs from what the store last
// loaded or saved.
func (s *PatientStore) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := statFile(s.path)
	if err != nil {
		return true
	}
	return state.exists != s.state.exists || state.size != s.state.size || !state.modTime.Equal(s.state.modTime)
}
