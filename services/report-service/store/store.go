package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"seva-platform/pkg/apperrors"
	"seva-platform/services/report-service/models"
)

// CounterField names one of the monotonic vote counters on a report.
type CounterField string

const (
	FieldVotes          CounterField = "votes"
	FieldCompletedVotes CounterField = "completedVotes"
)

// Store owns the report collection. All mutations serialize behind one mutex
// and snapshot the whole collection to a JSON file before returning, so a
// successful call is durable and no partial write is ever visible. Records
// carry a rev counter bumped on every mutation so callers can detect lost
// updates.
type Store struct {
	mu    sync.Mutex
	path  string
	byID  map[string]*models.Report
	order []string // report ids, most-recently-created first
}

// Open loads the snapshot at path, creating an empty collection file if none
// exists yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		byID: make(map[string]*models.Report),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read report snapshot: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("failed to create report snapshot: %w", err)
		}
		return s, nil
	}

	var reports []models.Report
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &reports); err != nil {
			return nil, fmt.Errorf("failed to parse report snapshot: %w", err)
		}
	}

	for i := range reports {
		r := reports[i]
		s.byID[r.ID] = &r
		s.order = append(s.order, r.ID)
	}
	return s, nil
}

// persistLocked writes the full collection to disk. Callers must hold mu.
// Write-then-rename keeps the snapshot whole even if the process dies
// mid-write.
func (s *Store) persistLocked() error {
	reports := s.snapshotLocked()

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace report snapshot: %w", err)
	}
	return nil
}

func (s *Store) snapshotLocked() []models.Report {
	reports := make([]models.Report, 0, len(s.order))
	for _, id := range s.order {
		reports = append(reports, s.byID[id].Clone())
	}
	return reports
}

// ListAll returns every report, most-recently-created first.
func (s *Store) ListAll() []models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) GetByID(id string) (models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", id, apperrors.ErrNotFound)
	}
	return r.Clone(), nil
}

// Create persists a fully-formed record. The caller has already applied
// defaults and run assignment; the store only enforces the title requirement.
func (s *Store) Create(r models.Report) (models.Report, error) {
	if strings.TrimSpace(r.Title) == "" {
		return models.Report{}, fmt.Errorf("missing title: %w", apperrors.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[r.ID]; exists {
		return models.Report{}, fmt.Errorf("report %s already exists: %w", r.ID, apperrors.ErrConflict)
	}

	r.Rev = 1
	rec := r.Clone()
	s.byID[r.ID] = &rec
	s.order = append([]string{r.ID}, s.order...)

	if err := s.persistLocked(); err != nil {
		delete(s.byID, r.ID)
		s.order = s.order[1:]
		return models.Report{}, err
	}
	return rec.Clone(), nil
}

// Replace overwrites the record wholesale and bumps its rev. Used by the
// lifecycle engine for partial updates after merging.
func (s *Store) Replace(id string, r models.Report) (models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[id]
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", id, apperrors.ErrNotFound)
	}

	r.ID = id
	r.Rev = prev.Rev + 1
	rec := r.Clone()
	s.byID[id] = &rec

	if err := s.persistLocked(); err != nil {
		s.byID[id] = prev
		return models.Report{}, err
	}
	return rec.Clone(), nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("report %s: %w", id, apperrors.ErrNotFound)
	}

	delete(s.byID, id)
	pos := -1
	for i, oid := range s.order {
		if oid == id {
			pos = i
			break
		}
	}
	s.order = append(s.order[:pos], s.order[pos+1:]...)

	if err := s.persistLocked(); err != nil {
		s.byID[id] = prev
		s.order = append(s.order[:pos], append([]string{id}, s.order[pos:]...)...)
		return err
	}
	return nil
}

// AppendComment atomically appends to the report's thread. Comments are
// append-only: existing entries are never reordered or altered.
func (s *Store) AppendComment(id string, c models.Comment) (models.Comment, error) {
	if strings.TrimSpace(c.Text) == "" {
		return models.Comment{}, fmt.Errorf("missing comment text: %w", apperrors.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return models.Comment{}, fmt.Errorf("report %s: %w", id, apperrors.ErrNotFound)
	}

	r.Comments = append(r.Comments, c)
	r.Rev++

	if err := s.persistLocked(); err != nil {
		r.Comments = r.Comments[:len(r.Comments)-1]
		r.Rev--
		return models.Comment{}, err
	}
	return c, nil
}

// IncrementVote bumps the named counter by exactly 1. Counters only ever go
// up.
func (s *Store) IncrementVote(id string, field CounterField) (models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", id, apperrors.ErrNotFound)
	}

	switch field {
	case FieldVotes:
		r.Votes++
	case FieldCompletedVotes:
		r.CompletedVotes++
	default:
		return models.Report{}, fmt.Errorf("unknown counter %q: %w", field, apperrors.ErrValidation)
	}
	r.Rev++

	if err := s.persistLocked(); err != nil {
		switch field {
		case FieldVotes:
			r.Votes--
		case FieldCompletedVotes:
			r.CompletedVotes--
		}
		r.Rev--
		return models.Report{}, err
	}
	return r.Clone(), nil
}
