package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/live-assist/voice-platform/internal/model"
)

// MemoryStore is an in-process ConversationStore used by tests and by
// development mode when no database is configured. Row-level locking is
// modeled with one mutex per record so GetForUpdate serializes writers the
// same way SELECT ... FOR UPDATE does.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rowMu sync.Mutex
	rec   model.ConversationRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Create stores a new record, allocating a UUIDv7 id when absent.
func (s *MemoryStore) Create(_ context.Context, rec *model.ConversationRecord) (*model.ConversationRecord, error) {
	now := s.now()

	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.Must(uuid.NewV7()).String()
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.LastActivityAt.IsZero() {
		stored.LastActivityAt = now
	}

	s.mu.Lock()
	s.records[stored.ID] = &memoryEntry{rec: stored}
	s.mu.Unlock()

	out := stored
	return &out, nil
}

// Get returns a copy of the record by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.ConversationRecord, error) {
	s.mu.RLock()
	entry, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	entry.rowMu.Lock()
	rec := entry.rec
	entry.rowMu.Unlock()
	return &rec, nil
}

// FindActive returns the most-recently-active record for the session key,
// inclusive of the window boundary.
func (s *MemoryStore) FindActive(_ context.Context, sessionKey string, since time.Time) (*model.ConversationRecord, error) {
	if sessionKey == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	var candidates []model.ConversationRecord
	for _, entry := range s.records {
		entry.rowMu.Lock()
		rec := entry.rec
		entry.rowMu.Unlock()
		if rec.SessionKey == sessionKey && !rec.LastActivityAt.Before(since) {
			candidates = append(candidates, rec)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].LastActivityAt.Equal(candidates[j].LastActivityAt) {
			return candidates[i].LastActivityAt.After(candidates[j].LastActivityAt)
		}
		return candidates[i].ID > candidates[j].ID
	})

	rec := candidates[0]
	return &rec, nil
}

// UpdateFields applies a partial write under the record's row lock.
func (s *MemoryStore) UpdateFields(_ context.Context, id string, fields Fields) error {
	s.mu.RLock()
	entry, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	entry.rowMu.Lock()
	defer entry.rowMu.Unlock()
	s.applyFields(&entry.rec, fields)
	return nil
}

// GetForUpdate holds the record's row lock across the read-modify-write.
func (s *MemoryStore) GetForUpdate(_ context.Context, id string, fn UpdateFunc) error {
	s.mu.RLock()
	entry, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	entry.rowMu.Lock()
	defer entry.rowMu.Unlock()

	current := entry.rec
	fields, err := fn(&current)
	if err != nil {
		return err
	}
	s.applyFields(&entry.rec, fields)
	return nil
}

// List returns matching records, most recently active first.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]model.ConversationRecord, error) {
	s.mu.RLock()
	var out []model.ConversationRecord
	for _, entry := range s.records {
		entry.rowMu.Lock()
		rec := entry.rec
		entry.rowMu.Unlock()

		if f.SessionKey != "" && rec.SessionKey != f.SessionKey {
			continue
		}
		if f.OwnerName != "" && rec.OwnerName != f.OwnerName {
			continue
		}
		if !f.Since.IsZero() && rec.LastActivityAt.Before(f.Since) {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) applyFields(rec *model.ConversationRecord, fields Fields) {
	if fields.Transcript != nil {
		rec.Transcript = *fields.Transcript
	}
	if fields.OwnerName != nil {
		rec.OwnerName = *fields.OwnerName
	}
	if fields.LastActivityAt != nil {
		rec.LastActivityAt = *fields.LastActivityAt
	}
	if fields.Analysis != nil {
		analysis := *fields.Analysis
		rec.Analysis = &analysis
	}
	if fields.AnalysisRaw != nil {
		rec.AnalysisRaw = append(json.RawMessage(nil), fields.AnalysisRaw...)
	}
	rec.UpdatedAt = s.now()
}
