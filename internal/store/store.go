// Package store is the persistence boundary for conversation records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/live-assist/voice-platform/internal/model"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("conversation not found")

// Fields names exactly the columns an update touches. Only non-nil members
// are written; updated_at is always refreshed and created_at is never
// disturbed. This keeps concurrent transcript and analysis writers from
// clobbering each other.
type Fields struct {
	Transcript     *string
	OwnerName      *string
	LastActivityAt *time.Time
	Analysis       *model.Analysis
	AnalysisRaw    json.RawMessage
}

// Filter restricts listing queries.
type Filter struct {
	SessionKey string
	OwnerName  string
	Since      time.Time
	Limit      int
}

// UpdateFunc receives the locked record and returns the field set to
// persist before the lock is released.
type UpdateFunc func(rec *model.ConversationRecord) (Fields, error)

// ConversationStore is the row-store contract the core depends on.
type ConversationStore interface {
	// Create allocates an id if missing, sets creation timestamps, and
	// returns the stored record.
	Create(ctx context.Context, rec *model.ConversationRecord) (*model.ConversationRecord, error)

	// Get returns the record by id or ErrNotFound.
	Get(ctx context.Context, id string) (*model.ConversationRecord, error)

	// FindActive returns the most-recently-active record for the session
	// key with last_activity_at >= since (inclusive), ordered by
	// last_activity_at desc then id desc, or ErrNotFound.
	FindActive(ctx context.Context, sessionKey string, since time.Time) (*model.ConversationRecord, error)

	// UpdateFields performs a partial write touching only the named fields.
	UpdateFields(ctx context.Context, id string, fields Fields) error

	// GetForUpdate acquires a row-level exclusive lock, invokes fn with the
	// current record, and persists the returned field set before releasing
	// the lock. It is the store's serialization point for analysis writes.
	GetForUpdate(ctx context.Context, id string, fn UpdateFunc) error

	// List returns records matching the filter, most recently active first.
	List(ctx context.Context, f Filter) ([]model.ConversationRecord, error)

	// Delete removes a record. Deletion is always an explicit external
	// operation; the core never deletes on its own.
	Delete(ctx context.Context, id string) error
}
