package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/live-assist/voice-platform/internal/model"
)

const conversationColumns = `id, session_key, owner_name, transcript,
	summary, satisfaction_rating, satisfaction_label, user_behavior,
	conversation_topic, feedback_summary, analysis_engine, analyzed_at,
	analysis_raw, created_at, updated_at, last_activity_at`

// PostgresStore is the production ConversationStore backed by pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 25
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity; used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create stores a new record, allocating a UUIDv7 id when absent.
func (s *PostgresStore) Create(ctx context.Context, rec *model.ConversationRecord) (*model.ConversationRecord, error) {
	id := rec.ID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, session_key, owner_name, transcript, last_activity_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		RETURNING `+conversationColumns,
		id, rec.SessionKey, rec.OwnerName, rec.Transcript, nullTime(rec.LastActivityAt),
	)
	return scanConversation(row)
}

// Get returns the record by id or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.ConversationRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// FindActive returns the most-recently-active record for the session key
// with last_activity_at >= since, or ErrNotFound. The boundary is inclusive.
func (s *PostgresStore) FindActive(ctx context.Context, sessionKey string, since time.Time) (*model.ConversationRecord, error) {
	if sessionKey == "" {
		return nil, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE session_key = $1 AND last_activity_at >= $2
		ORDER BY last_activity_at DESC, id DESC
		LIMIT 1`,
		sessionKey, since,
	)
	return scanConversation(row)
}

// UpdateFields performs a partial write touching only the named fields plus
// updated_at.
func (s *PostgresStore) UpdateFields(ctx context.Context, id string, fields Fields) error {
	query, args := buildUpdate(id, fields)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetForUpdate runs fn against the row locked with SELECT ... FOR UPDATE
// inside a transaction, then persists the returned field set. Concurrent
// finalize attempts on one record serialize here.
func (s *PostgresStore) GetForUpdate(ctx context.Context, id string, fn UpdateFunc) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, id)
		rec, err := scanConversation(row)
		if err != nil {
			return err
		}

		fields, err := fn(rec)
		if err != nil {
			return err
		}

		query, args := buildUpdate(id, fields)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to persist locked update: %w", err)
		}
		return nil
	})
}

// List returns records matching the filter, most recently active first.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]model.ConversationRecord, error) {
	var (
		conds []string
		args  []any
	)
	if f.SessionKey != "" {
		args = append(args, f.SessionKey)
		conds = append(conds, fmt.Sprintf("session_key = $%d", len(args)))
	}
	if f.OwnerName != "" {
		args = append(args, f.OwnerName)
		conds = append(conds, fmt.Sprintf("owner_name = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		conds = append(conds, fmt.Sprintf("last_activity_at >= $%d", len(args)))
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY last_activity_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.ConversationRecord
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes a record.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildUpdate assembles the SET clause from the non-nil field members.
// updated_at is always touched; created_at never appears.
func buildUpdate(id string, fields Fields) (string, []any) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.Transcript != nil {
		add("transcript", *fields.Transcript)
	}
	if fields.OwnerName != nil {
		add("owner_name", *fields.OwnerName)
	}
	if fields.LastActivityAt != nil {
		add("last_activity_at", *fields.LastActivityAt)
	}
	if fields.Analysis != nil {
		a := fields.Analysis
		add("summary", a.Summary)
		add("satisfaction_rating", a.SatisfactionRating)
		add("satisfaction_label", a.SatisfactionLabel)
		add("user_behavior", a.UserBehavior)
		add("conversation_topic", a.ConversationTopic)
		add("feedback_summary", a.FeedbackSummary)
		add("analysis_engine", a.Engine)
		add("analyzed_at", a.AnalyzedAt)
	}
	if fields.AnalysisRaw != nil {
		add("analysis_raw", []byte(fields.AnalysisRaw))
	}

	query := "UPDATE conversations SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.ConversationRecord, error) {
	var (
		rec                model.ConversationRecord
		summary            string
		satisfactionRating sql.NullInt32
		satisfactionLabel  string
		userBehavior       string
		conversationTopic  string
		feedbackSummary    string
		analysisEngine     string
		analyzedAt         sql.NullTime
		analysisRaw        []byte
	)

	err := row.Scan(
		&rec.ID, &rec.SessionKey, &rec.OwnerName, &rec.Transcript,
		&summary, &satisfactionRating, &satisfactionLabel, &userBehavior,
		&conversationTopic, &feedbackSummary, &analysisEngine, &analyzedAt,
		&analysisRaw, &rec.CreatedAt, &rec.UpdatedAt, &rec.LastActivityAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	// analyzed_at is the presence marker: analysis fields are written as a
	// unit, so a set timestamp means a complete analysis.
	if analyzedAt.Valid {
		analysis := &model.Analysis{
			Summary:           summary,
			SatisfactionLabel: satisfactionLabel,
			UserBehavior:      userBehavior,
			ConversationTopic: conversationTopic,
			FeedbackSummary:   feedbackSummary,
			Engine:            analysisEngine,
			AnalyzedAt:        analyzedAt.Time,
		}
		if satisfactionRating.Valid {
			rating := int(satisfactionRating.Int32)
			analysis.SatisfactionRating = &rating
		}
		rec.Analysis = analysis
	}
	if len(analysisRaw) > 0 {
		rec.AnalysisRaw = analysisRaw
	}
	return &rec, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
