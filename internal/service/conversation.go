// Package service provides business logic for the voice conversation platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/internal/model"
	"github.com/live-assist/voice-platform/internal/store"
	"github.com/live-assist/voice-platform/internal/transcript"
	"github.com/live-assist/voice-platform/pkg/logger"
	"github.com/live-assist/voice-platform/pkg/metrics"
)

// ConversationService handles transcript upserts and record queries.
type ConversationService struct {
	store         store.ConversationStore
	recencyWindow time.Duration
	logger        *logger.Logger
	now           func() time.Time
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.ConversationStore, recencyWindow time.Duration, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:         st,
		recencyWindow: recencyWindow,
		logger:        log,
		now:           time.Now,
	}
}

// Save upserts the canonical record for a session: the merged transcript
// either mutates the resolved active record or creates a new one. Returns
// the record and whether it was created by this call.
func (s *ConversationService) Save(ctx context.Context, req *model.SaveConversationRequest) (*model.ConversationRecord, bool, error) {
	merged := transcript.Merge(req.UserText, req.AIText)
	now := s.now()

	rec, err := s.Resolve(ctx, req.ConversationID, req.SessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		created, err := s.store.Create(ctx, &model.ConversationRecord{
			SessionKey:     strings.TrimSpace(req.SessionID),
			OwnerName:      strings.TrimSpace(req.OwnerName),
			Transcript:     merged,
			LastActivityAt: now,
		})
		if err != nil {
			metrics.ConversationUpserts.WithLabelValues("error").Inc()
			return nil, false, fmt.Errorf("failed to create conversation: %w", err)
		}
		metrics.ConversationsCreated.Inc()
		metrics.ConversationUpserts.WithLabelValues("created").Inc()
		s.logger.Info("conversation created",
			zap.String("record_id", created.ID),
			zap.String("session_key", created.SessionKey),
		)
		return created, true, nil

	case err != nil:
		metrics.ConversationUpserts.WithLabelValues("error").Inc()
		return nil, false, err
	}

	fields := store.Fields{LastActivityAt: &now}
	if merged != "" {
		// An empty fragment never clears an existing transcript.
		fields.Transcript = &merged
		rec.Transcript = merged
	}
	if owner := strings.TrimSpace(req.OwnerName); owner != "" && owner != rec.OwnerName {
		fields.OwnerName = &owner
		rec.OwnerName = owner
	}
	if err := s.store.UpdateFields(ctx, rec.ID, fields); err != nil {
		metrics.ConversationUpserts.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to save conversation: %w", err)
	}
	rec.LastActivityAt = now
	rec.UpdatedAt = now

	metrics.ConversationUpserts.WithLabelValues("updated").Inc()
	s.logger.Info("conversation upserted",
		zap.String("record_id", rec.ID),
		zap.String("session_key", rec.SessionKey),
	)
	return rec, false, nil
}

// Resolve locates the single active record for an update. A caller-supplied
// id overrides recency heuristics; malformed ids fall through to the
// recency lookup rather than erroring, and a miss there signals
// store.ErrNotFound so the caller creates a new record.
func (s *ConversationService) Resolve(ctx context.Context, explicitID, sessionKey string) (*model.ConversationRecord, error) {
	if explicitID != "" {
		if _, err := uuid.Parse(explicitID); err == nil {
			rec, err := s.store.Get(ctx, explicitID)
			if err == nil {
				return rec, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}

	since := s.now().Add(-s.recencyWindow)
	return s.store.FindActive(ctx, strings.TrimSpace(sessionKey), since)
}

// Get returns the full record by id.
func (s *ConversationService) Get(ctx context.Context, id string) (*model.ConversationRecord, error) {
	return s.store.Get(ctx, id)
}

// List returns conversations active within the last `days`, newest first,
// with derived title and snippet.
func (s *ConversationService) List(ctx context.Context, limit, days int, sessionKey, ownerName string) (*model.ListConversationsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if days <= 0 || days > 365 {
		days = 30
	}

	records, err := s.store.List(ctx, store.Filter{
		SessionKey: sessionKey,
		OwnerName:  ownerName,
		Since:      s.now().AddDate(0, 0, -days),
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	items := make([]model.ConversationListItem, 0, len(records))
	for _, rec := range records {
		summary := ""
		if rec.Analysis != nil {
			summary = rec.Analysis.Summary
		}
		title, snippet := deriveTitleAndSnippet(rec.Transcript, summary)
		items = append(items, model.ConversationListItem{
			ID:           rec.ID,
			Title:        title,
			Snippet:      snippet,
			LastActivity: rec.LastActivityAt.Format(time.RFC3339),
			SessionID:    rec.SessionKey,
			OwnerName:    rec.OwnerName,
		})
	}
	return &model.ListConversationsResponse{Items: items}, nil
}

// Delete removes a record. Deletion is an explicit external operation.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("conversation deleted", zap.String("record_id", id))
	return nil
}

// Stats aggregates conversation outcomes over the trailing window.
func (s *ConversationService) Stats(ctx context.Context, window time.Duration) (*model.StatsResponse, error) {
	now := s.now()
	start := now.Add(-window)

	records, err := s.store.List(ctx, store.Filter{Since: start})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	stats := &model.StatsResponse{
		WindowStart: start.Format(time.RFC3339),
		WindowEnd:   now.Format(time.RFC3339),
	}
	for _, rec := range records {
		if !rec.CreatedAt.Before(start) {
			stats.Created++
		}
		if rec.Analysis == nil || rec.Analysis.AnalyzedAt.Before(start) {
			continue
		}
		stats.Analyzed++
		switch bucketFor(rec.Analysis.SatisfactionLabel, rec.Analysis.SatisfactionRating) {
		case model.BucketSatisfied:
			stats.Satisfied++
		case model.BucketDissatisfied:
			stats.Dissatisfied++
		default:
			stats.Neutral++
		}
	}
	return stats, nil
}

// bucketFor classifies an analyzed conversation by label first, then by
// rating thresholds when the label is unknown.
func bucketFor(label string, rating *int) model.SatisfactionBucket {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "satisfied", "good", "great", "happy":
		return model.BucketSatisfied
	case "negative", "dissatisfied", "bad", "unhappy":
		return model.BucketDissatisfied
	}
	if rating != nil {
		if *rating >= 4 {
			return model.BucketSatisfied
		}
		if *rating <= 2 {
			return model.BucketDissatisfied
		}
	}
	return model.BucketNeutral
}

// deriveTitleAndSnippet builds the listing metadata: the summary when
// present, otherwise the transcript's first non-blank line, truncated.
func deriveTitleAndSnippet(conversationText, summary string) (title, snippet string) {
	title = strings.TrimSpace(summary)
	text := strings.TrimSpace(conversationText)

	if title == "" {
		for _, line := range strings.Split(text, "\n") {
			if ln := strings.TrimSpace(line); ln != "" {
				title = ln
				break
			}
		}
		title = truncate(title, 80)
		if title == "" {
			title = "Untitled conversation"
		}
	}

	src := summary
	if src == "" {
		src = text
	}
	snippet = truncate(src, 120)
	return title, snippet
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
