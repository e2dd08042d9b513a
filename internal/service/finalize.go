package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/internal/analysis"
	"github.com/live-assist/voice-platform/internal/model"
	"github.com/live-assist/voice-platform/internal/store"
	"github.com/live-assist/voice-platform/pkg/logger"
	"github.com/live-assist/voice-platform/pkg/metrics"
)

// FinalizeQueue enqueues a finalize unit of work for background execution.
// Enqueue failure is reportable and triggers the synchronous fallback.
type FinalizeQueue interface {
	Enqueue(ctx context.Context, recordID string) error
}

// FinalizeOrchestrator decides whether a finalize request proceeds, how it
// executes (synchronously or on the background queue), and reconciles the
// two paths so analysis runs at most meaningfully once per request.
type FinalizeOrchestrator struct {
	store      store.ConversationStore
	chain      *analysis.Chain
	queue      FinalizeQueue
	async      bool
	endReasons map[string]struct{}
	logger     *logger.Logger
	now        func() time.Time
}

// NewFinalizeOrchestrator creates the orchestrator. A nil queue disables
// the asynchronous path regardless of the async flag.
func NewFinalizeOrchestrator(
	st store.ConversationStore,
	chain *analysis.Chain,
	queue FinalizeQueue,
	async bool,
	endReasons []string,
	log *logger.Logger,
) *FinalizeOrchestrator {
	reasons := make(map[string]struct{}, len(endReasons))
	for _, r := range endReasons {
		reasons[normalizeReason(r)] = struct{}{}
	}
	return &FinalizeOrchestrator{
		store:      st,
		chain:      chain,
		queue:      queue,
		async:      async,
		endReasons: reasons,
		logger:     log,
		now:        time.Now,
	}
}

// ShouldFinalize reports whether a finalize request meets the confirmation
// criteria: an explicit confirmation flag, or an end-reason matching one of
// the recognized end-of-session markers. Termination paths like a network
// drop cannot confirm interactively but must still not lose analysis.
func (o *FinalizeOrchestrator) ShouldFinalize(req *model.SaveConversationRequest) bool {
	if !req.Finalize {
		return false
	}
	if req.Confirmed {
		return true
	}
	_, ok := o.endReasons[normalizeReason(req.Reason)]
	return ok
}

// Finalize executes one finalize request for the record. It returns whether
// finalization was actually performed (or durably handed to the queue) this
// request. Analysis degradation is never an error; only a store failure is.
func (o *FinalizeOrchestrator) Finalize(ctx context.Context, recordID string, req *model.SaveConversationRequest) (bool, error) {
	log := o.logger.With(zap.String("record_id", recordID))

	if !o.ShouldFinalize(req) {
		if req.Finalize {
			log.Info("finalization skipped, confirmation criteria unmet",
				zap.String("reason", req.Reason),
			)
			metrics.FinalizeRequests.WithLabelValues("skipped", "unconfirmed").Inc()
		}
		return false, nil
	}

	log.Info("finalization requested",
		zap.Bool("confirmed", req.Confirmed),
		zap.String("reason", req.Reason),
	)

	// A caller that disconnects mid-request must not abort a finalization
	// it already confirmed; the per-tier timeouts still bound the analysis
	// calls.
	ctx = context.WithoutCancel(ctx)

	if o.async && o.queue != nil {
		if err := o.queue.Enqueue(ctx, recordID); err == nil {
			metrics.FinalizeRequests.WithLabelValues("async", "queued").Inc()
			metrics.FinalizeJobsEnqueued.Inc()
			log.Info("finalize job enqueued")
			return true, nil
		} else {
			// Never leave a confirmed finalize request with no analysis
			// attempt at all.
			log.Warn("finalize enqueue failed, falling back to synchronous analysis", zap.Error(err))
			metrics.FinalizeRequests.WithLabelValues("fallback_sync", "enqueue_failed").Inc()
		}
	}

	if err := o.FinalizeRecord(ctx, recordID); err != nil {
		metrics.FinalizeRequests.WithLabelValues("sync", "error").Inc()
		return false, err
	}
	metrics.FinalizeRequests.WithLabelValues("sync", "persisted").Inc()
	return true, nil
}

// FinalizeRecord is the shared analyze-then-locked-persist procedure used
// by both the synchronous path and the background worker: re-fetch the
// record, run the analysis chain with no lock held, then persist the
// complete analysis snapshot under the row lock.
func (o *FinalizeOrchestrator) FinalizeRecord(ctx context.Context, recordID string) error {
	rec, err := o.store.Get(ctx, recordID)
	if err != nil {
		return fmt.Errorf("failed to load record for analysis: %w", err)
	}

	log := o.logger.WithRecord(rec.ID, rec.SessionKey)
	log.Info("analysis started", zap.Int("transcript_len", len(rec.Transcript)))

	// The chain never fails; the slow network calls happen before any lock
	// is taken.
	result, raw := o.chain.Analyze(ctx, rec.Transcript)

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		rawJSON = []byte(fmt.Sprintf(`{"engine":%q,"note":"raw payload marshal failed"}`, result.Engine))
	}
	snapshot := resultToAnalysis(result, o.now())

	err = o.store.GetForUpdate(ctx, recordID, func(_ *model.ConversationRecord) (store.Fields, error) {
		now := o.now()
		return store.Fields{
			Analysis:       snapshot,
			AnalysisRaw:    rawJSON,
			LastActivityAt: &now,
		}, nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist analysis: %w", err)
	}

	log.Info("analysis persisted",
		zap.String("engine", result.Engine),
		zap.Int("summary_len", len(snapshot.Summary)),
	)
	return nil
}

// resultToAnalysis converts a chain result into the persisted analysis
// snapshot. Out-of-range ratings are stored as absent rather than clamped.
func resultToAnalysis(result *analysis.Result, now time.Time) *model.Analysis {
	a := &model.Analysis{
		Summary:           result.Summary,
		SatisfactionLabel: result.Satisfaction.Label,
		UserBehavior:      result.UserBehavior,
		ConversationTopic: result.ConversationTopic,
		FeedbackSummary:   result.FeedbackSummary,
		Engine:            result.Engine,
		AnalyzedAt:        now,
	}
	if r := result.Satisfaction.Rating; r >= 1 && r <= 5 {
		rating := r
		a.SatisfactionRating = &rating
	}
	return a
}

func normalizeReason(reason string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(reason)), " ", "_")
}
