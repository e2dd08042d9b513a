package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/internal/store"
	"github.com/live-assist/voice-platform/pkg/logger"
	"github.com/live-assist/voice-platform/pkg/metrics"
)

const consumerName = "finalize-worker"

// Finalizer runs the analyze-and-persist procedure for one record.
type Finalizer interface {
	FinalizeRecord(ctx context.Context, recordID string) error
}

// Worker consumes finalize jobs from the stream. Failed jobs are
// redelivered on a backoff schedule up to the attempt budget; jobs that can
// never succeed are terminated so they stop occupying the queue.
type Worker struct {
	client      *Client
	finalizer   Finalizer
	maxAttempts int
	jobTimeout  time.Duration
	logger      *logger.Logger

	consume jetstream.ConsumeContext
}

// NewWorker creates a worker. maxAttempts bounds total deliveries of one
// job, matching the synchronous path's retry budget.
func NewWorker(client *Client, finalizer Finalizer, maxAttempts int, jobTimeout time.Duration, log *logger.Logger) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		client:      client,
		finalizer:   finalizer,
		maxAttempts: maxAttempts,
		jobTimeout:  jobTimeout,
		logger:      log,
	}
}

// Start creates the durable consumer and begins processing jobs.
func (w *Worker) Start(ctx context.Context) error {
	consumer, err := w.client.JetStream().CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: SubjectFinalize,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    w.maxAttempts,
		BackOff:       retrySchedule(w.maxAttempts - 1),
		MaxAckPending: 16,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(w.handle)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	w.consume = cc
	w.logger.Info("finalize worker started",
		zap.String("stream", StreamName),
		zap.Int("max_attempts", w.maxAttempts),
	)
	return nil
}

// Stop halts job consumption. In-flight handlers finish on their own.
func (w *Worker) Stop() {
	if w.consume != nil {
		w.consume.Stop()
	}
}

func (w *Worker) handle(msg jetstream.Msg) {
	attempt := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		attempt = meta.NumDelivered
	}

	job, err := decodeJob(msg.Data())
	if err != nil {
		// A malformed payload will never decode on redelivery.
		w.logger.Error("dropping undecodable finalize job", zap.Error(err))
		metrics.FinalizeJobsProcessed.WithLabelValues("dropped").Inc()
		_ = msg.TermWithReason("undecodable payload")
		return
	}

	log := w.logger.With(
		zap.String("record_id", job.RecordID),
		zap.Uint64("attempt", attempt),
	)

	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	err = w.finalizer.FinalizeRecord(ctx, job.RecordID)
	switch {
	case err == nil:
		metrics.FinalizeJobsProcessed.WithLabelValues("ok").Inc()
		log.Info("finalize job processed")
		_ = msg.Ack()

	case permanent(err):
		metrics.FinalizeJobsProcessed.WithLabelValues("dropped").Inc()
		log.Warn("finalize job terminated", zap.Error(err))
		_ = msg.TermWithReason(err.Error())

	default:
		metrics.FinalizeJobsProcessed.WithLabelValues("retry").Inc()
		if attempt >= uint64(w.maxAttempts) {
			log.Error("finalize job failed on final attempt", zap.Error(err))
		} else {
			log.Warn("finalize job failed, scheduling retry", zap.Error(err))
		}
		_ = msg.Nak()
	}
}

// permanent reports whether retrying the job can never succeed.
func permanent(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// retrySchedule produces n redelivery delays growing exponentially from
// two seconds, capped at five minutes.
func retrySchedule(n int) []time.Duration {
	if n < 1 {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0

	schedule := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		schedule = append(schedule, b.NextBackOff())
	}
	return schedule
}
