package analysis

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/pkg/logger"
	"github.com/live-assist/voice-platform/pkg/metrics"
)

// Engine is one strategy in the analysis fallback chain.
type Engine interface {
	// Name identifies the engine in results, raw payloads, and logs.
	Name() string

	// Analyze produces a structured result and its raw audit payload, or an
	// error that sends the chain to the next tier.
	Analyze(ctx context.Context, transcript string) (*Result, *RawPayload, error)
}

// Tier pairs an engine with the timeout applied to its calls. A zero
// timeout means no deadline (used by the local tier).
type Tier struct {
	Engine  Engine
	Timeout time.Duration
}

// Chain runs tiers strictly in order, degrading quality before ever
// failing. The final tier must be infallible; NewChain appends the local
// engine to guarantee that.
type Chain struct {
	tiers  []Tier
	logger *logger.Logger
	now    func() time.Time
}

// NewChain builds a chain from the given upstream tiers plus the terminal
// local fallback.
func NewChain(log *logger.Logger, tiers ...Tier) *Chain {
	all := make([]Tier, 0, len(tiers)+1)
	all = append(all, tiers...)
	all = append(all, Tier{Engine: NewLocalEngine()})
	return &Chain{
		tiers:  all,
		logger: log,
		now:    time.Now,
	}
}

// Analyze never returns an error to its caller: both return values are
// always non-nil. The raw payload carries the error detail of every tier
// that was attempted and failed before the winning one.
func (c *Chain) Analyze(ctx context.Context, transcript string) (*Result, *RawPayload) {
	transcript = strings.TrimSpace(transcript)

	tiers := c.tiers
	if transcript == "" {
		// Nothing for an upstream model to analyze; go straight to the
		// terminal tier.
		tiers = c.tiers[len(c.tiers)-1:]
	}

	tierErrors := make(map[string]string)
	for _, tier := range tiers {
		result, raw, err := c.attempt(ctx, tier, transcript)
		if err != nil {
			tierErrors[tier.Engine.Name()] = err.Error()
			c.logger.Warn("analysis tier failed, falling through",
				zap.String("tier", tier.Engine.Name()),
				zap.Error(err),
			)
			continue
		}

		if result.Engine == "" {
			result.Engine = tier.Engine.Name()
		}
		normalizeTimestamp(result, c.now)

		if raw == nil {
			raw = &RawPayload{Engine: tier.Engine.Name()}
		}
		if len(tierErrors) > 0 {
			raw.Errors = tierErrors
		}
		return result, raw
	}

	// Unreachable as long as the terminal tier is the local engine, but a
	// misconfigured chain must still never return nil.
	result, raw, _ := NewLocalEngine().Analyze(ctx, transcript)
	result.Engine = LocalEngineName
	if len(tierErrors) > 0 {
		raw.Errors = tierErrors
	}
	return result, raw
}

func (c *Chain) attempt(ctx context.Context, tier Tier, transcript string) (*Result, *RawPayload, error) {
	if tier.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tier.Timeout)
		defer cancel()
	}

	start := c.now()
	result, raw, err := tier.Engine.Analyze(ctx, transcript)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordTierAttempt(tier.Engine.Name(), "error", elapsed)
		return nil, nil, err
	}
	metrics.RecordTierAttempt(tier.Engine.Name(), "ok", elapsed)
	return result, raw, nil
}
