package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eshway/mailing-engine/internal/esp"
	"github.com/eshway/mailing-engine/internal/pkg/logger"
	"github.com/eshway/mailing-engine/internal/sendlog"
	"github.com/eshway/mailing-engine/internal/tracking"
)

// LogStore is the send-log surface the engine needs; *sendlog.Store
// satisfies it.
type LogStore interface {
	Create(ctx context.Context, p sendlog.CreateParams) (uuid.UUID, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) error
}

// RateLimiter is the optional cross-process sustained cap, consulted before
// each chunk on the batch path; *ratelimit.Limiter satisfies it.
type RateLimiter interface {
	Reserve(ctx context.Context, n int) (allowed bool, wait time.Duration, err error)
}

// Engine dispatches one campaign's jobs through a provider adapter. All
// per-dispatch state (counters, knobs, progress callback) travels with the
// Dispatch call, so one engine can serve concurrent campaigns.
type Engine struct {
	sender   esp.Sender
	logs     LogStore
	injector *tracking.Injector
	limiter  RateLimiter
}

// NewEngine builds an engine around a provider adapter and a send-log store.
// logs may be nil for dry runs; tracking injection is off until
// SetTrackingInjector.
func NewEngine(sender esp.Sender, logs LogStore) *Engine {
	return &Engine{sender: sender, logs: logs}
}

// SetTrackingInjector enables open-pixel and click-link rewriting.
func (e *Engine) SetTrackingInjector(inj *tracking.Injector) {
	e.injector = inj
}

// SetRateLimiter attaches a shared rate limiter, for deployments where more
// than one process sends through the same provider account.
func (e *Engine) SetRateLimiter(l RateLimiter) {
	e.limiter = l
}

// Dispatch sends msg to every job and returns one outcome per job; outcome
// order does not match input order. Campaigns at or above
// Options.BatchThreshold go through the batch scheduler, smaller ones
// through the rate-staggered parallel path. Per-job failures land in the
// outcomes; the returned error is non-nil only for misconfiguration or
// cancellation.
func (e *Engine) Dispatch(ctx context.Context, jobs []SendJob, msg CampaignMessage, opts Options) ([]SendOutcome, error) {
	if e.sender == nil {
		return nil, errors.New("dispatch: no provider adapter configured")
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	opts = opts.withDefaults()
	prog := newProgressTracker(len(jobs), opts.OnProgress)
	start := time.Now()

	logger.Info("dispatch started",
		"total", len(jobs),
		"campaign_id", msg.CampaignID,
		"batched", len(jobs) >= opts.BatchThreshold,
	)

	var outcomes []SendOutcome
	if len(jobs) >= opts.BatchThreshold {
		outcomes = e.runBatched(ctx, jobs, msg, opts, prog)
	} else {
		outcomes = e.runDirect(ctx, jobs, msg, opts, prog)
	}

	// A canceled dispatch never reports complete: the counters add up, but
	// the run did not finish its work.
	if ctx.Err() == nil {
		prog.complete()
	}

	snap := prog.snapshot()
	logger.Info("dispatch finished",
		"total", snap.TotalEmails,
		"sent", snap.SuccessCount,
		"failed", snap.ErrorCount,
		"complete", snap.IsComplete,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return outcomes, ctx.Err()
}
