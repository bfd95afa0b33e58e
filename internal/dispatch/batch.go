package dispatch

import (
	"context"

	"github.com/eshway/mailing-engine/internal/pkg/logger"
)

const retryExhaustedReason = "batch failed after maximum retries"

// runBatched is the large-campaign path: fixed-size batches run strictly in
// sequence, each through the bounded sub-dispatcher, with the inter-batch
// delay as macro-level rate control. The batch count is published before the
// first batch so observers know the shape of the run up front.
func (e *Engine) runBatched(ctx context.Context, jobs []SendJob, msg CampaignMessage, opts Options, prog *progressTracker) []SendOutcome {
	totalBatches := (len(jobs) + opts.BatchSize - 1) / opts.BatchSize
	prog.setTotalBatches(totalBatches)

	outcomes := make([]SendOutcome, 0, len(jobs))
	for b := 0; b < totalBatches; b++ {
		start := b * opts.BatchSize
		end := start + opts.BatchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[start:end]

		if ctx.Err() != nil {
			for _, job := range batch {
				outcomes = append(outcomes, SendOutcome{Recipient: job.Recipient, Error: ctxErrText(ctx)})
			}
			prog.recordBatch(0, len(batch))
			continue
		}

		prog.startBatch(b + 1)
		batchOut := e.runBatchWithRetry(ctx, batch, msg, opts)
		succeeded, failed := tally(batchOut)
		prog.recordBatch(succeeded, failed)
		outcomes = append(outcomes, batchOut...)

		if end < len(jobs) && ctx.Err() == nil {
			sleepCtx(ctx, opts.InterBatchDelay)
		}
	}
	return outcomes
}

// runBatchWithRetry runs one batch and, on a systemic (non-job-attributable)
// failure, resubmits it with exponential backoff. Retrying stops as soon as
// any job in a resubmission succeeds; exhaustion marks the batch failed.
// What gets resubmitted is governed by Options.RetryOnlyFailedJobs.
func (e *Engine) runBatchWithRetry(ctx context.Context, batch []SendJob, msg CampaignMessage, opts Options) []SendOutcome {
	final := make([]SendOutcome, len(batch))
	pending := make([]int, len(batch))
	for i := range pending {
		pending[i] = i
	}

	outs, err := e.runBounded(ctx, batch, msg, opts)
	copyOutcomes(final, pending, outs)
	if err == nil {
		return final
	}

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			fillUnsettled(final, batch, ctxErrText(ctx))
			return final
		}

		delay := opts.RetryDelayBase << (attempt - 1)
		logger.Warn("batch attempt failed, retrying",
			"attempt", attempt,
			"max_retries", opts.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		if !sleepCtx(ctx, delay) {
			fillUnsettled(final, batch, ctxErrText(ctx))
			return final
		}

		if opts.RetryOnlyFailedJobs {
			pending = unsettledOrFailed(final)
		}
		outs, err = e.runBounded(ctx, pick(batch, pending), msg, opts)
		copyOutcomes(final, pending, outs)

		if err == nil {
			return final
		}
		if anySuccess(outs) {
			fillUnsettled(final, batch, err.Error())
			return final
		}
	}

	if opts.RetryOnlyFailedJobs {
		for _, i := range unsettledOrFailed(final) {
			final[i] = SendOutcome{Recipient: batch[i].Recipient, Error: retryExhaustedReason}
		}
		return final
	}
	for i := range final {
		final[i] = SendOutcome{Recipient: batch[i].Recipient, Error: retryExhaustedReason}
	}
	return final
}

// copyOutcomes maps a (possibly partial) positional result slice back onto
// the batch-wide slice. Zero outcomes mean the job never started and are
// skipped.
func copyOutcomes(final []SendOutcome, idx []int, outs []SendOutcome) {
	for k, i := range idx {
		if k < len(outs) && outs[k].Recipient != "" {
			final[i] = outs[k]
		}
	}
}

func fillUnsettled(final []SendOutcome, batch []SendJob, reason string) {
	for i := range final {
		if final[i].Recipient == "" {
			final[i] = SendOutcome{Recipient: batch[i].Recipient, Error: reason}
		}
	}
}

func unsettledOrFailed(final []SendOutcome) []int {
	var idx []int
	for i := range final {
		if !final[i].Success {
			idx = append(idx, i)
		}
	}
	return idx
}

func pick(batch []SendJob, idx []int) []SendJob {
	sub := make([]SendJob, len(idx))
	for k, i := range idx {
		sub[k] = batch[i]
	}
	return sub
}

func anySuccess(outs []SendOutcome) bool {
	for _, o := range outs {
		if o.Success {
			return true
		}
	}
	return false
}

func tally(outs []SendOutcome) (succeeded, failed int) {
	for _, o := range outs {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
