package dispatch

import (
	"context"
	"sync"
	"time"
)

// runBounded executes jobs with at most opts.IntraBatchConcurrency in flight,
// in concurrency-sized chunks separated by the inter-chunk delay so provider
// calls stay spread out instead of bursty. Results are positional: a zero
// outcome (empty Recipient) means the job never started. The returned error
// is the first systemic transport error; individual job failures never
// surface here.
func (e *Engine) runBounded(ctx context.Context, jobs []SendJob, msg CampaignMessage, opts Options) ([]SendOutcome, error) {
	results := make([]SendOutcome, len(jobs))

	var (
		mu     sync.Mutex
		sysErr error
	)

	for start := 0; start < len(jobs); start += opts.IntraBatchConcurrency {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + opts.IntraBatchConcurrency
		if end > len(jobs) {
			end = len(jobs)
		}

		if e.limiter != nil {
			if err := e.reserve(ctx, end-start); err != nil {
				return results, err
			}
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out, err := e.sendOne(ctx, jobs[i], msg)
				results[i] = out
				if err != nil {
					mu.Lock()
					if sysErr == nil {
						sysErr = err
					}
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if sysErr != nil {
			return results, sysErr
		}

		if end < len(jobs) {
			if !sleepCtx(ctx, opts.InterChunkDelay) {
				return results, ctx.Err()
			}
		}
	}

	return results, nil
}

// reserve blocks until the shared rate limiter admits n sends, waiting the
// limiter-suggested time between attempts.
func (e *Engine) reserve(ctx context.Context, n int) error {
	for {
		allowed, wait, err := e.limiter.Reserve(ctx, n)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// runDirect is the small-campaign path: every job launches concurrently, but
// job i's start is staggered by i * (1s / rate) so full-parallel submission
// still respects the sustained per-second cap. Systemic errors settle into
// per-job outcomes; there is no batch-level retry on this path.
func (e *Engine) runDirect(ctx context.Context, jobs []SendJob, msg CampaignMessage, opts Options, prog *progressTracker) []SendOutcome {
	interval := time.Second / time.Duration(opts.RateLimitPerSecond)
	results := make([]SendOutcome, len(jobs))

	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !sleepCtx(ctx, time.Duration(i)*interval) {
				results[i] = SendOutcome{Recipient: jobs[i].Recipient, Error: ctxErrText(ctx)}
				prog.record(false)
				return
			}
			out, _ := e.sendOne(ctx, jobs[i], msg)
			results[i] = out
			prog.record(out.Success)
		}(i)
	}
	wg.Wait()

	return results
}

// sleepCtx waits for d or the context, whichever ends first. Returns false
// when the context won.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
