package dispatch

import "sync"

// progressTracker owns the dispatch's shared counters. Every mutation
// publishes a snapshot to the callback while still holding the mutex, so the
// observer never sees a torn update.
type progressTracker struct {
	mu   sync.Mutex
	snap BatchProgress
	fn   func(BatchProgress)
}

func newProgressTracker(total int, fn func(BatchProgress)) *progressTracker {
	return &progressTracker{
		snap: BatchProgress{TotalEmails: total},
		fn:   fn,
	}
}

func (p *progressTracker) publishLocked() {
	if p.fn != nil {
		p.fn(p.snap)
	}
}

// setTotalBatches is published before the first batch runs; consumers need
// the batch count up front.
func (p *progressTracker) setTotalBatches(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.TotalBatches = n
	p.publishLocked()
}

func (p *progressTracker) startBatch(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.CurrentBatch = n
	p.publishLocked()
}

// record counts one settled job. Processed and success/error move as one
// unit; that is the counter invariant.
func (p *progressTracker) record(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.ProcessedEmails++
	if success {
		p.snap.SuccessCount++
	} else {
		p.snap.ErrorCount++
	}
	p.publishLocked()
}

// recordBatch accumulates a whole batch's results at once, after its retries
// have settled.
func (p *progressTracker) recordBatch(succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.ProcessedEmails += succeeded + failed
	p.snap.SuccessCount += succeeded
	p.snap.ErrorCount += failed
	p.publishLocked()
}

func (p *progressTracker) complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.IsComplete = true
	p.publishLocked()
}

func (p *progressTracker) snapshot() BatchProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}
