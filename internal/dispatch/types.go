// Package dispatch implements the bulk send engine: a strategy selector that
// routes small campaigns to a rate-staggered parallel path and large ones to
// a batch scheduler with bounded concurrency and exponential-backoff retry.
package dispatch

import (
	"net/mail"
	"strings"
	"time"
)

// DefaultDisplayName is used when a recipient has no name on file.
const DefaultDisplayName = "Valued Customer"

// Dispatch tuning defaults. Exposed so config can report them; override any
// of them per dispatch through Options.
const (
	DefaultBatchThreshold        = 100
	DefaultBatchSize             = 50
	DefaultRateLimitPerSecond    = 14
	DefaultMaxRetries            = 3
	DefaultRetryDelayBase        = 2 * time.Second
	DefaultInterBatchDelay       = time.Second
	DefaultInterChunkDelay       = 100 * time.Millisecond
	DefaultIntraBatchConcurrency = 10
)

// Contact carries optional enrichment used only for personalization. Absent
// fields render as empty strings.
type Contact struct {
	Company string
	Phone   string
	Tags    []string
}

// SendJob is one recipient's unit of work. Immutable once built.
type SendJob struct {
	Recipient   string
	DisplayName string
	Contact     *Contact
}

// CampaignMessage is shared read-only state across every job in a dispatch.
type CampaignMessage struct {
	Subject    string
	Content    string
	CampaignID string
	FromName   string
	FromEmail  string
	ReplyTo    string
	IsTest     bool
}

// SendOutcome is the per-recipient result. Order of outcomes returned by
// Dispatch does not match input order.
type SendOutcome struct {
	Recipient string
	Success   bool
	MessageID string
	Error     string
}

// BatchProgress is the snapshot published to Options.OnProgress after every
// counter mutation. When IsComplete is true,
// SuccessCount+ErrorCount == ProcessedEmails == TotalEmails.
type BatchProgress struct {
	TotalEmails     int
	ProcessedEmails int
	CurrentBatch    int
	TotalBatches    int
	SuccessCount    int
	ErrorCount      int
	IsComplete      bool
}

// Options are per-dispatch knobs. Zero values fall back to the defaults
// above, so Options{} is a valid production configuration.
type Options struct {
	BatchThreshold        int
	BatchSize             int
	RateLimitPerSecond    int
	MaxRetries            int
	RetryDelayBase        time.Duration
	InterBatchDelay       time.Duration
	InterChunkDelay       time.Duration
	IntraBatchConcurrency int

	// RetryOnlyFailedJobs controls what a batch-level retry resubmits. The
	// default (false) resubmits the whole batch, which can double-send
	// recipients whose first attempt actually went through; true keeps
	// settled successes and retries only the rest.
	RetryOnlyFailedJobs bool

	// OnProgress receives synchronous snapshots; it must be cheap and must
	// not block. Nil disables progress reporting.
	OnProgress func(BatchProgress)
}

func (o Options) withDefaults() Options {
	if o.BatchThreshold <= 0 {
		o.BatchThreshold = DefaultBatchThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RateLimitPerSecond <= 0 {
		o.RateLimitPerSecond = DefaultRateLimitPerSecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelayBase <= 0 {
		o.RetryDelayBase = DefaultRetryDelayBase
	}
	if o.InterBatchDelay <= 0 {
		o.InterBatchDelay = DefaultInterBatchDelay
	}
	if o.InterChunkDelay <= 0 {
		o.InterChunkDelay = DefaultInterChunkDelay
	}
	if o.IntraBatchConcurrency <= 0 {
		o.IntraBatchConcurrency = DefaultIntraBatchConcurrency
	}
	return o
}

// BuildJobs pairs recipients with display names positionally, attaches
// contact enrichment by email, and rejects malformed addresses before they
// can become jobs. Rejected addresses are returned for caller reporting.
func BuildJobs(recipients, names []string, contacts map[string]Contact) (jobs []SendJob, rejected []string) {
	jobs = make([]SendJob, 0, len(recipients))
	for i, email := range recipients {
		email = strings.TrimSpace(email)
		if !validEmail(email) {
			rejected = append(rejected, email)
			continue
		}

		name := ""
		if i < len(names) {
			name = strings.TrimSpace(names[i])
		}
		if name == "" {
			name = DefaultDisplayName
		}

		job := SendJob{Recipient: email, DisplayName: name}
		if c, ok := contacts[strings.ToLower(email)]; ok {
			cc := c
			job.Contact = &cc
		}
		jobs = append(jobs, job)
	}
	return jobs, rejected
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms like "Jane <jane@example.com>"; jobs carry
	// the bare address only.
	return addr.Address == email
}
