// Package esp contains the provider adapters the dispatch engine sends
// through. One adapter is active per deployment; the engine is agnostic to
// which.
//
// Adapters follow one error convention: a provider rejecting a single
// recipient yields (*SendResult with Success=false, nil), while a systemic
// problem (missing credentials, provider outage, unreachable API) yields
// (nil, error). The engine treats the latter as batch-level failures eligible
// for retry.
package esp

import (
	"context"
	"time"
)

// Message is one fully rendered email ready for transport.
type Message struct {
	To         string
	ToName     string
	FromName   string
	FromEmail  string
	ReplyTo    string
	Subject    string
	HTML       string
	Text       string
	CampaignID string
	LogID      string
	IsTest     bool
}

// SendResult is the outcome of a single transport attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Error     error
	Provider  string
	SentAt    time.Time
}

// Sender delivers a single message through one provider.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*SendResult, error)
}
