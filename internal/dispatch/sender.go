package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eshway/mailing-engine/internal/esp"
	"github.com/eshway/mailing-engine/internal/personalize"
	"github.com/eshway/mailing-engine/internal/pkg/logger"
	"github.com/eshway/mailing-engine/internal/sendlog"
)

// sendOne runs one recipient's full send: log row, personalization, tracking
// injection, transport call, log update. The returned error is non-nil only
// for systemic transport failures (adapter returned nil result); those feed
// batch-level retry. Everything else settles into the outcome.
func (e *Engine) sendOne(ctx context.Context, job SendJob, msg CampaignMessage) (SendOutcome, error) {
	logID := e.createLogRow(ctx, job, msg)

	rcpt := personalize.Recipient{
		Email:       job.Recipient,
		DisplayName: job.DisplayName,
	}
	if job.Contact != nil {
		rcpt.Company = job.Contact.Company
		rcpt.Phone = job.Contact.Phone
		rcpt.Tags = job.Contact.Tags
	}

	html := personalize.Render(msg.Content, rcpt)
	// Text part comes from the personalized content before tracking markup
	// goes in; redirect URLs are useless in plain text.
	text := personalize.TextFallback(html)

	var lid string
	if logID != uuid.Nil {
		lid = logID.String()
	}
	if e.injector != nil {
		html = e.injector.Inject(html, msg.CampaignID, lid)
	}

	result, err := e.sender.Send(ctx, &esp.Message{
		To:         job.Recipient,
		ToName:     job.DisplayName,
		FromName:   msg.FromName,
		FromEmail:  msg.FromEmail,
		ReplyTo:    msg.ReplyTo,
		Subject:    personalize.Render(msg.Subject, rcpt),
		HTML:       html,
		Text:       text,
		CampaignID: msg.CampaignID,
		LogID:      lid,
		IsTest:     msg.IsTest,
	})
	if err != nil {
		e.markFailed(ctx, logID, err.Error())
		return SendOutcome{Recipient: job.Recipient, Error: err.Error()}, err
	}

	if result.Success {
		e.markSent(ctx, logID, result.MessageID)
		return SendOutcome{Recipient: job.Recipient, Success: true, MessageID: result.MessageID}, nil
	}

	reason := "send rejected"
	if result.Error != nil {
		reason = result.Error.Error()
	}
	e.markFailed(ctx, logID, reason)
	return SendOutcome{Recipient: job.Recipient, Error: reason}, nil
}

// createLogRow inserts the PENDING row. A failure here is logged and
// swallowed: the send still goes out, with tracking falling back to the
// campaign-level key.
func (e *Engine) createLogRow(ctx context.Context, job SendJob, msg CampaignMessage) uuid.UUID {
	if e.logs == nil {
		return uuid.Nil
	}
	id, err := e.logs.Create(ctx, sendlog.CreateParams{
		Recipient:  job.Recipient,
		Name:       job.DisplayName,
		Subject:    msg.Subject,
		Content:    msg.Content,
		CampaignID: msg.CampaignID,
		IsTest:     msg.IsTest,
	})
	if err != nil {
		logger.Warn("send log create failed",
			"recipient", job.Recipient,
			"error", err.Error(),
		)
		return uuid.Nil
	}
	return id
}

// Log updates are best-effort: a log-write failure never flips a send
// outcome in either direction.
func (e *Engine) markSent(ctx context.Context, id uuid.UUID, messageID string) {
	if e.logs == nil || id == uuid.Nil {
		return
	}
	if err := e.logs.MarkSent(ctx, id, messageID); err != nil {
		logger.Warn("send log update failed", "log_id", id.String(), "error", err.Error())
	}
}

func (e *Engine) markFailed(ctx context.Context, id uuid.UUID, reason string) {
	if e.logs == nil || id == uuid.Nil {
		return
	}
	if err := e.logs.MarkFailed(ctx, id, reason); err != nil {
		logger.Warn("send log update failed", "log_id", id.String(), "error", err.Error())
	}
}

func ctxErrText(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%v", context.Canceled)
}
