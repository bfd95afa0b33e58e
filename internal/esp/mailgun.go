package esp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eshway/mailing-engine/internal/pkg/httpretry"
	"github.com/eshway/mailing-engine/internal/pkg/logger"
)

// MailgunSender sends emails via the Mailgun Messages API.
type MailgunSender struct {
	apiKey  string
	domain  string
	baseURL string
	client  httpretry.Doer
}

// NewMailgunSender creates a Mailgun sender targeting the given sending
// domain. Transient API failures are retried with backoff.
func NewMailgunSender(apiKey, domain string) *MailgunSender {
	return &MailgunSender{
		apiKey:  apiKey,
		domain:  domain,
		baseURL: "https://api.mailgun.net/v3",
		client:  httpretry.New(&http.Client{Timeout: 60 * time.Second}, 3),
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (s *MailgunSender) SetBaseURL(u string) { s.baseURL = strings.TrimRight(u, "/") }

// Send delivers a single email through Mailgun.
func (s *MailgunSender) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("Mailgun API key not configured")
	}

	form := url.Values{}
	form.Add("from", fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail))
	form.Add("to", msg.To)
	form.Add("subject", msg.Subject)
	form.Add("html", msg.HTML)
	if msg.Text != "" {
		form.Add("text", msg.Text)
	}
	if msg.ReplyTo != "" {
		form.Add("h:Reply-To", msg.ReplyTo)
	}
	if msg.CampaignID != "" {
		form.Add("v:campaign_id", msg.CampaignID)
	}
	if msg.LogID != "" {
		form.Add("v:log_id", msg.LogID)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, s.domain)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("Mailgun error %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return &SendResult{
			Success:  false,
			Error:    fmt.Errorf("Mailgun error %d: %s", resp.StatusCode, string(body)),
			Provider: "mailgun",
		}, nil
	}

	var result struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	json.Unmarshal(body, &result)
	messageID := strings.Trim(result.ID, "<>")
	log.Printf("[Mailgun] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &SendResult{Success: true, MessageID: messageID, Provider: "mailgun", SentAt: time.Now()}, nil
}
