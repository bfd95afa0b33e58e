// Command dispatch runs one campaign send: it loads the configuration, a
// recipients CSV and a campaign YAML, wires the provider adapter, send log,
// tracking and rate limiter, and dispatches.
//
// Recipients CSV columns: email, name, company, phone, tags (tags separated
// by ";"). A header row is skipped when the first column reads "email".
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/eshway/mailing-engine/internal/config"
	"github.com/eshway/mailing-engine/internal/dispatch"
	"github.com/eshway/mailing-engine/internal/esp"
	"github.com/eshway/mailing-engine/internal/pkg/logger"
	"github.com/eshway/mailing-engine/internal/ratelimit"
	"github.com/eshway/mailing-engine/internal/sendlog"
	"github.com/eshway/mailing-engine/internal/tracking"
)

type campaignFile struct {
	Subject    string `yaml:"subject"`
	Content    string `yaml:"content"`
	CampaignID string `yaml:"campaign_id"`
	IsTest     bool   `yaml:"is_test"`
	FromName   string `yaml:"from_name"`
	FromEmail  string `yaml:"from_email"`
	ReplyTo    string `yaml:"reply_to"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	recipientsPath := flag.String("recipients", "", "path to recipients CSV")
	campaignPath := flag.String("campaign", "", "path to campaign YAML")
	dryRun := flag.Bool("dry-run", false, "skip the send-log database")
	flag.Parse()

	if *recipientsPath == "" || *campaignPath == "" {
		log.Fatal("usage: dispatch -recipients recipients.csv -campaign campaign.yaml [-config config.yaml]")
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(!cfg.Log.DisableRedaction)

	msg, err := loadCampaign(*campaignPath, cfg)
	if err != nil {
		log.Fatalf("campaign: %v", err)
	}
	jobs, rejected, err := loadRecipients(*recipientsPath)
	if err != nil {
		log.Fatalf("recipients: %v", err)
	}
	for _, r := range rejected {
		log.Printf("[Dispatch] Rejected malformed address %q", logger.RedactEmail(r))
	}
	if len(jobs) == 0 {
		log.Fatal("no valid recipients")
	}

	sender, err := buildSender(cfg)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	var logs dispatch.LogStore
	if !*dryRun {
		if cfg.Database.URL == "" {
			log.Fatal("database.url is required (or pass -dry-run)")
		}
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatalf("database: %v", err)
		}
		logs = sendlog.New(db)
	}

	engine := dispatch.NewEngine(sender, logs)
	if cfg.Tracking.BaseURL != "" && cfg.Tracking.SigningKey != "" {
		engine.SetTrackingInjector(tracking.NewInjector(cfg.Tracking.BaseURL, cfg.Tracking.SigningKey))
	}
	if cfg.Redis.URL != "" {
		limits := ratelimit.Limits{PerSecond: cfg.Dispatch.RateLimitPerSecond}
		if limits.PerSecond <= 0 {
			limits.PerSecond = dispatch.DefaultRateLimitPerSecond
		}
		limiter, err := ratelimit.NewFromURL(cfg.Redis.URL, cfg.Provider, limits)
		if err != nil {
			log.Fatalf("rate limiter: %v", err)
		}
		defer limiter.Close()
		engine.SetRateLimiter(limiter)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cfg.Dispatch.Options()
	opts.OnProgress = logProgress()

	outcomes, err := engine.Dispatch(ctx, jobs, msg, opts)
	if err != nil {
		log.Printf("[Dispatch] Aborted: %v", err)
	}

	succeeded, failed := 0, 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		} else {
			failed++
			log.Printf("[Dispatch] FAILED %s: %s", logger.RedactEmail(o.Recipient), o.Error)
		}
	}
	log.Printf("[Dispatch] Done: %d sent, %d failed, %d rejected before send", succeeded, failed, len(rejected))

	if succeeded == 0 {
		os.Exit(1)
	}
}

// logProgress reports batch transitions and completion; per-job snapshots go
// to debug.
func logProgress() func(dispatch.BatchProgress) {
	lastBatch := 0
	return func(p dispatch.BatchProgress) {
		if p.CurrentBatch != lastBatch {
			lastBatch = p.CurrentBatch
			log.Printf("[Dispatch] Batch %d/%d (%d/%d processed)",
				p.CurrentBatch, p.TotalBatches, p.ProcessedEmails, p.TotalEmails)
			return
		}
		logger.Debug("progress",
			"processed", p.ProcessedEmails,
			"total", p.TotalEmails,
			"success", p.SuccessCount,
			"errors", p.ErrorCount,
		)
	}
}

func buildSender(cfg *config.Config) (esp.Sender, error) {
	switch cfg.Provider {
	case "ses":
		return esp.NewSESSender(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region), nil
	case "mailgun":
		s := esp.NewMailgunSender(cfg.Mailgun.APIKey, cfg.Mailgun.Domain)
		if cfg.Mailgun.BaseURL != "" {
			s.SetBaseURL(cfg.Mailgun.BaseURL)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func loadCampaign(path string, cfg *config.Config) (dispatch.CampaignMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dispatch.CampaignMessage{}, err
	}
	var c campaignFile
	if err := yaml.Unmarshal(data, &c); err != nil {
		return dispatch.CampaignMessage{}, err
	}
	if c.Subject == "" || c.Content == "" {
		return dispatch.CampaignMessage{}, fmt.Errorf("campaign needs subject and content")
	}

	msg := dispatch.CampaignMessage{
		Subject:    c.Subject,
		Content:    c.Content,
		CampaignID: c.CampaignID,
		IsTest:     c.IsTest,
		FromName:   c.FromName,
		FromEmail:  c.FromEmail,
		ReplyTo:    c.ReplyTo,
	}
	if msg.FromName == "" {
		msg.FromName = cfg.Identity.FromName
	}
	if msg.FromEmail == "" {
		msg.FromEmail = cfg.Identity.FromEmail
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = cfg.Identity.ReplyTo
	}
	return msg, nil
}

func loadRecipients(path string) ([]dispatch.SendJob, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	var (
		recipients []string
		names      []string
		contacts   = make(map[string]dispatch.Contact)
	)
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		email := strings.TrimSpace(row[0])
		if i == 0 && strings.EqualFold(email, "email") {
			continue
		}
		recipients = append(recipients, email)

		name := ""
		if len(row) > 1 {
			name = strings.TrimSpace(row[1])
		}
		names = append(names, name)

		c := dispatch.Contact{}
		if len(row) > 2 {
			c.Company = strings.TrimSpace(row[2])
		}
		if len(row) > 3 {
			c.Phone = strings.TrimSpace(row[3])
		}
		if len(row) > 4 && strings.TrimSpace(row[4]) != "" {
			for _, tag := range strings.Split(row[4], ";") {
				if tag = strings.TrimSpace(tag); tag != "" {
					c.Tags = append(c.Tags, tag)
				}
			}
		}
		if c.Company != "" || c.Phone != "" || len(c.Tags) > 0 {
			contacts[strings.ToLower(email)] = c
		}
	}

	jobs, rejected := dispatch.BuildJobs(recipients, names, contacts)
	return jobs, rejected, nil
}
