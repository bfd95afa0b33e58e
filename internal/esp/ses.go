package esp

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/eshway/mailing-engine/internal/pkg/logger"
)

// sesAPI is the slice of the SES v2 client the sender uses; tests stub it.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends emails via AWS SES using the SDK v2.
type SESSender struct {
	region string
	client sesAPI
}

// NewSESSender creates an SES sender. Initializes the AWS SDK client if
// credentials are provided; a sender without a client reports a systemic
// error on Send.
func NewSESSender(accessKey, secretKey, region string) *SESSender {
	if region == "" {
		region = "us-east-1"
	}

	sender := &SESSender{region: region}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			log.Printf("[SES] Warning: failed to initialize AWS config: %v", err)
		} else {
			sender.client = sesv2.NewFromConfig(cfg)
		}
	}

	return sender
}

// Send delivers a single email through AWS SES.
func (s *SESSender) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("SES client not initialized - check credentials")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if msg.CampaignID != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
		}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		log.Printf("[SES] Failed to send to %s: %v", logger.RedactEmail(msg.To), err)
		return &SendResult{Success: false, Error: err, Provider: "ses"}, nil
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}

	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  "ses",
		SentAt:    time.Now(),
	}, nil
}
