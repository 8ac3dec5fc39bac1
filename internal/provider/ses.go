package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/notify-engine/internal/notification"
	"github.com/ignite/notify-engine/internal/pkg/logger"
)

// SESProvider sends emails via AWS SES using the SDK v2.
type SESProvider struct {
	region string
	client *sesv2.Client
}

// NewSESProvider creates an SES email provider with static credentials.
func NewSESProvider(accessKey, secretKey, region string) (*SESProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("SES credentials missing")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize AWS config: %w", err)
	}

	return &SESProvider{
		region: region,
		client: sesv2.NewFromConfig(cfg),
	}, nil
}

// SendEmail delivers a single email through AWS SES.
func (p *SESProvider) SendEmail(ctx context.Context, msg *EmailMessage) (*EmailResult, error) {
	from := msg.From
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.From)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if msg.TextBody != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}
	for name, value := range msg.Tags {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name: aws.String(name), Value: aws.String(value),
		})
	}

	result, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return nil, &notification.ProviderError{
			Channel: notification.ChannelEmail,
			Code:    sesErrorCode(err),
			Message: err.Error(),
		}
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &EmailResult{MessageID: messageID, StatusCode: 200, SentAt: time.Now()}, nil
}

// sesErrorCode maps SES API errors to the engine's stable error codes.
func sesErrorCode(err error) string {
	var rejected *types.MessageRejected
	var notFound *types.NotFoundException
	var quota *types.LimitExceededException
	switch {
	case errors.As(err, &rejected):
		return "MESSAGE_REJECTED"
	case errors.As(err, &notFound):
		return "IDENTITY_NOT_FOUND"
	case errors.As(err, &quota):
		return "QUOTA_EXCEEDED"
	}
	return "SES_SEND_FAILED"
}
