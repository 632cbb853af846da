package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Publisher is the part of *sns.Client used for SMS.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSSender sends codes as direct-to-phone SNS messages.
type SMSSender struct {
	client Publisher
}

func NewSMSSender(client Publisher) *SMSSender {
	return &SMSSender{client: client}
}

func (s *SMSSender) Send(ctx context.Context, phone, code string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(messageText(code)),
	})
	return err
}
