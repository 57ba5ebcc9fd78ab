package targets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
)

type SNSAPI interface {
	PublishWithContext(aws.Context, *sns.PublishInput, ...request.Option) (*sns.PublishOutput, error)
}

// SNSTarget publishes plain-text messages to one fixed topic.
type SNSTarget struct {
	snsClient SNSAPI
	topicARN  string
}

func NewSNSTarget(sess *session.Session, topicARN string) (*SNSTarget, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("topic ARN is required for the sns target")
	}
	return &SNSTarget{snsClient: sns.New(sess), topicARN: topicARN}, nil
}

func (s *SNSTarget) Notify(ctx context.Context, message string) error {
	_, err := s.snsClient.PublishWithContext(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.topicARN, err)
	}
	return nil
}
