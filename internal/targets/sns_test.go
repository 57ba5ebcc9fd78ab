package targets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	mock.Mock
}

func (m *mockSNS) PublishWithContext(ctx aws.Context, in *sns.PublishInput, _ ...request.Option) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*sns.PublishOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

const topic = "arn:aws:sns:ap-south-1:123456789012:image-resizing-topic"

func TestSNSTarget_Notify(t *testing.T) {
	ctx := context.Background()

	t.Run("Publishes plain text to the fixed topic", func(t *testing.T) {
		client := &mockSNS{}
		client.On("PublishWithContext", ctx, &sns.PublishInput{
			TopicArn: aws.String(topic),
			Message:  aws.String("Image cat.png has been resized and uploaded to dst"),
		}).Return(&sns.PublishOutput{MessageId: aws.String("1")}, nil).Once()

		target := &SNSTarget{snsClient: client, topicARN: topic}
		require.NoError(t, target.Notify(ctx, "Image cat.png has been resized and uploaded to dst"))
		client.AssertExpectations(t)
	})

	t.Run("Wraps publish errors", func(t *testing.T) {
		denied := errors.New("AuthorizationError")
		client := &mockSNS{}
		client.On("PublishWithContext", ctx, mock.Anything).Return(nil, denied).Once()

		target := &SNSTarget{snsClient: client, topicARN: topic}
		err := target.Notify(ctx, "msg")
		assert.ErrorIs(t, err, denied)
		assert.Contains(t, err.Error(), topic)
	})
}
