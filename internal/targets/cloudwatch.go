package targets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/charmbracelet/log"
)

type CloudWatchLogsAPI interface {
	PutLogEventsWithContext(aws.Context, *cloudwatchlogs.PutLogEventsInput, ...request.Option) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(*cloudwatchlogs.CreateLogGroupInput) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(*cloudwatchlogs.CreateLogStreamInput) (*cloudwatchlogs.CreateLogStreamOutput, error)
	DescribeLogGroups(*cloudwatchlogs.DescribeLogGroupsInput) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	DescribeLogStreams(*cloudwatchlogs.DescribeLogStreamsInput) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
}

type LogConfig struct {
	LogGroupName  string
	LogStreamName string
}

// CloudWatchTarget writes each notification as one log event.
type CloudWatchTarget struct {
	cwClient  CloudWatchLogsAPI
	logConfig LogConfig
	now       func() time.Time
}

func (c *CloudWatchTarget) Notify(ctx context.Context, message string) error {
	_, err := c.cwClient.PutLogEventsWithContext(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogEvents: []*cloudwatchlogs.InputLogEvent{{
			Message:   aws.String(message),
			Timestamp: aws.Int64(c.now().UnixMilli()),
		}},
		LogGroupName:  aws.String(c.logConfig.LogGroupName),
		LogStreamName: aws.String(c.logConfig.LogStreamName),
	})
	if err != nil {
		return fmt.Errorf("error sending notification to CloudWatch: %w", err)
	}
	return nil
}

func NewCloudWatchTarget(sess *session.Session, logConfig LogConfig) (*CloudWatchTarget, error) {
	if logConfig.LogGroupName == "" {
		return nil, fmt.Errorf("cloudwatch log group is required")
	}
	if logConfig.LogStreamName == "" {
		return nil, fmt.Errorf("cloudwatch log stream is required")
	}

	return newCloudWatchTarget(cloudwatchlogs.New(sess), logConfig)
}

func newCloudWatchTarget(client CloudWatchLogsAPI, logConfig LogConfig) (*CloudWatchTarget, error) {
	if err := ensureLogGroupAndLogStreamExists(client, logConfig); err != nil {
		return nil, fmt.Errorf("error creating log group and stream: %w", err)
	}
	return &CloudWatchTarget{cwClient: client, logConfig: logConfig, now: time.Now}, nil
}

func ensureLogGroupAndLogStreamExists(client CloudWatchLogsAPI, logConfig LogConfig) error {
	group, stream := logConfig.LogGroupName, logConfig.LogStreamName

	found, err := hasLogGroup(client, group)
	if err != nil {
		return err
	}
	if !found {
		log.Info("creating log group", "group", group)
		_, err := client.CreateLogGroup(&cloudwatchlogs.CreateLogGroupInput{LogGroupName: aws.String(group)})
		if err := ignoreAlreadyExists(err); err != nil {
			return err
		}
	}

	found, err = hasLogStream(client, group, stream)
	if err != nil {
		return err
	}
	if !found {
		log.Info("creating log stream", "group", group, "stream", stream)
		_, err := client.CreateLogStream(&cloudwatchlogs.CreateLogStreamInput{
			LogGroupName:  aws.String(group),
			LogStreamName: aws.String(stream),
		})
		return ignoreAlreadyExists(err)
	}
	return nil
}

// hasLogGroup pages through every group sharing the name as a prefix.
func hasLogGroup(client CloudWatchLogsAPI, name string) (bool, error) {
	in := &cloudwatchlogs.DescribeLogGroupsInput{LogGroupNamePrefix: aws.String(name)}
	for {
		resp, err := client.DescribeLogGroups(in)
		if err != nil {
			return false, err
		}
		for _, g := range resp.LogGroups {
			if aws.StringValue(g.LogGroupName) == name {
				return true, nil
			}
		}
		if aws.StringValue(resp.NextToken) == "" {
			return false, nil
		}
		in.NextToken = resp.NextToken
	}
}

func hasLogStream(client CloudWatchLogsAPI, group, name string) (bool, error) {
	in := &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName:        aws.String(group),
		LogStreamNamePrefix: aws.String(name),
	}
	for {
		resp, err := client.DescribeLogStreams(in)
		if err != nil {
			return false, err
		}
		for _, s := range resp.LogStreams {
			if aws.StringValue(s.LogStreamName) == name {
				return true, nil
			}
		}
		if aws.StringValue(resp.NextToken) == "" {
			return false, nil
		}
		in.NextToken = resp.NextToken
	}
}

// ignoreAlreadyExists treats a concurrent create by another instance as success.
func ignoreAlreadyExists(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == cloudwatchlogs.ErrCodeResourceAlreadyExistsException {
		return nil
	}
	return err
}
