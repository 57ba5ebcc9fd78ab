package targets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/charmbracelet/log"
)

const (
	TargetSNS        = "sns"
	TargetCloudWatch = "cloudwatch"
	TargetStdout     = "stdout"
)

// Target receives the completion message for every processed image.
type Target interface {
	Notify(ctx context.Context, message string) error
}

type Config struct {
	TopicARN      string
	LogGroupName  string
	LogStreamName string
}

// Multi delivers a message to every target in order.
type Multi []Target

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, t := range m {
		if err := t.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetTargets builds the named targets. Names are expected trimmed, as
// returned by config.Config.TargetList.
func GetTargets(targetTypes []string, sess *session.Session, cfg Config) (Multi, error) {
	var targets Multi

	for _, t := range targetTypes {
		var target Target
		var err error

		switch t {
		case TargetSNS:
			target, err = NewSNSTarget(sess, cfg.TopicARN)
		case TargetCloudWatch:
			target, err = NewCloudWatchTarget(sess, LogConfig{
				LogGroupName:  cfg.LogGroupName,
				LogStreamName: cfg.LogStreamName,
			})
		case TargetStdout:
			target = NewStdoutTarget()
		default:
			log.Warn("unsupported target type", "target", t)
			continue
		}

		// Skip any targets that fail to initialize due to missing config or other errors
		if err != nil {
			log.Warn("could not initialize target", "target", t, "err", err)
			continue
		}

		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no valid targets initialized")
	}

	return targets, nil
}
