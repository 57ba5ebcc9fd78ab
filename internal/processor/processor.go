package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/jdwit/s3-image-resizer/internal/config"
	"github.com/jdwit/s3-image-resizer/internal/targets"
	"github.com/jdwit/s3-image-resizer/internal/transform"
	"github.com/jdwit/s3-image-resizer/internal/types"
)

type S3Api interface {
	GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(aws.Context, *s3.PutObjectInput, ...request.Option) (*s3.PutObjectOutput, error)
	ListObjectsV2WithContext(aws.Context, *s3.ListObjectsV2Input, ...request.Option) (*s3.ListObjectsV2Output, error)
}

type Transformer interface {
	Transform(data []byte) (transform.Output, error)
}

type ImageProcessor struct {
	s3Client    S3Api
	transformer Transformer
	notifier    targets.Target
	config      Config
}

// Config holds the destination of every processed image. The source bucket
// always comes from the event.
type Config struct {
	DestinationBucket string
	DestinationPrefix string
}

// Result describes one successfully processed object.
type Result struct {
	Source         types.S3ObjectInfo
	DestinationKey string
	ContentType    string
	Format         string
	SourceSize     int
	OutputSize     int
}

func NewImageProcessor(sess *session.Session, cfg config.Config) (*ImageProcessor, error) {
	t, err := targets.GetTargets(cfg.TargetList(), sess, targets.Config{
		TopicARN:      cfg.TopicARN,
		LogGroupName:  cfg.CloudWatchLogGroup,
		LogStreamName: cfg.CloudWatchLogStream,
	})
	if err != nil {
		return nil, err
	}

	return New(s3.New(sess), transform.New(cfg.Quality), t, Config{
		DestinationBucket: cfg.DestinationBucket,
		DestinationPrefix: cfg.DestinationPrefix,
	}), nil
}

func New(s3Client S3Api, transformer Transformer, notifier targets.Target, cfg Config) *ImageProcessor {
	return &ImageProcessor{
		s3Client:    s3Client,
		transformer: transformer,
		notifier:    notifier,
		config:      cfg,
	}
}

// DestinationKey derives the key an object is written under. Existing
// objects with the same key are overwritten.
func (ip *ImageProcessor) DestinationKey(key string) string {
	return ip.config.DestinationPrefix + key
}

func (ip *ImageProcessor) NotificationMessage(key string) string {
	return fmt.Sprintf("Image %s has been resized and uploaded to %s", key, ip.config.DestinationBucket)
}

// ProcessCandidate validates a candidate and, if it names an object, runs
// it through ProcessObject. Malformed candidates return ErrMalformedRecord
// without touching storage.
func (ip *ImageProcessor) ProcessCandidate(ctx context.Context, c types.Candidate) (Result, error) {
	obj, err := c.Record()
	if err != nil {
		return Result{}, err
	}
	return ip.ProcessObject(ctx, obj)
}

func (ip *ImageProcessor) ProcessObject(ctx context.Context, obj types.S3ObjectInfo) (Result, error) {
	logger := log.FromContext(ctx).With("bucket", obj.Bucket, "key", obj.Key)
	logger.Info("processing image")

	data, contentType, err := ip.fetch(ctx, obj)
	if err != nil {
		return Result{}, &StageError{Stage: StageFetch, Object: obj, Err: err}
	}

	ct := aws.StringValue(contentType)
	if detected := mimetype.Detect(data); ct != "" && !detected.Is(ct) {
		logger.Warn("declared content type does not match image data", "content_type", ct, "detected", detected.String())
	}

	out, err := ip.transformer.Transform(data)
	if err != nil {
		stage := StageDecode
		if !errors.Is(err, transform.ErrDecode) {
			stage = StageEncode
		}
		return Result{}, &StageError{Stage: stage, Object: obj, Err: err}
	}

	destKey := ip.DestinationKey(obj.Key)
	_, err = ip.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ip.config.DestinationBucket),
		Key:         aws.String(destKey),
		Body:        bytes.NewReader(out.Data),
		ContentType: contentType,
	})
	if err != nil {
		return Result{}, &StageError{Stage: StageStore, Object: obj, Err: fmt.Errorf("failed to put object: %w", err)}
	}

	if err := ip.notifier.Notify(ctx, ip.NotificationMessage(obj.Key)); err != nil {
		return Result{}, &StageError{Stage: StageNotify, Object: obj, Err: err}
	}

	logger.Info("image uploaded",
		"destination", fmt.Sprintf("s3://%s/%s", ip.config.DestinationBucket, destKey),
		"format", out.Format, "source_size", len(data), "output_size", len(out.Data))

	return Result{
		Source:         obj,
		DestinationKey: destKey,
		ContentType:    ct,
		Format:         out.Format,
		SourceSize:     len(data),
		OutputSize:     len(out.Data),
	}, nil
}

func (ip *ImageProcessor) fetch(ctx context.Context, obj types.S3ObjectInfo) ([]byte, *string, error) {
	resp, err := ip.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object body: %w", err)
	}

	return data, resp.ContentType, nil
}
