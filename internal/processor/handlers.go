package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jdwit/s3-image-resizer/internal/types"
	"golang.org/x/sync/errgroup"
)

// concurrency is the max number of objects processed at once during a backfill
const concurrency = 10

// sentryFlushTimeout bounds how long an invocation waits for error reports.
// Lambda freezes the process between invocations, so queued reports must be
// sent before the handler returns.
const sentryFlushTimeout = 2 * time.Second

// HandleLambdaEvent accepts either a batch envelope or a bare record.
func (ip *ImageProcessor) HandleLambdaEvent(ctx context.Context, raw json.RawMessage) error {
	defer sentry.Flush(sentryFlushTimeout)
	ctx = withInvocationLogger(ctx)
	return ip.HandleEvent(ctx, types.ParseEvent(raw))
}

// HandleEvent processes candidates one after another, in order. Malformed
// candidates are logged and skipped. A failing record does not stop the
// ones after it, but the invocation still reports an error so the trigger
// can retry.
func (ip *ImageProcessor) HandleEvent(ctx context.Context, event types.Event) error {
	logger := log.FromContext(ctx)

	var errs []error
	var processed, skipped, total int
	for c := range event.Candidates() {
		total++
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		_, err := ip.ProcessCandidate(ctx, c)
		switch {
		case errors.Is(err, ErrMalformedRecord):
			logger.Error("Error: Invalid S3 event record structure", "record", truncate(string(c), 256))
			skipped++
		case err != nil:
			logger.Error("failed to process record", "err", err)
			reportError(err)
			errs = append(errs, err)
		default:
			processed++
		}
	}

	logger.Info("event handled", "records", total, "processed", processed, "skipped", skipped, "failed", len(errs))

	if len(errs) > 0 {
		return fmt.Errorf("encountered errors: %w", errors.Join(errs...))
	}
	return nil
}

// HandleEventFile runs an event document from disk, or stdin for "-",
// through the same path as a Lambda invocation.
func (ip *ImageProcessor) HandleEventFile(ctx context.Context, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open event file: %w", err)
		}
		defer f.Close()
		r = f
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}

	return ip.HandleLambdaEvent(ctx, raw)
}

// HandleS3URL processes every object under an s3://bucket/prefix URL.
func (ip *ImageProcessor) HandleS3URL(ctx context.Context, url string) error {
	ctx = withInvocationLogger(ctx)
	logger := log.FromContext(ctx)

	bucket, prefix, err := parseS3Url(url)
	if err != nil {
		return fmt.Errorf("failed to parse S3 URL: %w", err)
	}

	objects, err := ip.listObjects(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	logger.Info("found objects", "bucket", bucket, "prefix", prefix, "count", len(objects))

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, obj := range objects {
		g.Go(func() error {
			defer logger.Info("completed processing", "object", fmt.Sprintf("s3://%s/%s", obj.Bucket, obj.Key))
			if _, err := ip.ProcessObject(ctx, obj); err != nil {
				reportError(err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	// Goroutines never return an error; the group only bounds concurrency
	// so that every object is attempted and every failure is collected.
	_ = g.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("encountered errors: %w", errors.Join(errs...))
	}
	return nil
}

func (ip *ImageProcessor) listObjects(ctx context.Context, bucket, prefix string) ([]types.S3ObjectInfo, error) {
	var objects []types.S3ObjectInfo
	var continuationToken *string
	for {
		resp, err := ip.s3Client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, item := range resp.Contents {
			key := aws.StringValue(item.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, types.S3ObjectInfo{
				Bucket: bucket,
				Key:    key,
			})
		}

		if !aws.BoolValue(resp.IsTruncated) {
			break
		}
		continuationToken = resp.NextContinuationToken
	}
	return objects, nil
}

// parseS3Url splits s3://bucket/prefix. The prefix may be empty.
func parseS3Url(url string) (bucket string, prefix string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URL, missing 's3://' prefix")
	}
	bucket, prefix, ok = strings.Cut(rest, "/")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URL, no '/' found after bucket name")
	}
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URL, empty bucket name")
	}
	return bucket, prefix, nil
}

// withInvocationLogger tags the context logger with the Lambda request id,
// or a fresh id outside Lambda.
func withInvocationLogger(ctx context.Context) context.Context {
	id := uuid.NewString()
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		id = lc.AwsRequestID
	}
	return log.WithContext(ctx, log.FromContext(ctx).With("invocation", id))
}

func reportError(err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			scope.SetTag("stage", string(stageErr.Stage))
			scope.SetTag("bucket", stageErr.Object.Bucket)
			scope.SetTag("key", stageErr.Object.Key)
		}
		sentry.CaptureException(err)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
