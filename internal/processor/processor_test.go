package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jdwit/s3-image-resizer/internal/transform"
	"github.com/jdwit/s3-image-resizer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	destBucket = "image-sized-1"
	catRecord  = `{"s3":{"bucket":{"name":"src"},"object":{"key":"cat.png"}}}`
)

type putCall struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType *string
}

type mockS3 struct {
	mock.Mock
	mu   sync.Mutex
	puts []putCall
}

func (m *mockS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	args := m.Called(aws.StringValue(in.Bucket), aws.StringValue(in.Key))
	if err := args.Error(2); err != nil {
		return nil, err
	}
	contentType, _ := args.Get(1).(*string)
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(args.Get(0).([]byte))),
		ContentType: contentType,
	}, nil
}

func (m *mockS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, putCall{
		Bucket:      aws.StringValue(in.Bucket),
		Key:         aws.StringValue(in.Key),
		Body:        body,
		ContentType: in.ContentType,
	})
	args := m.Called(aws.StringValue(in.Bucket), aws.StringValue(in.Key))
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3) ListObjectsV2WithContext(_ aws.Context, in *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	args := m.Called(aws.StringValue(in.Bucket), aws.StringValue(in.Prefix), aws.StringValue(in.ContinuationToken))
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(_ context.Context, message string) error {
	return m.Called(message).Error(0)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 16; i++ {
		img.Set(i, i, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestProcessor(s3Client *mockS3, notifier *mockNotifier) *ImageProcessor {
	return New(s3Client, transform.New(transform.DefaultQuality), notifier, Config{
		DestinationBucket: destBucket,
		DestinationPrefix: "resized/",
	})
}

func TestDestinationKey(t *testing.T) {
	ip := newTestProcessor(&mockS3{}, &mockNotifier{})
	assert.Equal(t, "resized/photos/a.jpg", ip.DestinationKey("photos/a.jpg"))
	assert.Equal(t, "resized/cat.png", ip.DestinationKey("cat.png"))
	assert.Equal(t, "resized/", ip.DestinationKey(""))
}

func TestProcessCandidate_SingleRecordScenario(t *testing.T) {
	src := pngBytes(t)
	expected, err := transform.New(transform.DefaultQuality).Transform(src)
	require.NoError(t, err)

	s3Client := &mockS3{}
	s3Client.On("GetObjectWithContext", "src", "cat.png").Return(src, aws.String("image/png"), nil).Once()
	s3Client.On("PutObjectWithContext", destBucket, "resized/cat.png").Return(nil).Once()
	notifier := &mockNotifier{}
	notifier.On("Notify", "Image cat.png has been resized and uploaded to image-sized-1").Return(nil).Once()

	res, err := newTestProcessor(s3Client, notifier).ProcessCandidate(context.Background(), types.Candidate(catRecord))
	require.NoError(t, err)

	s3Client.AssertExpectations(t)
	notifier.AssertExpectations(t)
	require.Len(t, s3Client.puts, 1)
	assert.Equal(t, expected.Data, s3Client.puts[0].Body)
	assert.Equal(t, aws.String("image/png"), s3Client.puts[0].ContentType)

	assert.Equal(t, types.S3ObjectInfo{Bucket: "src", Key: "cat.png"}, res.Source)
	assert.Equal(t, "resized/cat.png", res.DestinationKey)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, len(src), res.SourceSize)
}

func TestProcessCandidate_ContentTypePassThrough(t *testing.T) {
	tests := []struct {
		name        string
		contentType *string
	}{
		{"Mismatched declared type", aws.String("image/jpeg")},
		{"Type with parameters", aws.String("image/png; charset=binary")},
		{"Generic binary type", aws.String("binary/octet-stream")},
		{"Missing type", nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s3Client := &mockS3{}
			s3Client.On("GetObjectWithContext", "src", "cat.png").Return(pngBytes(t), test.contentType, nil)
			s3Client.On("PutObjectWithContext", destBucket, "resized/cat.png").Return(nil)
			notifier := &mockNotifier{}
			notifier.On("Notify", mock.Anything).Return(nil)

			_, err := newTestProcessor(s3Client, notifier).ProcessCandidate(context.Background(), types.Candidate(catRecord))
			require.NoError(t, err)
			require.Len(t, s3Client.puts, 1)
			assert.Equal(t, test.contentType, s3Client.puts[0].ContentType)
		})
	}
}

func TestProcessCandidate_MalformedMakesNoCalls(t *testing.T) {
	s3Client := &mockS3{}
	notifier := &mockNotifier{}

	_, err := newTestProcessor(s3Client, notifier).ProcessCandidate(context.Background(), types.Candidate(`{}`))
	assert.ErrorIs(t, err, ErrMalformedRecord)
	s3Client.AssertNotCalled(t, "GetObjectWithContext", mock.Anything, mock.Anything)
	s3Client.AssertNotCalled(t, "PutObjectWithContext", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Notify", mock.Anything)
}

func TestProcessCandidate_StageErrors(t *testing.T) {
	ctx := context.Background()
	denied := errors.New("AccessDenied")

	t.Run("Fetch", func(t *testing.T) {
		s3Client := &mockS3{}
		s3Client.On("GetObjectWithContext", "src", "cat.png").Return(nil, nil, denied)
		notifier := &mockNotifier{}

		_, err := newTestProcessor(s3Client, notifier).ProcessCandidate(ctx, types.Candidate(catRecord))
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageFetch, stageErr.Stage)
		assert.ErrorIs(t, err, denied)
		assert.Empty(t, s3Client.puts)
		notifier.AssertNotCalled(t, "Notify", mock.Anything)
	})

	t.Run("Decode", func(t *testing.T) {
		s3Client := &mockS3{}
		s3Client.On("GetObjectWithContext", "src", "cat.png").Return([]byte("not an image"), aws.String("image/png"), nil)
		notifier := &mockNotifier{}

		_, err := newTestProcessor(s3Client, notifier).ProcessCandidate(ctx, types.Candidate(catRecord))
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageDecode, stageErr.Stage)
		assert.ErrorIs(t, err, transform.ErrDecode)
		assert.Empty(t, s3Client.puts)
	})

	t.Run("Store", func(t *testing.T) {
		s3Client := &mockS3{}
		s3Client.On("GetObjectWithContext", "src", "cat.png").Return(pngBytes(t), aws.String("image/png"), nil)
		s3Client.On("PutObjectWithContext", destBucket, "resized/cat.png").Return(denied)
		notifier := &mockNotifier{}

		_, err := newTestProcessor(s3Client, notifier).ProcessCandidate(ctx, types.Candidate(catRecord))
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageStore, stageErr.Stage)
		notifier.AssertNotCalled(t, "Notify", mock.Anything)
	})

	t.Run("Notify", func(t *testing.T) {
		s3Client := &mockS3{}
		s3Client.On("GetObjectWithContext", "src", "cat.png").Return(pngBytes(t), aws.String("image/png"), nil)
		s3Client.On("PutObjectWithContext", destBucket, "resized/cat.png").Return(nil)
		notifier := &mockNotifier{}
		notifier.On("Notify", mock.Anything).Return(denied)

		_, err := newTestProcessor(s3Client, notifier).ProcessCandidate(ctx, types.Candidate(catRecord))
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageNotify, stageErr.Stage)
		assert.Equal(t, "notify failed for s3://src/cat.png: AccessDenied", err.Error())
	})
}

type failingTransformer struct{ err error }

func (f failingTransformer) Transform([]byte) (transform.Output, error) {
	return transform.Output{}, f.err
}

func TestProcessCandidate_EncodeStage(t *testing.T) {
	s3Client := &mockS3{}
	s3Client.On("GetObjectWithContext", "src", "cat.png").Return(pngBytes(t), aws.String("image/png"), nil)

	ip := New(s3Client, failingTransformer{err: transform.ErrUnsupportedFormat}, &mockNotifier{}, Config{
		DestinationBucket: destBucket,
		DestinationPrefix: "resized/",
	})
	_, err := ip.ProcessCandidate(context.Background(), types.Candidate(catRecord))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageEncode, stageErr.Stage)
}
