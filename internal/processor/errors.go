package processor

import (
	"fmt"

	"github.com/jdwit/s3-image-resizer/internal/types"
)

// ErrMalformedRecord is re-exported so callers need not import types.
var ErrMalformedRecord = types.ErrMalformedRecord

type Stage string

const (
	StageFetch  Stage = "fetch"
	StageDecode Stage = "decode"
	StageEncode Stage = "encode"
	StageStore  Stage = "store"
	StageNotify Stage = "notify"
)

// StageError reports which step of the fetch, transform, store, notify
// cycle failed for an object.
type StageError struct {
	Stage  Stage
	Object types.S3ObjectInfo
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for s3://%s/%s: %v", e.Stage, e.Object.Bucket, e.Object.Key, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
