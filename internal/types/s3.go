package types

import (
	"encoding/json"
	"errors"
	"iter"
)

// ErrMalformedRecord is returned for candidates missing any of the
// s3.bucket.name or s3.object.key fields.
var ErrMalformedRecord = errors.New("invalid S3 event record structure")

type S3ObjectInfo struct {
	Bucket string
	Key    string
}

// S3Record mirrors the parts of an S3 notification record we read. Pointers
// distinguish an absent field from an empty one.
type S3Record struct {
	S3 *struct {
		Bucket *struct {
			Name *string `json:"name"`
		} `json:"bucket"`
		Object *struct {
			Key *string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// Candidate is one entry handed out by an Event. It may or may not hold a
// valid record.
type Candidate json.RawMessage

// Record validates the candidate and returns the object it refers to.
func (c Candidate) Record() (S3ObjectInfo, error) {
	var rec S3Record
	if err := json.Unmarshal(c, &rec); err != nil {
		return S3ObjectInfo{}, ErrMalformedRecord
	}
	if rec.S3 == nil || rec.S3.Bucket == nil || rec.S3.Bucket.Name == nil ||
		rec.S3.Object == nil || rec.S3.Object.Key == nil {
		return S3ObjectInfo{}, ErrMalformedRecord
	}
	return S3ObjectInfo{
		Bucket: *rec.S3.Bucket.Name,
		Key:    *rec.S3.Object.Key,
	}, nil
}

// Event is either a BatchEvent or a SingleEvent.
type Event interface {
	Candidates() iter.Seq[Candidate]
}

// BatchEvent is an envelope holding an ordered list of records.
type BatchEvent struct {
	Records []Candidate
}

func (e BatchEvent) Candidates() iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for _, c := range e.Records {
			if !yield(c) {
				return
			}
		}
	}
}

// SingleEvent is a document that is itself one record.
type SingleEvent struct {
	Record Candidate
}

func (e SingleEvent) Candidates() iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		yield(e.Record)
	}
}

type batchEnvelope struct {
	Records *[]json.RawMessage `json:"Records"`
}

// ParseEvent decodes the batch shape first and falls back to treating the
// whole document as a single record. It never fails; bad input surfaces as
// a malformed candidate.
func ParseEvent(raw []byte) Event {
	var env batchEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Records != nil {
		records := make([]Candidate, 0, len(*env.Records))
		for _, r := range *env.Records {
			records = append(records, Candidate(r))
		}
		return BatchEvent{Records: records}
	}
	return SingleEvent{Record: Candidate(raw)}
}
