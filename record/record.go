package record

import (
	"time"

	"github.com/google/uuid"
)

// CreateIfAbsent is the expected version a caller passes when the record must
// not exist yet. Committed versions start at 1.
const CreateIfAbsent int64 = 0

// MaxKeyLength bounds keys so they stay valid for every cache backend.
const MaxKeyLength = 512

// SourceOfTruth names where the authoritative copy of a record lives.
type SourceOfTruth string

const (
	SourceLocalStore    SourceOfTruth = "local_store"
	SourceRemoteService SourceOfTruth = "remote_service"
)

// Record is a versioned entity held by the system-of-record.
type Record struct {
	Key       string        `json:"key"`
	Payload   []byte        `json:"payload"`
	Version   int64         `json:"version"`
	Source    SourceOfTruth `json:"source_of_truth"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a copy whose payload does not alias r.Payload.
func (r Record) Clone() Record {
	if r.Payload != nil {
		r.Payload = append([]byte(nil), r.Payload...)
	}
	return r
}

// WriteIntent describes a single optimistic write. It lives for the duration
// of one write call.
type WriteIntent struct {
	ID              uuid.UUID
	Key             string
	NewPayload      []byte
	ExpectedVersion int64
	Source          SourceOfTruth
}

// NewWriteIntent validates the inputs and stamps the intent with a fresh ID.
func NewWriteIntent(key string, payload []byte, expectedVersion int64, source SourceOfTruth) (WriteIntent, error) {
	if err := ValidateKey(key); err != nil {
		return WriteIntent{}, err
	}
	if expectedVersion < CreateIfAbsent {
		return WriteIntent{}, NewError(CodeInvalidInput, key, "expected version must not be negative")
	}
	if source == "" {
		source = SourceLocalStore
	}
	return WriteIntent{
		ID:              uuid.New(),
		Key:             key,
		NewPayload:      payload,
		ExpectedVersion: expectedVersion,
		Source:          source,
	}, nil
}

// IsCreate reports whether the intent uses the create-if-absent sentinel.
func (w WriteIntent) IsCreate() bool {
	return w.ExpectedVersion == CreateIfAbsent
}

// ValidateKey rejects empty and oversized keys.
func ValidateKey(key string) error {
	if key == "" {
		return NewError(CodeInvalidInput, key, "key is required")
	}
	if len(key) > MaxKeyLength {
		return NewError(CodeInvalidInput, key[:32]+"...", "key exceeds maximum length")
	}
	return nil
}
