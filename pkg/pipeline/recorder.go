package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/wasmgate/wasmgate/pkg/admission"
	"github.com/wasmgate/wasmgate/pkg/sandbox"
)

// RecordKind distinguishes what a usage record describes.
type RecordKind string

const (
	// RecordExecution: the sandbox ran (successfully or not).
	RecordExecution RecordKind = "execution"
	// RecordRateLimited: admission denied the request; nothing ran.
	RecordRateLimited RecordKind = "rate_limited"
)

// Record is one usage event handed to the recorder. Every pipeline call
// produces exactly one record, denials included, so billing and analytics
// see the complete picture.
type Record struct {
	ID       uuid.UUID
	TenantID string
	Kind     RecordKind
	Decision admission.Decision
	// Outcome is nil for rate-limited records.
	Outcome    *sandbox.Outcome
	ModuleSize int
	Duration   time.Duration
	At         time.Time
}

// UsageRecorder is a one-way sink for usage events. Implementations must
// not assume they can refuse a record: the pipeline ignores anything they
// do, including panicking.
type UsageRecorder interface {
	Record(rec Record)
}

// NoopRecorder discards all records.
type NoopRecorder struct{}

func (NoopRecorder) Record(rec Record) {}
