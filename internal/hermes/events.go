package hermes

import (
	"time"

	"github.com/google/uuid"
)

// Analysis lifecycle subjects.
const (
	SubjectAnalysisRequested = "mixsig.analysis.requested"
	SubjectAnalysisCompleted = "mixsig.analysis.completed"
	SubjectAnalysisFailed    = "mixsig.analysis.failed"
)

// AnalysisRequested asks a worker to analyse an upload under an existing job.
type AnalysisRequested struct {
	JobID       uuid.UUID `json:"job_id"`
	UploadID    uuid.UUID `json:"upload_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// AnalysisCompleted is emitted after a report is persisted. It carries
// scores only, never message text.
type AnalysisCompleted struct {
	JobID            uuid.UUID `json:"job_id"`
	UploadID         uuid.UUID `json:"upload_id"`
	Engine           string    `json:"engine"`
	MixedSignalIndex float64   `json:"mixed_signal_index"`
	Confidence       float64   `json:"confidence"`
	CompletedAt      time.Time `json:"completed_at"`
}

// AnalysisFailed is emitted when a job ends in the failed state.
type AnalysisFailed struct {
	JobID    uuid.UUID `json:"job_id"`
	UploadID uuid.UUID `json:"upload_id"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
