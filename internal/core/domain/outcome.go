package domain

import "time"

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is one user-facing message produced by an action.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Title   string      `json:"title,omitempty"`
	Message string      `json:"message"`
	Items   []string    `json:"items,omitempty"`
	Details []string    `json:"details,omitempty"`
}

type Action string

const (
	ActionBatch Action = "batch"
	ActionRetry Action = "retry"
	ActionSend  Action = "send"
)

// RefreshScope tells the caller what to reload after a successful action.
type RefreshScope string

const (
	RefreshNone     RefreshScope = ""
	RefreshList     RefreshScope = "list"
	RefreshDocument RefreshScope = "document"
)

// FollowUp is the rendered-document retrieval triggered by a successful submission.
type FollowUp struct {
	Strategy KudeStrategy `json:"strategy"`
	DelayMS  int64        `json:"delay_ms"`
	Kude     *KudeOutcome `json:"kude,omitempty"`
	Aborted  bool         `json:"aborted,omitempty"`
}

// Outcome is what a submission entry point hands back to its caller.
type Outcome struct {
	ID         string            `json:"id"`
	Action     Action            `json:"action"`
	Documents  SelectionSet      `json:"documents"`
	Submission *SubmissionResult `json:"submission,omitempty"`
	Failure    *FailureReport    `json:"failure,omitempty"`
	FollowUp   *FollowUp         `json:"follow_up,omitempty"`
	Refresh    RefreshScope      `json:"refresh,omitempty"`
	Notices    []Notice          `json:"notices"`
	Unreached  bool              `json:"backend_unreachable,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func (o *Outcome) Notify(n Notice) {
	o.Notices = append(o.Notices, n)
}

func (o *Outcome) Succeeded() bool {
	return o != nil && o.Submission != nil && o.Submission.Success
}

type PreviewOutcome struct {
	Preview PreviewResult `json:"preview"`
	Notices []Notice      `json:"notices"`
}

type ResetOutcome struct {
	Result  ResetResult  `json:"result"`
	Refresh RefreshScope `json:"refresh,omitempty"`
	Notices []Notice     `json:"notices"`
}

// SubmissionRequest is a batch submission queued for the worker.
type SubmissionRequest struct {
	RequestID   string       `json:"request_id"`
	Documents   SelectionSet `json:"documents"`
	RequestedBy string       `json:"requested_by,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
}

// SubmissionRecord is one journaled submission round trip.
type SubmissionRecord struct {
	ID            string       `json:"id"`
	Action        Action       `json:"action"`
	DocumentType  DocumentType `json:"document_type"`
	Documents     SelectionSet `json:"documents"`
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
	ItemErrors    []ItemError  `json:"item_errors,omitempty"`
	BatchID       string       `json:"batch_id,omitempty"`
	TrackingCodes []string     `json:"tracking_codes,omitempty"`
	FollowUp      KudeStrategy `json:"follow_up,omitempty"`
	DurationMS    int64        `json:"duration_ms"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewSubmissionRecord flattens an outcome into its journal row.
func NewSubmissionRecord(o *Outcome) SubmissionRecord {
	rec := SubmissionRecord{
		ID:           o.ID,
		Action:       o.Action,
		DocumentType: o.Documents.DocumentType(),
		Documents:    o.Documents,
		DurationMS:   o.FinishedAt.Sub(o.StartedAt).Milliseconds(),
		CreatedAt:    o.StartedAt,
	}
	if o.Submission != nil {
		rec.Success = o.Submission.Success
		rec.Error = o.Submission.Error
		rec.ItemErrors = o.Submission.Errors
		rec.BatchID = o.Submission.BatchID
		rec.TrackingCodes = o.Submission.TrackingCodes
	}
	if o.FollowUp != nil {
		rec.FollowUp = o.FollowUp.Strategy
	}
	return rec
}
