package domain

import "time"

// TaskStatus enumerates provider-generation states of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// PublishStatus enumerates the draft decision states. It is empty while the
// task is still PENDING and terminal once it leaves DRAFT.
type PublishStatus string

const (
	PublishStatusDraft     PublishStatus = "DRAFT"
	PublishStatusPublished PublishStatus = "PUBLISHED"
	PublishStatusRejected  PublishStatus = "REJECTED"
)

// ErrorKind classifies why a task failed.
type ErrorKind string

const (
	ErrorKindTransientProvider ErrorKind = "TRANSIENT_PROVIDER_ERROR"
	ErrorKindContentPolicy     ErrorKind = "CONTENT_POLICY_REJECTED"
	ErrorKindTimeout           ErrorKind = "TIMEOUT"
	ErrorKindUnknown           ErrorKind = "UNKNOWN"
)

// GenerationSpec is the user-supplied description of the asset to generate.
type GenerationSpec struct {
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
}

// GenerationTask is one user request to generate a video asset via the
// external provider. Tasks are never deleted; they double as an audit trail
// for the credit movements keyed on them.
type GenerationTask struct {
	ID              string
	OwnerID         string
	Prompt          string
	Model           string
	DurationSeconds int
	AspectRatio     string
	Status          TaskStatus
	PublishStatus   PublishStatus
	DraftAssetURL   string
	ProviderHandle  string
	ProviderCost    int64
	ErrorKind       ErrorKind
	ErrorDetail     string
	CreditsDebited  int64
	Refunded        bool
	PollFailures    int
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Terminal reports whether the task has reached a terminal generation state.
func (t *GenerationTask) Terminal() bool {
	return t.Status == TaskStatusSucceeded || t.Status == TaskStatusFailed
}
