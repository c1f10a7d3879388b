package provider

import (
	"context"
	"errors"
	"fmt"
)

// SubmitSpec is the generation request handed to the provider.
type SubmitSpec struct {
	Prompt          string
	Model           string
	DurationSeconds int
	AspectRatio     string
	RequestID       string
}

// StatusKind enumerates the provider-side job states we care about.
type StatusKind string

const (
	StatusPending   StatusKind = "pending"
	StatusSucceeded StatusKind = "succeeded"
	StatusFailed    StatusKind = "failed"
)

// FailureCode classifies a terminal provider failure.
type FailureCode string

const (
	FailureContentPolicy FailureCode = "content_policy"
	FailureTransient     FailureCode = "transient"
	FailureUnknown       FailureCode = "unknown"
)

// Status is a normalized poll result.
type Status struct {
	Kind          StatusKind
	AssetURL      string
	Cost          int64
	FailureCode   FailureCode
	FailureDetail string
}

// SubmitError marks a submission the provider rejected synchronously. It is
// distinct from transport errors so callers can tell "job never accepted"
// from "unreachable right now".
type SubmitError struct {
	Code   FailureCode
	Detail string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("provider rejected submission (%s): %s", e.Code, e.Detail)
}

// IsSubmitRejection reports whether err is a synchronous provider rejection
// and, if so, returns it.
func IsSubmitRejection(err error) (*SubmitError, bool) {
	var se *SubmitError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Gateway is the external generation provider: submit a spec, poll the
// returned handle until terminal.
type Gateway interface {
	Submit(ctx context.Context, spec SubmitSpec) (string, error)
	PollStatus(ctx context.Context, handle string) (Status, error)
}
