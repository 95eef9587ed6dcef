package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTransition  = errors.New("invalid report status transition")
	ErrStorageUpload      = errors.New("object storage upload failed")
	ErrAnalysis           = errors.New("analysis failed")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type PipelineStage string

const (
	StageRecord  PipelineStage = "record"
	StageUpload  PipelineStage = "upload"
	StageAnalyze PipelineStage = "analyze"
	StagePersist PipelineStage = "persist"
)

// PipelineError is returned when a submission run stops at a stage. Message is
// the summary shown to callers; Err is the underlying cause kept verbatim.
type PipelineError struct {
	SubmissionID string
	Stage        PipelineStage
	Kind         error
	Message      string
	Err          error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *PipelineError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Details returns the underlying cause text, falling back to Message.
func (e *PipelineError) Details() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Err.Error()
}

func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
