package httpadapter

import (
	"net/http"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

type errorBody struct {
	Error        string `json:"error"`
	Details      string `json:"details,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSubmissionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorSummary(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid submission"
	case http.StatusNotFound:
		return "Submission not found"
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable"
	default:
		return "Internal server error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	body := errorBody{
		Error:   errorSummary(status),
		Details: err.Error(),
	}
	if pe, ok := domain.AsPipelineError(err); ok {
		body.Error = pe.Message
		body.Details = pe.Details()
		body.SubmissionID = pe.SubmissionID
	}
	writeErrorBody(w, status, body)
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}
