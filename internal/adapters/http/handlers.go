package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/core/usecase"
)

type submissionList struct {
	Submissions []domain.Submission `json:"submissions"`
	Total       int                 `json:"total"`
}

type submissionStatus struct {
	ID     string                  `json:"id"`
	Status domain.SubmissionStatus `json:"status"`
	Error  string                  `json:"error,omitempty"`
}

func (rt *Router) createSubmission(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.UploadMaxBytes+multipartOverhead)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "read upload", err))
			return
		}
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	if rt.metrics != nil {
		rt.metrics.ObserveUpload(fileHeader.Size)
	}

	sub, err := rt.submissions.Submit(r.Context(), domain.SubmissionInput{
		UserID:   r.FormValue("userId"),
		Title:    r.FormValue("title"),
		Topics:   usecase.ParseTopics(r.FormValue("topics")),
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
	}, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (rt *Router) listSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, err := bindListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	subs, err := rt.reader.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionList{Submissions: subs, Total: len(subs)})
}

func (rt *Router) submissionStats(w http.ResponseWriter, r *http.Request) {
	filter, err := bindListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := rt.reader.Stats(r.Context(), filter.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) exportSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, err := bindListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// Buffered so an export failure still gets a JSON error response.
	var buf bytes.Buffer
	contentType, err := rt.reader.Export(r.Context(), filter, &buf)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="submissions.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := rt.reader.GetByID(r.Context(), submissionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (rt *Router) getSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	sub, err := rt.reader.GetByID(r.Context(), submissionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionStatus{
		ID:     sub.ID,
		Status: sub.Report.Status,
		Error:  sub.Report.Error,
	})
}

func (rt *Router) getSubmissionReport(w http.ResponseWriter, r *http.Request) {
	sub, err := rt.reader.GetByID(r.Context(), submissionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub.Report)
}

func (rt *Router) redirectSubmissionFile(w http.ResponseWriter, r *http.Request) {
	sub, err := rt.reader.GetByID(r.Context(), submissionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if sub.File == nil || sub.File.URL == "" {
		writeErrorBody(w, http.StatusNotFound, errorBody{
			Error:        "File not found",
			Details:      "submission has no stored file",
			SubmissionID: sub.ID,
		})
		return
	}
	http.Redirect(w, r, sub.File.URL, http.StatusFound)
}

func bindListFilter(r *http.Request) (domain.ListFilter, error) {
	var filter domain.ListFilter
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "userId", query, &filter.UserID); err != nil {
		return filter, domain.WrapError(domain.ErrInvalidInput, "bind userId", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &filter.Limit); err != nil {
		return filter, domain.WrapError(domain.ErrInvalidInput, "bind limit", err)
	}
	if filter.Limit < 0 {
		return filter, domain.WrapError(domain.ErrInvalidInput, "bind limit", errors.New("limit must be positive"))
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
