package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/plagioguard/internal/config"
	"github.com/kirillkom/plagioguard/internal/core/domain"
)

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	doc, err := openapi3.NewLoader().LoadFromData(OpenAPIDocument())
	if err != nil {
		t.Fatalf("load openapi: %v", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("validate openapi: %v", err)
	}
	return doc
}

func TestOpenAPIDocumentIsValid(t *testing.T) {
	loadOpenAPI(t)
}

// Responses produced by the router must match the published document.
func TestResponsesMatchOpenAPI(t *testing.T) {
	doc := loadOpenAPI(t)
	sub := doneSubmission()
	failed := &domain.Submission{
		ID:     "sub-2",
		UserID: "anonymous",
		Title:  "Untitled",
		Topics: []string{},
		Report: domain.ErrorReport("Object storage upload failed"),
	}
	reader := &readerFake{
		subs:  map[string]*domain.Submission{sub.ID: sub, failed.ID: failed},
		list:  []domain.Submission{*sub, *failed},
		stats: domain.SubmissionStats{Total: 2, Done: 1, Error: 1, AvgPlagiarismScore: 42, AvgAIProbability: 0.8},
	}
	handler := newTestHandler(config.Config{}, nil, reader)

	cases := []struct {
		target string
		path   string
		params map[string]string
		status int
	}{
		{"/healthz", "/healthz", nil, http.StatusOK},
		{"/submissions", "/submissions", nil, http.StatusOK},
		{"/submissions/stats", "/submissions/stats", nil, http.StatusOK},
		{"/submissions/sub-1", "/submissions/{id}", map[string]string{"id": "sub-1"}, http.StatusOK},
		{"/submissions/sub-2", "/submissions/{id}", map[string]string{"id": "sub-2"}, http.StatusOK},
		{"/submissions/missing", "/submissions/{id}", map[string]string{"id": "missing"}, http.StatusNotFound},
		{"/submissions/sub-2/status", "/submissions/{id}/status", map[string]string{"id": "sub-2"}, http.StatusOK},
		{"/submissions/sub-1/report", "/submissions/{id}/report", map[string]string{"id": "sub-1"}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, res.Code, res.Body.String())
			}

			item := doc.Paths.Value(tc.path)
			if item == nil || item.Get == nil {
				t.Fatalf("path %s missing from document", tc.path)
			}
			route := &routers.Route{
				Spec:      doc,
				Path:      tc.path,
				PathItem:  item,
				Method:    http.MethodGet,
				Operation: item.Get,
			}
			input := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: &openapi3filter.RequestValidationInput{
					Request:    req,
					PathParams: tc.params,
					Route:      route,
				},
				Status: res.Code,
				Header: res.Header(),
				Body:   io.NopCloser(bytes.NewReader(res.Body.Bytes())),
			}
			if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
				t.Fatalf("response does not match openapi: %v", err)
			}
		})
	}
}
