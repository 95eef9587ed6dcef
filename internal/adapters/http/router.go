package httpadapter

import (
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kirillkom/plagioguard/internal/config"
	"github.com/kirillkom/plagioguard/internal/core/ports"
	"github.com/kirillkom/plagioguard/internal/observability/metrics"
)

const serviceName = "plagioguard-api"

// multipartOverhead leaves room for the non-file form fields on top of the
// upload limit.
const multipartOverhead = 1 << 20

//go:embed openapi.yaml
var openAPIDocument []byte

func OpenAPIDocument() []byte {
	return openAPIDocument
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

type Router struct {
	cfg         config.Config
	submissions ports.SubmissionService
	reader      ports.SubmissionReader
	metrics     *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	submissions ports.SubmissionService,
	reader ports.SubmissionReader,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:         cfg,
		submissions: submissions,
		reader:      reader,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, next)
		})
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/submissions", func(r chi.Router) {
		if rt.cfg.APIRateLimitRPS > 0 {
			r.Use(func(next http.Handler) http.Handler {
				return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected)
			})
		}

		upload := http.Handler(http.HandlerFunc(rt.createSubmission))
		if rt.cfg.APIMaxInFlightUploads > 0 {
			wait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
			upload = backpressureMiddleware(upload, rt.cfg.APIMaxInFlightUploads, wait, rt.rejected)
		}
		r.Method(http.MethodPost, "/", upload)
		r.Get("/", rt.listSubmissions)
		r.Get("/stats", rt.submissionStats)
		r.Get("/export.xlsx", rt.exportSubmissions)
		r.Get("/{id}", rt.getSubmission)
		r.Get("/{id}/status", rt.getSubmissionStatus)
		r.Get("/{id}/report", rt.getSubmissionReport)
		r.Get("/{id}/file", rt.redirectSubmissionFile)
	})
	return r
}

func (rt *Router) allowedOrigins() []string {
	if len(rt.cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return rt.cfg.CORSAllowedOrigins
}

func (rt *Router) rejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

func submissionID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
