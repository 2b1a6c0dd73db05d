// Package server exposes the progress engine over JSON HTTP.
package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-academy/internal/notify"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/report"
)

const readyTimeout = 2 * time.Second

// Checker is a dependency probed by /readyz.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Options wires the server to its collaborators. Inbox, Hub and Reports
// are optional; their routes answer 404 when unset.
type Options struct {
	Engine  *progress.Engine
	Inbox   notify.Inbox
	Hub     *notify.Hub
	Reports report.SummarySource
	Checks  map[string]Checker
}

// Server holds the HTTP handlers.
type Server struct {
	engine   *progress.Engine
	inbox    notify.Inbox
	hub      *notify.Hub
	reports  report.SummarySource
	checks   map[string]Checker
	validate *validator.Validate
}

// New creates a Server. Engine is required.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("server requires an engine")
	}
	return &Server{
		engine:   opts.Engine,
		inbox:    opts.Inbox,
		hub:      opts.Hub,
		reports:  opts.Reports,
		checks:   opts.Checks,
		validate: newValidator(),
	}, nil
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	mux.HandleFunc("GET /v1/contents/{id}", s.handleContent)
	mux.HandleFunc("POST /v1/contents/{id}/progress", s.handleProgress)
	mux.HandleFunc("GET /v1/chapters/{id}/quiz", s.handleQuiz)
	mux.HandleFunc("POST /v1/quizzes/{id}/submissions", s.handleSubmit)
	mux.HandleFunc("GET /v1/certificates", s.handleCertificates)
	mux.HandleFunc("GET /v1/certificates/eligible", s.handleEligible)
	mux.HandleFunc("POST /v1/certificates", s.handleIssue)

	mux.HandleFunc("GET /v1/notifications", s.handleNotifications)
	mux.HandleFunc("POST /v1/notifications/{id}/read", s.handleMarkRead)
	mux.HandleFunc("GET /v1/notifications/ws", s.handleNotificationStream)

	mux.HandleFunc("GET /v1/admin/reports/progress.xlsx", s.handleProgressReport)

	return withLearner(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	mods, err := s.engine.Catalog(r.Context(), learnerFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": mods})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.ContentDetail(r.Context(), learnerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.engine.RecordContentProgress(r.Context(), learnerFrom(r.Context()), r.PathValue("id"), *req.WatchTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetQuizForAttempt(r.Context(), learnerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := s.engine.SubmitQuiz(r.Context(), learnerFrom(r.Context()), r.PathValue("id"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.engine.ListCertificates(r.Context(), learnerFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

func (s *Server) handleEligible(w http.ResponseWriter, r *http.Request) {
	el, err := s.engine.ListEligible(r.Context(), learnerFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eligible": el})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req certificateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cert, err := s.engine.IssueCertificate(r.Context(), learnerFrom(r.Context()), progress.Tier(req.Type))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cert)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	l := learnerFrom(r.Context())
	if s.inbox == nil {
		http.NotFound(w, r)
		return
	}
	if l.Anonymous() {
		writeError(w, r, progress.ErrUnauthenticated)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, r, invalidLimit())
			return
		}
		limit = n
	}

	list, err := s.inbox.List(r.Context(), l.ID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	l := learnerFrom(r.Context())
	if s.inbox == nil {
		http.NotFound(w, r)
		return
	}
	if l.Anonymous() {
		writeError(w, r, progress.ErrUnauthenticated)
		return
	}
	if err := s.inbox.MarkRead(r.Context(), l.ID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	l := learnerFrom(r.Context())
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}
	if l.Anonymous() {
		writeError(w, r, progress.ErrUnauthenticated)
		return
	}
	// Accept has already written a response when it fails.
	if err := s.hub.Serve(w, r, l.ID); err != nil {
		slog.Warn("notification stream ended", "user_id", l.ID, "error", err)
	}
}

func (s *Server) handleProgressReport(w http.ResponseWriter, r *http.Request) {
	l := learnerFrom(r.Context())
	if s.reports == nil {
		http.NotFound(w, r)
		return
	}
	switch {
	case l.Anonymous():
		writeError(w, r, progress.ErrUnauthenticated)
		return
	case !l.Admin:
		writeError(w, r, progress.ErrForbidden)
		return
	}

	// Buffered so a failed load still gets a JSON error status.
	var buf bytes.Buffer
	if err := report.WriteProgressWorkbook(r.Context(), &buf, s.reports); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("write progress report failed", "error", err)
	}
}
