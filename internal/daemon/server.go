package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"strata/internal/api"
	"strata/internal/config"
	"strata/internal/jobs"
	"strata/internal/logging"
)

// userHeader names the acting user on job routes. The daemon trusts the
// value; authentication happens upstream of it.
const userHeader = "X-Strata-User"

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Server.Bind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Server.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", srv.requireUser(srv.handleCreateJob))
	mux.HandleFunc("GET /jobs", srv.requireUser(srv.handleListJobs))
	mux.HandleFunc("GET /jobs/{id}", srv.requireUser(srv.handleGetJob))
	mux.HandleFunc("GET /jobs/{id}/work-items", srv.requireUser(srv.handleJobWorkItems))
	mux.HandleFunc("GET /jobs/{id}/links", srv.requireUser(srv.handleJobLinks))
	mux.HandleFunc("POST /jobs/{id}/pause", srv.requireUser(srv.handleControl(d.engine.PauseJob)))
	mux.HandleFunc("POST /jobs/{id}/resume", srv.requireUser(srv.handleControl(d.engine.ResumeJob)))
	mux.HandleFunc("POST /jobs/{id}/cancel", srv.requireUser(srv.handleControl(d.engine.CancelJob)))
	mux.HandleFunc("POST /jobs/{id}/skip-preview", srv.requireUser(srv.handleControl(d.engine.SkipPreviewJob)))
	mux.HandleFunc("GET /work", authMiddleware(srv.token, srv.handleClaimWork))
	mux.HandleFunc("GET /work/count", authMiddleware(srv.token, srv.handleWorkCount))
	mux.HandleFunc("PUT /work/{id}", authMiddleware(srv.token, srv.handleReportWork))
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requireUser rejects job-route requests that do not identify a user.
func (s *apiServer) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(userHeader)) == "" {
			s.writeError(w, http.StatusUnauthorized, fmt.Sprintf("missing %s header", userHeader))
			return
		}
		next(w, r)
	}
}

func requestUser(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var payload api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req, err := payload.ToEngine(requestUser(r))
	if err != nil {
		s.writeEngineError(w, err, "")
		return
	}
	job, err := s.daemon.engine.CreateJob(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromJob(job))
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := jobFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := s.daemon.engine.ResolvePage(pageFromQuery(r.URL.Query()))
	listed, total, err := s.daemon.engine.ListJobs(r.Context(), requestUser(r), filter, page)
	if err != nil {
		s.writeEngineError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobList{
		Jobs:       api.FromJobs(listed),
		Count:      total,
		Pagination: pageLinks(r, page, total),
	})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	username := requestUser(r)
	job, err := s.daemon.engine.GetJob(r.Context(), id, username)
	if err != nil {
		s.writeEngineError(w, err, jobNotFound(id))
		return
	}
	detail := api.JobDetail{Job: api.FromJob(job)}
	links, total, err := s.daemon.engine.JobLinks(r.Context(), id, username, jobs.Page{})
	if err == nil {
		detail.Links = api.FromLinks(links)
		detail.LinkCount = total
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleJobWorkItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	filter, err := workItemFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := s.daemon.engine.ResolvePage(pageFromQuery(r.URL.Query()))
	items, total, err := s.daemon.engine.ListJobWorkItems(r.Context(), id, requestUser(r), filter, page)
	if err != nil {
		s.writeEngineError(w, err, jobNotFound(id))
		return
	}
	s.writeJSON(w, http.StatusOK, api.WorkItemList{
		Items:      api.FromWorkItems(items),
		Count:      total,
		Pagination: pageLinks(r, page, total),
	})
}

func (s *apiServer) handleJobLinks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	page := s.daemon.engine.ResolvePage(pageFromQuery(r.URL.Query()))
	links, total, err := s.daemon.engine.JobLinks(r.Context(), id, requestUser(r), page)
	if err != nil {
		s.writeEngineError(w, err, jobNotFound(id))
		return
	}
	s.writeJSON(w, http.StatusOK, api.LinkList{
		Links:      api.FromLinks(links),
		Count:      total,
		Pagination: pageLinks(r, page, total),
	})
}

func (s *apiServer) handleControl(action func(ctx context.Context, requestID, username string) (*jobs.Job, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		job, err := action(r.Context(), id, requestUser(r))
		if err != nil {
			s.writeEngineError(w, err, jobNotFound(id))
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromJob(job))
	}
}

func (s *apiServer) handleClaimWork(w http.ResponseWriter, r *http.Request) {
	serviceID := r.URL.Query().Get("serviceID")
	work, err := s.daemon.engine.GetWork(r.Context(), serviceID)
	if err != nil {
		s.writeEngineError(w, err, "")
		return
	}
	if work == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no work available for service %q", serviceID))
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromWork(work))
}

func (s *apiServer) handleWorkCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.engine.WorkAvailable(r.Context(), r.URL.Query().Get("serviceID"))
	if err != nil {
		s.writeEngineError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleReportWork(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid work item id")
		return
	}
	var payload api.WorkReport
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := s.daemon.engine.ReportWorkItem(r.Context(), payload.ToEngine(itemID)); err != nil {
		s.writeEngineError(w, err, fmt.Sprintf("Unable to find work item %d", itemID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := api.Health{Status: "ok", Database: "ok"}
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		health.Status = "degraded"
		health.Database = "unreachable"
		s.writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	if counts, err := s.daemon.engine.JobStatusCounts(r.Context()); err == nil {
		health.Jobs = make(map[string]int, len(counts))
		for status, count := range counts {
			health.Jobs[string(status)] = count
		}
	}
	s.writeJSON(w, http.StatusOK, health)
}

func jobNotFound(id string) string {
	return fmt.Sprintf("Unable to find job %s", id)
}

func pageFromQuery(q url.Values) jobs.Page {
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return jobs.Page{Limit: limit, Offset: offset}
}

// pageLinks builds the self/prev/next links for a list response from the
// resolved page. The links keep the caller's filter parameters, so
// following them walks the same result set in disjoint steps.
func pageLinks(r *http.Request, page jobs.Page, total int) api.PageLinks {
	links := api.PageLinks{Self: pageURL(r, page.Offset, page.Limit)}
	if page.Offset > 0 {
		prev := page.Offset - page.Limit
		if prev < 0 {
			prev = 0
		}
		links.Prev = pageURL(r, prev, page.Limit)
	}
	if page.Offset+page.Limit < total {
		links.Next = pageURL(r, page.Offset+page.Limit, page.Limit)
	}
	return links
}

func pageURL(r *http.Request, offset, limit int) string {
	u := *r.URL
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String()
}

func jobFilterFromQuery(q url.Values) (jobs.JobFilter, error) {
	filter := jobs.JobFilter{Username: strings.TrimSpace(q.Get("username"))}
	for _, value := range q["status"] {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		filter.Statuses = append(filter.Statuses, jobs.JobStatus(trimmed))
	}
	var err error
	if filter.CreatedSince, err = timeFromQuery(q, "createdSince"); err != nil {
		return jobs.JobFilter{}, err
	}
	if filter.CreatedUntil, err = timeFromQuery(q, "createdUntil"); err != nil {
		return jobs.JobFilter{}, err
	}
	if filter.UpdatedSince, err = timeFromQuery(q, "updatedSince"); err != nil {
		return jobs.JobFilter{}, err
	}
	if filter.UpdatedUntil, err = timeFromQuery(q, "updatedUntil"); err != nil {
		return jobs.JobFilter{}, err
	}
	return filter, nil
}

func workItemFilterFromQuery(q url.Values) (jobs.WorkItemFilter, error) {
	var filter jobs.WorkItemFilter
	for _, value := range q["status"] {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		filter.Statuses = append(filter.Statuses, jobs.WorkItemStatus(trimmed))
	}
	if raw := strings.TrimSpace(q.Get("stepIndex")); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return jobs.WorkItemFilter{}, fmt.Errorf("invalid stepIndex %q", raw)
		}
		filter.StepIndex = &idx
	}
	return filter, nil
}

func timeFromQuery(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: must be an RFC3339 timestamp", key)
	}
	return &parsed, nil
}

// writeEngineError maps engine errors onto HTTP statuses. Validation maps to
// 400, conflicts to 409 with the guard message verbatim, and not-found to
// 404 with notFound when provided. Anything else is a 500 with the detail
// logged rather than leaked.
func (s *apiServer) writeEngineError(w http.ResponseWriter, err error, notFound string) {
	var verr *jobs.ValidationError
	var cerr *jobs.ConflictError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Message)
	case errors.As(err, &cerr):
		s.writeError(w, http.StatusConflict, cerr.Message)
	case jobs.IsNotFound(err):
		if notFound == "" {
			notFound = "not found"
		}
		s.writeError(w, http.StatusNotFound, notFound)
	default:
		s.log().Error("request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
