package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/repository"
	"github.com/yohaboy/research-tracker/internal/temporal"
)

// Request limits.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	maxRosterRows      = 5000
)

// reconcileRequest is the optional JSON body of the reconcile triggers.
type reconcileRequest struct {
	Since string `json:"since,omitempty"`
}

type listAuthorsResponse struct {
	Authors    []*domain.Author `json:"authors"`
	TotalCount int64            `json:"total_count"`
}

type listPublicationsResponse struct {
	Publications []*domain.Publication `json:"publications"`
	TotalCount   int64                 `json:"total_count"`
}

type jobStatusResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// getSummary handles GET /summary.
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Reports.Summary(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("summary failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// listGroups handles GET /groups.
func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.deps.Groups.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if groups == nil {
		groups = []*domain.ResearchGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

// listAuthors handles GET /authors?search=&group=&limit=&offset=.
func (s *Server) listAuthors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AuthorFilter{Search: q.Get("search")}

	var err error
	if filter.GroupID, err = parseOptionalID(q.Get("group"), "group"); err != nil {
		writeDomainError(w, err)
		return
	}
	if filter.Limit, filter.Offset, err = parsePage(q.Get("limit"), q.Get("offset")); err != nil {
		writeDomainError(w, err)
		return
	}

	authors, total, err := s.deps.Authors.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if authors == nil {
		authors = []*domain.Author{}
	}
	writeJSON(w, http.StatusOK, listAuthorsResponse{Authors: authors, TotalCount: total})
}

// getAuthor handles GET /authors/{authorID}.
func (s *Server) getAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, ok := parseAuthorID(w, r)
	if !ok {
		return
	}
	author, err := s.deps.Authors.Get(r.Context(), authorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, author)
}

// addAuthors handles POST /authors. The body is one roster row or an array of rows.
func (s *Server) addAuthors(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var rows []domain.AuthorInput
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
	default:
		var row domain.AuthorInput
		if err := json.Unmarshal(trimmed, &row); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
		rows = []domain.AuthorInput{row}
	}

	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "at least one roster row is required")
		return
	}
	if len(rows) > maxRosterRows {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d roster rows per request", maxRosterRows))
		return
	}

	result, err := s.deps.Roster.AddAll(r.Context(), rows)
	if err != nil {
		s.logger.Error().Err(err).Int("rows", len(rows)).Msg("roster upload failed")
		writeDomainError(w, err)
		return
	}
	s.invalidateReports()

	status := http.StatusOK
	if result.Created > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// listPublications handles GET /publications?group=&author=&source=&from=&to=&limit=&offset=.
// from is exclusive and to is inclusive.
func (s *Server) listPublications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter repository.PublicationFilter

	var err error
	if filter.GroupID, err = parseOptionalID(q.Get("group"), "group"); err != nil {
		writeDomainError(w, err)
		return
	}
	if filter.AuthorID, err = parseOptionalID(q.Get("author"), "author"); err != nil {
		writeDomainError(w, err)
		return
	}
	if v := q.Get("source"); v != "" {
		tag, err := domain.ParseSourceTag(v)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.Source = &tag
	}
	if filter.PublishedAfter, err = parseOptionalDate(q.Get("from")); err != nil {
		writeDomainError(w, err)
		return
	}
	if filter.PublishedUntil, err = parseOptionalDate(q.Get("to")); err != nil {
		writeDomainError(w, err)
		return
	}
	if filter.Limit, filter.Offset, err = parsePage(q.Get("limit"), q.Get("offset")); err != nil {
		writeDomainError(w, err)
		return
	}

	pubs, total, err := s.deps.Publications.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pubs == nil {
		pubs = []*domain.Publication{}
	}
	writeJSON(w, http.StatusOK, listPublicationsResponse{Publications: pubs, TotalCount: total})
}

// reconcileAll handles POST /reconcile and submits a fan-out job.
func (s *Server) reconcileAll(w http.ResponseWriter, r *http.Request) {
	since, ok := s.parseSince(w, r)
	if !ok {
		return
	}

	ref, err := s.deps.Scheduler.SubmitAll(r.Context(), since)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to submit reconcile-all job")
		writeDomainError(w, err)
		return
	}

	s.logger.Info().
		Str("job_id", ref.ID).
		Str("since", since.Format(domain.DateLayout)).
		Str("subject", subjectFromContext(r.Context())).
		Msg("reconcile-all job submitted")
	writeJSON(w, http.StatusAccepted, ref)
}

// reconcileAuthor handles POST /authors/{authorID}/reconcile.
func (s *Server) reconcileAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, ok := parseAuthorID(w, r)
	if !ok {
		return
	}
	since, ok := s.parseSince(w, r)
	if !ok {
		return
	}

	if _, err := s.deps.Authors.Get(r.Context(), authorID); err != nil {
		writeDomainError(w, err)
		return
	}

	ref, err := s.deps.Scheduler.Submit(r.Context(), domain.Job{AuthorID: authorID, Since: since})
	if err != nil {
		s.logger.Error().Err(err).Int64("author_id", authorID).Msg("failed to submit author job")
		writeDomainError(w, err)
		return
	}

	s.logger.Info().
		Str("job_id", ref.ID).
		Int64("author_id", authorID).
		Str("since", since.Format(domain.DateLayout)).
		Msg("author job submitted")
	writeJSON(w, http.StatusAccepted, ref)
}

// getJobStatus handles GET /jobs/{jobID}.
func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	status, err := s.deps.Scheduler.Status(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{JobID: jobID, Status: status})
}

// resetData handles DELETE /data and removes every group, author and publication.
func (s *Server) resetData(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Publications.Reset(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("reset failed")
		writeDomainError(w, err)
		return
	}
	s.invalidateReports()

	s.logger.Warn().
		Str("subject", subjectFromContext(r.Context())).
		Msg("all data deleted")
	w.WriteHeader(http.StatusNoContent)
}

// parseSince reads the optional since date from the request body, falling
// back to the configured default.
func (s *Server) parseSince(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return time.Time{}, false
	}

	var req reconcileRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return time.Time{}, false
		}
	}
	if req.Since == "" {
		return s.defaultSince, true
	}

	since, err := domain.ParseDate(req.Since)
	if err != nil {
		writeDomainError(w, err)
		return time.Time{}, false
	}
	return since, true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
}

func parseAuthorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "authorID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "author_id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseOptionalID(s, field string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, domain.NewValidationError(field, "must be a positive integer")
	}
	return &id, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parsePage(limitStr, offsetStr string) (limit, offset int, err error) {
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 {
			return 0, 0, domain.NewValidationError("limit", "must be a non-negative integer")
		}
	}
	if offsetStr != "" {
		if offset, err = strconv.Atoi(offsetStr); err != nil || offset < 0 {
			return 0, 0, domain.NewValidationError("offset", "must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// writeDomainError maps domain and job runner errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "job already started")
	case errors.Is(err, temporal.ErrConnectionFailed), errors.Is(err, temporal.ErrClientClosed):
		writeError(w, http.StatusServiceUnavailable, "job runner unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
