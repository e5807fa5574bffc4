package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/me/aquaproc/internal/scheduler"
	"github.com/me/aquaproc/pkg/model"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	jobs, total, err := s.store.ListJobs(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	respondList(w, reqID, jobs, model.NewPagination(total, opts))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	respondOK(w, reqID, job)
}

func (s *Server) handleGetJobResults(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.State != model.JobStateSuccessful {
		msg := fmt.Sprintf("job '%s' is %s, results are only available for SUCCESSFUL jobs", job.ID, job.State)
		if job.Message != "" {
			msg += ": " + job.Message
		}
		respondError(w, reqID, http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: msg})
		return
	}
	respondOK(w, reqID, job.Outputs)
}

func (s *Server) handleGetJobLogs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	respondOK(w, reqID, job.Logs())
}

func (s *Server) handleDismissJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	job, deleted, err := s.dispatcher.Dismiss(r.Context(), id)
	if errors.Is(err, scheduler.ErrJobNotFound) {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return
	}
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, dismissResponse{Job: job, Deleted: deleted})
}

// dismissResponse reports a dismissal. Deleted is true when the job had
// already finished and was removed with its outputs.
type dismissResponse struct {
	Job     *model.Job `json:"job"`
	Deleted bool       `json:"deleted"`
}

// loadJob fetches the job named in the URL, writing a 404 or 500 response
// when it cannot.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*model.Job, bool) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return nil, false
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return nil, false
	}
	return job, true
}

func parseListOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	q := r.URL.Query()
	opts := model.DefaultListOptions()

	var details []model.FieldError
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			details = append(details, model.FieldError{Field: "limit", Message: "must be a positive integer"})
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, model.FieldError{Field: "offset", Message: "must be a non-negative integer"})
		}
		opts.Offset = n
	}
	if v := q.Get("state"); v != "" {
		state, ok := model.ParseJobState(strings.ToUpper(v))
		if !ok {
			details = append(details, model.FieldError{Field: "state", Message: "unknown job state " + strconv.Quote(v)})
		}
		opts.State = string(state)
	}
	opts.ProcessID = q.Get("process")

	if len(details) > 0 {
		return opts, model.NewValidationError("invalid query parameters", details...)
	}
	opts.Clamp()
	return opts, nil
}
