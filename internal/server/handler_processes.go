package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/me/aquaproc/internal/process"
	"github.com/me/aquaproc/internal/runner"
	"github.com/me/aquaproc/pkg/model"
)

type processSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// executionResult is the body of a successful synchronous execution.
type executionResult struct {
	JobID   string                      `json:"job_id"`
	Status  model.JobState              `json:"status"`
	Outputs map[string]model.OutputLink `json:"outputs"`
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	defs := s.catalog.List()
	out := make([]processSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, processSummary{
			ID:          def.ID,
			Title:       def.Title,
			Description: def.Description,
			Version:     def.Version,
		})
	}
	respondOK(w, reqID, out)
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	def, ok := s.catalog.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("process", id))
		return
	}
	respondOK(w, reqID, def)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req struct {
		Inputs map[string]any `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}
	async := preferAsync(r)

	job, err := s.dispatcher.Submit(r.Context(), id, req.Inputs, async)
	if job != nil {
		w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	}
	if err != nil {
		s.respondSubmitError(w, reqID, id, err)
		return
	}

	if async {
		respondCreated(w, reqID, job)
		return
	}
	respondOK(w, reqID, executionResult{JobID: job.ID, Status: job.State, Outputs: job.Outputs})
}

// respondSubmitError maps dispatcher errors to API errors.
func (s *Server) respondSubmitError(w http.ResponseWriter, reqID, processID string, err error) {
	var (
		unknown *process.UnknownProcessError
		missing *process.MissingInputError
		failed  *process.ExecuteError
		launch  *runner.LaunchError
	)
	switch {
	case errors.As(err, &unknown):
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("process", unknown.ID))
	case errors.As(err, &missing):
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(missing.Error(),
			model.FieldError{Field: missing.Input, Message: "required input is missing"}))
	case errors.As(err, &failed):
		s.logger.Warn("process failed", "process", processID, "exit_code", failed.ExitCode, "message", failed.UserMessage)
		respondError(w, reqID, http.StatusInternalServerError, model.NewExecutionError(failed.UserMessage))
	case errors.As(err, &launch):
		s.logger.Error("container engine could not be started", "process", processID, "error", err)
		respondInternal(w, reqID, err)
	default:
		respondInternal(w, reqID, err)
	}
}

// preferAsync reports whether the client asked for asynchronous execution
// with "Prefer: respond-async".
func preferAsync(r *http.Request) bool {
	for _, v := range r.Header.Values("Prefer") {
		for _, pref := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(pref), "respond-async") {
				return true
			}
		}
	}
	return false
}
