package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/textproc/internal/api/shared"
	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/redact"
	"github.com/phrazzld/textproc/internal/service"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	admission service.AdmissionService
	tasks     service.TaskService
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(admission service.AdmissionService, tasks service.TaskService) *TaskHandler {
	return &TaskHandler{
		admission: admission,
		tasks:     tasks,
	}
}

// ProcessText handles POST /process-text requests. It answers 200 OK.
func (h *TaskHandler) ProcessText(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, http.StatusOK)
}

// CreateTask handles POST /api/tasks requests. It answers 202 Accepted since
// processing happens asynchronously.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, http.StatusAccepted)
}

func (h *TaskHandler) submit(w http.ResponseWriter, r *http.Request, status int) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	t, err := h.admission.Submit(r.Context(), *req.Text, domain.TaskType(req.Type))
	if t != nil && errors.Is(err, service.ErrQueueUnavailable) {
		logger.FromContext(r.Context()).Error("task recorded but not queued",
			"task_id", t.ID, "error", redact.Error(err))
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, QueueUnavailableResponse{
			Error:   GetSafeErrorMessage(err),
			TaskID:  t.ID,
			Status:  string(t.Status),
			TraceID: shared.GetTraceID(r.Context()),
		})
		return
	}
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, status, SubmitTaskResponse{
		TaskID: t.ID,
		Status: string(t.Status),
	})
}

// GetTask handles GET /results/{task_id} and GET /api/tasks/{task_id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathTaskID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	t, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// CompleteTask handles PATCH /api/tasks/{task_id}. It is idempotent: an
// already completed task is left alone and reported with applied=false.
// Unknown ids get 404.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathTaskID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	var req CompleteTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	applied, err := h.tasks.CompleteTask(r.Context(), id, req.toResult())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	status := domain.TaskStatusCompleted
	if !applied {
		logger.FromContext(r.Context()).Info("completion ignored", "task_id", id, "applied", false)

		t, err := h.tasks.GetTask(r.Context(), id)
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		case err != nil:
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return
		default:
			status = t.Status
		}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CompleteTaskResponse{
		TaskID:  id,
		Status:  string(status),
		Applied: applied,
	})
}
