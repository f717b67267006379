package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// TaskIDParam is the chi URL parameter holding a task identifier.
const TaskIDParam = "task_id"

// getPathTaskID extracts the task id from the URL path. Ids are opaque, so
// only emptiness is checked; unknown ids surface as not found.
func getPathTaskID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, TaskIDParam))
	return id, id != ""
}
