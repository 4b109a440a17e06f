package api

import (
	"net/http"

	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/policy"
	"github.com/nhle/taskflow/internal/tasks"
)

type commentRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var changes model.TaskChanges
	if err := decodeJSON(w, r, &changes); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.tasks.Create(r.Context(), changes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, view, "Task created successfully")
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.tasks.List(r.Context(), tasks.ListQuery{
		Page:   page,
		Limit:  limit,
		Status: r.URL.Query().Get("status"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result, "Tasks fetched successfully")
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	view, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, view, "Task fetched successfully")
}

func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var changes model.TaskChanges
	if err := decodeJSON(w, r, &changes); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.tasks.Update(r.Context(), r.PathValue("id"), changes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, view, "Task updated successfully")
}

func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.tasks.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, deleted, "Task deleted successfully")
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.tasks.AddComment(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, view, "Comment added successfully")
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.ActorFrom(r.Context())
	if err := policy.CanReadLogs(actor).Err(); err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := queryInt(r, "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if page < 0 || limit < 0 {
		h.writeError(w, r, apperr.Invalidf("page and limit must be positive"))
		return
	}
	if page == 0 {
		page = tasks.DefaultPage
	}
	if limit == 0 {
		limit = tasks.DefaultLimit
	}
	limit = min(limit, tasks.MaxLimit)

	result, err := h.activity.List(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.Internal, "listing activity", err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result, "Activity logs fetched successfully")
}
