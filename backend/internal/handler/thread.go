package handler

import (
	"net/http"

	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/utils"
)

// CreateThread replaces the user's default thread with a fresh one.
func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	threadId, err := h.threads.Create(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, api.ThreadResponse{ThreadId: threadId})
}

func (h *Handler) CurrentThread(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	threadId, err := h.threads.Current(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.ThreadResponse{ThreadId: threadId})
}

func (h *Handler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	if err := h.threads.Delete(r.Context(), user.Id); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
