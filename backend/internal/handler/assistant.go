package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/utils"
)

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.ModelsResponse{Models: h.assistants.Models(), Default: h.cfg.Public.DefaultModel})
}

func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.NewToolsResponse(h.assistants.Tools()))
}

func (h *Handler) CreateAssistant(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var body api.CreateAssistantRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	a, err := h.assistants.Create(r.Context(), domain.AssistantCreationData{
		Owner:        user.Id,
		Name:         body.Name,
		Description:  body.Description,
		Instructions: body.Instructions,
		Model:        body.Model,
		Tools:        body.Tools,
		FileIds:      body.FileIds,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, api.NewAssistantResponse(a))
}

func (h *Handler) ListAssistants(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	list, err := h.assistants.List(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	resp := make([]api.AssistantResponse, len(list))
	for i, a := range list {
		resp[i] = api.NewAssistantResponse(a)
	}
	writeJSON(w, resp)
}

func (h *Handler) GetAssistant(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	a, err := h.assistants.Get(r.Context(), user.Id, id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.NewAssistantResponse(a))
}

func (h *Handler) UpdateAssistant(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	var body api.UpdateAssistantRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	a, err := h.assistants.Update(r.Context(), domain.AssistantUpdateData{
		Owner:        user.Id,
		Id:           id,
		Name:         body.Name,
		Description:  body.Description,
		Instructions: body.Instructions,
		Model:        body.Model,
		Tools:        body.Tools,
		FileIds:      body.FileIds,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.NewAssistantResponse(a))
}

func (h *Handler) DeleteAssistant(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.assistants.Delete(r.Context(), user.Id, id); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AttachAssistantFiles(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	var body api.AttachFilesRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	a, err := h.assistants.AttachFiles(r.Context(), user.Id, id, body.FileIds)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.NewAssistantResponse(a))
}

func (h *Handler) DetachAssistantFile(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	a, err := h.assistants.DetachFile(r.Context(), user.Id, id, chi.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.NewAssistantResponse(a))
}
