package handler

import (
	"net/http"
	"strings"

	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/utils"
)

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var body api.CreateConversationRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	conv, err := h.conversations.Create(r.Context(), domain.ConversationCreationData{
		Owner:       user.Id,
		AssistantId: body.AssistantId,
		Title:       strings.TrimSpace(body.Title),
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, api.NewConversationResponse(conv))
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	list, err := h.conversations.List(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	resp := make([]api.ConversationResponse, len(list))
	for i, c := range list {
		resp[i] = api.NewConversationResponse(c)
	}
	writeJSON(w, resp)
}

func (h *Handler) ListAssistantConversations(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	list, err := h.conversations.ListByAssistant(r.Context(), user.Id, id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	resp := make([]api.ConversationResponse, len(list))
	for i, c := range list {
		resp[i] = api.NewConversationResponse(c)
	}
	writeJSON(w, resp)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	conv, err := h.conversations.Get(r.Context(), user.Id, id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.NewConversationResponse(conv))
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.conversations.Delete(r.Context(), user.Id, id); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ResetConversationContext(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	conv, err := h.conversations.ResetContext(r.Context(), user.Id, id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.NewConversationResponse(conv))
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	msgs, err := h.conversations.Messages(r.Context(), user.Id, id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	views := make([]api.MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = api.MessageView{Message: m}
		if m.Role == domain.RoleAssistant {
			views[i].HTML = h.renderer.Render(m.Content)
		}
	}
	writeJSON(w, views)
}

// SendMessage runs a full turn and answers once the reply is recorded.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	var body api.SendMessageRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	result, err := h.turns.Send(r.Context(), domain.TurnRequest{
		User:           user.Id,
		ConversationId: id,
		Text:           strings.TrimSpace(body.Content),
		FileIds:        body.FileIds,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, h.turnResponse(result))
}

func (h *Handler) turnResponse(result domain.TurnResult) api.TurnResponse {
	toolCalls := result.ToolCalls
	if toolCalls == nil {
		toolCalls = []domain.ToolCallRecord{}
	}
	attachments := result.Attachments
	if attachments == nil {
		attachments = []domain.MessageAttachment{}
	}
	return api.TurnResponse{
		MessageId:   result.MessageId,
		Content:     result.Text,
		HTML:        h.renderer.Render(result.Text),
		ToolCalls:   toolCalls,
		Attachments: attachments,
		TurnHandle:  result.TurnHandle,
		TokensUsed:  result.TokensUsed,
	}
}
