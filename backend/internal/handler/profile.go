package handler

import (
	"net/http"

	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/utils"
)

func statsResponse(s domain.ConversationStats) api.ProfileStatsResponse {
	return api.ProfileStatsResponse{
		Assistants:    s.Assistants,
		Conversations: s.Conversations,
		Messages:      s.Messages,
		StorageUsedMB: api.BytesToMB(s.StorageBytes),
	}
}

func (h *Handler) ProfileStats(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	stats, err := h.profile.Stats(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, statsResponse(stats))
}

// DashboardStats lists assistants with their conversation counts, most recently active first.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	stats, activity, err := h.profile.Dashboard(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	recent := make([]api.DashboardAssistant, len(activity))
	for i, a := range activity {
		recent[i] = api.DashboardAssistant{Id: a.Id, Name: a.Name, Model: a.Model, Conversations: a.Conversations}
	}
	writeJSON(w, api.DashboardResponse{ProfileStatsResponse: statsResponse(stats), RecentAssistants: recent})
}
