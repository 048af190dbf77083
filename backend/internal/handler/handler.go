package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/parley-dev/parley/backend/internal/service"
	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/logger"
)

// Renderer turns assistant markdown into sanitized HTML.
type Renderer interface {
	Render(text string) string
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	auth          service.AuthService
	assistants    service.AssistantService
	files         service.FileService
	conversations service.ConversationService
	turns         service.TurnService
	threads       service.DefaultThreadService
	profile       service.ProfileService
	health        HealthChecker
	renderer      Renderer
	cfg           *config.Config
}

type Services struct {
	Auth          service.AuthService
	Assistants    service.AssistantService
	Files         service.FileService
	Conversations service.ConversationService
	Turns         service.TurnService
	Threads       service.DefaultThreadService
	Profile       service.ProfileService
}

func New(svc Services, health HealthChecker, renderer Renderer, cfg *config.Config) *Handler {
	return &Handler{
		auth:          svc.Auth,
		assistants:    svc.Assistants,
		files:         svc.Files,
		conversations: svc.Conversations,
		turns:         svc.Turns,
		threads:       svc.Threads,
		profile:       svc.Profile,
		health:        health,
		renderer:      renderer,
		cfg:           cfg,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes before touching the response so a failed encode can still send a 500.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
