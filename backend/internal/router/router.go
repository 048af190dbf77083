package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parley-dev/parley/backend/internal/setup"
	mw "github.com/parley-dev/parley/shared/middleware"
	"github.com/parley-dev/parley/shared/middleware/metrics"
)

// New wires every route onto a chi router.
func New(deps *setup.Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Public.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.SecurityHeadersWithCSP(deps.Config.Public.SecureCookies, mw.APIContentSecurityPolicy))

	h := deps.Handler
	authMw := deps.AuthMiddleware

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Register)
			auth.Post("/login", h.Login)
			auth.Post("/logout", h.Logout)
			auth.Post("/forgot-password", h.ForgotPassword)
			auth.Post("/reset-password", h.ResetPassword)
		})

		// the external handle is the capability, images render in plain <img> tags
		v1.Get("/files/openai/{fileId}", h.PublicImage)

		v1.Group(func(r chi.Router) {
			r.Use(authMw.NeedAuth())

			r.Get("/auth/me", h.Me)
			r.Delete("/auth/account", h.DeleteAccount)

			r.Get("/profile", h.Me)
			r.Put("/profile", h.UpdateProfile)
			r.Delete("/profile", h.DeleteAccount)
			r.Post("/profile/change-password", h.ChangePassword)
			r.Get("/profile/stats", h.ProfileStats)
			r.Get("/dashboard/stats", h.DashboardStats)

			r.Route("/assistants", func(r chi.Router) {
				r.Get("/models", h.ListModels)
				r.Get("/tools", h.ListTools)
				r.Get("/", h.ListAssistants)
				r.Post("/", h.CreateAssistant)
				r.Get("/{id}", h.GetAssistant)
				r.Patch("/{id}", h.UpdateAssistant)
				r.Delete("/{id}", h.DeleteAssistant)
				r.Post("/{id}/files", h.AttachAssistantFiles)
				r.Delete("/{id}/files/{fileId}", h.DetachAssistantFile)
				r.Get("/{id}/conversations", h.ListAssistantConversations)
			})

			// flat, /files/openai/{fileId} above is public
			r.Post("/files", h.UploadFile)
			r.Get("/files", h.ListFiles)
			r.Get("/files/by-purpose", h.FilesByPurpose)
			r.Get("/files/{fileId}/content", h.FileContent)
			r.Get("/files/{fileId}/preview", h.FilePreview)
			r.Delete("/files/{fileId}", h.DeleteFile)

			r.Route("/threads", func(r chi.Router) {
				r.Post("/", h.CreateThread)
				r.Get("/current", h.CurrentThread)
				r.Delete("/current", h.DeleteThread)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.ListConversations)
				r.Post("/", h.CreateConversation)
				r.Get("/{id}", h.GetConversation)
				r.Delete("/{id}", h.DeleteConversation)
				r.Post("/{id}/context/reset", h.ResetConversationContext)
				r.Get("/{id}/messages", h.ListMessages)
				r.Post("/{id}/messages", h.SendMessage)
				r.Get("/{id}/stream", h.Stream)
			})
		})
	})

	return r
}
