package setup

import (
	"github.com/parley-dev/parley/backend/internal/handler"
	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/backend/internal/markdown"
	"github.com/parley-dev/parley/backend/internal/service"
	"github.com/parley-dev/parley/backend/internal/storage/pg"
	"github.com/parley-dev/parley/backend/internal/utils/email"
	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/jwt"
	mw "github.com/parley-dev/parley/shared/middleware"
	"github.com/parley-dev/parley/shared/revocation"
)

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Config         *config.Config
	Storage        *pg.Storage
	Handler        *handler.Handler
	AuthMiddleware *mw.Auth
	Revocation     *revocation.Cache
	Repairer       *service.Repairer
}

// SetupDependencies initializes all dependencies required for the application.
func SetupDependencies(cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(cfg)
	if err != nil {
		return nil, err
	}

	client := inference.New(cfg.Public.Inference, cfg.Private.InferenceAPIKey)
	reaper := service.NewReaper(storage, client)
	reconciler := service.NewReconciler(storage, client)

	jwtService := jwt.New(cfg.JwtKey(), cfg.JwtTTL())
	revocationCache := revocation.NewCache(storage, cfg.JwtTTL())
	mailer := email.New(&cfg.Private.Email)

	services := handler.Services{
		Auth:          service.NewAuth(storage, mailer, jwtService, revocationCache, reaper, &cfg.Public),
		Assistants:    service.NewAssistants(storage, client, reconciler, reaper, &cfg.Public),
		Files:         service.NewFiles(storage, client, reconciler, reaper, cfg.Public.Files),
		Conversations: service.NewConversations(storage, reaper),
		Turns:         service.NewTurnDriver(storage, client, reconciler, reaper, cfg.Public.Turn),
		Threads:       service.NewDefaultThreads(storage, client, reaper),
		Profile:       service.NewProfile(storage),
	}

	h := handler.New(services, storage, markdown.New(), cfg)

	return &Dependencies{
		Config:         cfg,
		Storage:        storage,
		Handler:        h,
		AuthMiddleware: mw.NewAuth(jwtService, revocationCache, cfg.Public.SecureCookies),
		Revocation:     revocationCache,
		Repairer:       service.NewRepairer(storage, reconciler, client),
	}, nil
}
