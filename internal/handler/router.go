package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/config"
	"github.com/northbeam-digital/site/backend/internal/handler/chat"
	"github.com/northbeam-digital/site/backend/internal/handler/completion"
	"github.com/northbeam-digital/site/backend/internal/handler/contact"
	"github.com/northbeam-digital/site/backend/internal/handler/realtime"
	middlewarePkg "github.com/northbeam-digital/site/backend/internal/middleware"
	realtimeHub "github.com/northbeam-digital/site/backend/internal/realtime"
	aiService "github.com/northbeam-digital/site/backend/internal/service/ai"
	chatService "github.com/northbeam-digital/site/backend/internal/service/chat"
	"github.com/northbeam-digital/site/backend/pkg/utils"
)

// Dependencies groups the services the router exposes.
type Dependencies struct {
	Config    *config.Config
	Chat      *chatService.Service
	Hub       *realtimeHub.Hub
	Responder aiService.Responder
	Logger    *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.Config.Server.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"ai":     deps.Responder != nil,
		})
	})

	chatHandler := chat.New(deps.Chat, logger)
	wsHandler := realtime.NewWebSocketHandler(deps.Chat, deps.Hub, logger)
	completionHandler := completion.New(deps.Responder, logger)
	contactHandler := contact.New(deps.Config.Contact, logger)
	limiter := middlewarePkg.NewRateLimiter(deps.Config.RateLimit.PerMinute, deps.Config.RateLimit.Burst)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(scoped chi.Router) {
			scoped.Use(middlewarePkg.Session)
			chatHandler.RegisterRoutes(scoped)
			wsHandler.RegisterRoutes(scoped)
		})

		completionHandler.RegisterRoutes(api, limiter.Middleware)
		contactHandler.RegisterRoutes(api)
	})

	return r
}
