package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	disputeHandler "github.com/disagreement-ai/mediation/backend/internal/handler/dispute"
	realtimeHandler "github.com/disagreement-ai/mediation/backend/internal/handler/realtime"
	"github.com/disagreement-ai/mediation/backend/internal/logging"
	middlewarePkg "github.com/disagreement-ai/mediation/backend/internal/middleware"
	"github.com/disagreement-ai/mediation/backend/internal/realtime"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
	"github.com/disagreement-ai/mediation/backend/pkg/utils"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Mediation      *mediation.Service
	Hub            *realtime.Hub
	Log            *logging.Logger
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.Sub("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		disputeHandler.New(deps.Mediation, log).RegisterRoutes(api)

		if deps.Hub != nil {
			realtimeHandler.New(deps.Hub, deps.Mediation, log).RegisterRoutes(api)
		}
	})

	return r
}
