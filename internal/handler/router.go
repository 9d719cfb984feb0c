package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/parley/backend/internal/handler/catalog"
	"github.com/zhouzirui/parley/backend/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/parley/backend/internal/middleware"
	personaModel "github.com/zhouzirui/parley/backend/internal/model/persona"
	chatService "github.com/zhouzirui/parley/backend/internal/service/chat"
	"github.com/zhouzirui/parley/backend/pkg/utils"
)

// Options tweaks the router.
type Options struct {
	// AudioFormat is the container the synthesizer produces.
	AudioFormat string
	// SpeechEnabled is reported by the health check.
	SpeechEnabled bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"speech": opts.SpeechEnabled,
		})
	})

	catalogHandler := catalog.New(personas)
	sessionHandler := session.New(chatSvc, opts.AudioFormat)

	r.Route("/api", func(api chi.Router) {
		catalogHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
	})

	return r
}
