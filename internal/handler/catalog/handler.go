package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/parley/backend/internal/model/language"
	"github.com/zhouzirui/parley/backend/internal/model/persona"
	"github.com/zhouzirui/parley/backend/internal/model/voice"
	"github.com/zhouzirui/parley/backend/pkg/utils"
)

// Handler serves the selectable personalities, languages and voices.
type Handler struct {
	personas persona.Store
}

// New creates a catalog handler.
func New(personas persona.Store) *Handler {
	return &Handler{personas: personas}
}

// RegisterRoutes mounts the catalog routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personalities", h.handleListPersonalities)
	r.Get("/languages", h.handleListLanguages)
	r.Get("/voices", h.handleListVoices)
}

func (h *Handler) handleListPersonalities(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}

func (h *Handler) handleListLanguages(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, language.Seed())
}

func (h *Handler) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, voice.Seed())
}
