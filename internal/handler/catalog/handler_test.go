package catalog

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/parley/backend/internal/model/persona"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed())).RegisterRoutes(r)
	return r
}

func TestCatalogRoutes(t *testing.T) {
	tests := []struct {
		path    string
		count   int
		firstID string
	}{
		{path: "/personalities", count: 4, firstID: "general-assistant"},
		{path: "/languages", count: 6, firstID: "english"},
		{path: "/voices", count: 4, firstID: "warm-female"},
	}

	r := setupRouter()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var items []struct {
				ID string `json:"id"`
			}
			require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &items))
			assert.Len(t, items, tt.count)
			assert.Equal(t, tt.firstID, items[0].ID)
		})
	}
}

func TestPersonalityInstructionNotExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	setupRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personalities", nil))
	assert.NotContains(t, rec.Body.String(), "You are")
}
