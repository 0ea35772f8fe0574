package handler

import (
	"net/http"

	"github.com/vanroute/vanroute/internal/api/models"
	"github.com/vanroute/vanroute/internal/api/response"
	"github.com/vanroute/vanroute/internal/routing"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct{}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler() *MetadataHandler {
	return &MetadataHandler{}
}

// GetEnums handles GET /v1/metadata/enums - the enum vocabularies clients
// may send or receive.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	enums := models.Enums{
		TransportModes: asStrings(routing.AllModes()),
		Preferences:    asStrings(routing.AllPreferences()),
		AlertEffects: []string{
			string(routing.AlertEffectDelay),
			string(routing.AlertEffectDetour),
			string(routing.AlertEffectReducedService),
			string(routing.AlertEffectOther),
		},
		EffortLevels: []string{
			string(routing.EffortLow),
			string(routing.EffortModerate),
			string(routing.EffortHigh),
		},
	}
	response.JSON(w, r, http.StatusOK, enums)
}

func asStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
