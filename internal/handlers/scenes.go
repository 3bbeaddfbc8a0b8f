package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lakewatch/thermal-service/internal/database"
)

// ListScenesResponse holds the metadata rows of one feature.
type ListScenesResponse struct {
	FeatureID string                   `json:"featureId" jsonschema:"required"`
	Scenes    []database.SceneMetadata `json:"scenes" jsonschema:"required"`
	Total     int                      `json:"total" jsonschema:"required"`
}

// ListFeaturesResponse lists regions with processed scenes.
type ListFeaturesResponse struct {
	Features []database.Feature `json:"features" jsonschema:"required"`
	Total    int                `json:"total" jsonschema:"required"`
}

// ListScenes returns the processed scenes of one region
// @Summary List scene metadata for a feature
// @Tags scenes
// @Produce json
// @Param featureId path string true "Feature ID (region slug)"
// @Success 200 {object} ListScenesResponse
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /internal/scenes/{featureId} [get]
func (a *API) ListScenes(c *gin.Context) {
	featureID := c.Param("featureId")
	scenes, err := a.store.ListSceneMetadata(c.Request.Context(), featureID)
	if err != nil {
		respondError(c, err)
		return
	}
	if scenes == nil {
		scenes = []database.SceneMetadata{}
	}
	c.JSON(http.StatusOK, ListScenesResponse{FeatureID: featureID, Scenes: scenes, Total: len(scenes)})
}

// ListFeatures returns every region with at least one processed scene
// @Summary List features
// @Tags scenes
// @Produce json
// @Success 200 {object} ListFeaturesResponse
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /internal/features [get]
func (a *API) ListFeatures(c *gin.Context) {
	features, err := a.store.ListFeatures(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if features == nil {
		features = []database.Feature{}
	}
	c.JSON(http.StatusOK, ListFeaturesResponse{Features: features, Total: len(features)})
}
