package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lakewatch/thermal-service/docs"
)

// TestRegisterDocsRoute verifies that the swagger route is mounted.
func TestRegisterDocsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	assert.NotPanics(t, func() { RegisterDocs(router) })

	found := false
	for _, route := range router.Routes() {
		if route.Path == "/docs/*any" && route.Method == http.MethodGet {
			found = true
			break
		}
	}
	assert.True(t, found, "Swagger route should be registered")
}

// TestDocsServesSpec verifies doc.json is served from the registered spec.
func TestDocsServesSpec(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterDocs(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Thermal Service API")
	assert.Contains(t, w.Body.String(), "/internal/admin/requests/reprocess")
}
