package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/clipguess/internal/extract"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(nil, Controllers{Health: NewHealthController(HealthStats{
		Rooms:      func() int { return 3 },
		Sessions:   func() int { return 7 },
		Extraction: func() extract.Stats { return extract.Stats{Queued: 1, Running: 2, Limit: 2} },
	})})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rooms      int           `json:"rooms"`
		Sessions   int           `json:"sessions"`
		Extraction extract.Stats `json:"extraction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Rooms)
	assert.Equal(t, 7, body.Sessions)
	assert.Equal(t, 2, body.Extraction.Running)
}
