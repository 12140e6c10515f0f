package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/clipguess/internal/extract"
)

type HealthStats struct {
	Rooms      func() int
	Sessions   func() int
	Extraction func() extract.Stats
}

type HealthController struct {
	stats HealthStats
}

func NewHealthController(stats HealthStats) *HealthController {
	return &HealthController{stats: stats}
}

func (c *HealthController) Liveness(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *HealthController) Health(ctx *gin.Context) {
	body := gin.H{"status": "ok"}
	if c.stats.Rooms != nil {
		body["rooms"] = c.stats.Rooms()
	}
	if c.stats.Sessions != nil {
		body["sessions"] = c.stats.Sessions()
	}
	if c.stats.Extraction != nil {
		body["extraction"] = c.stats.Extraction()
	}
	ctx.JSON(http.StatusOK, body)
}
