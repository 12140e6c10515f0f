package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/clipguess/internal/api/http/converter"
	"github.com/immxrtalbeast/clipguess/internal/service"
)

type ImportController struct {
	game service.GameInteractor
}

func NewImportController(game service.GameInteractor) *ImportController {
	return &ImportController{game: game}
}

// CreateImport consumes a one-time import token and stores the given links
// as the token owner's submissions.
func (c *ImportController) CreateImport(ctx *gin.Context) {
	type request struct {
		Token string   `json:"token" binding:"required"`
		URLs  []string `json:"urls"`
		Text  string   `json:"text"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	urls := append(req.URLs, service.ExtractVideoLinks(req.Text)...)
	count, err := c.game.ImportFromToken(ctx.Request.Context(), req.Token, urls)
	if err != nil {
		ctx.JSON(converter.HTTPError(err))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"count": count})
}
