package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Controllers struct {
	Game   *GameController
	Video  *VideoController
	Import *ImportController
	Health *HealthController
}

func SetupRouter(allowedOrigins []string, c Controllers) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		"Range",
	}
	config.AllowMethods = []string{"GET", "POST", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Content-Length", "X-Cache"}
	router.Use(cors.New(config))

	if c.Health != nil {
		router.GET("/healthz", c.Health.Liveness)
		router.GET("/health", c.Health.Health)
	}

	if c.Game != nil {
		router.GET("/ws", c.Game.Serve)
	}

	api := router.Group("/api")

	if c.Video != nil {
		api.GET("/video", c.Video.GetVideo)
	}

	if c.Import != nil {
		api.POST("/imports", c.Import.CreateImport)
	}

	return router
}
