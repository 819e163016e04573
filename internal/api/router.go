package api

import (
	"github.com/gin-gonic/gin"

	"unisaved/internal/api/handler"
	"unisaved/internal/api/middleware"
	"unisaved/internal/credentials"
	"unisaved/internal/logger"
	"unisaved/internal/service"
	"unisaved/internal/source"
)

// RouterConfig bundles the dependencies the router wires together.
type RouterConfig struct {
	Coordinator *service.Coordinator
	Credentials credentials.Store
	Logger      *logger.Logger
	Mode        string
	CORS        middleware.CORSConfig
	// GDPRFactory builds a Reddit GDPR importer for a request-supplied CSV
	// path; nil disables the endpoint.
	GDPRFactory func(csvPath string) source.Source
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler()
	syncHandler := handler.NewSyncHandler(cfg.Coordinator, cfg.GDPRFactory)
	credentialsHandler := handler.NewCredentialsHandler(cfg.Credentials, cfg.Coordinator)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		sync := v1.Group("/sync")
		{
			// Status and history
			sync.GET("/status", syncHandler.Status)
			sync.GET("/status/:source", syncHandler.StatusBySource)
			sync.GET("/history", syncHandler.History)

			// Credentials
			creds := sync.Group("/credentials")
			{
				creds.GET("/status", credentialsHandler.Status)
				creds.POST("/reddit", credentialsHandler.SetReddit)
				creds.DELETE("/reddit", credentialsHandler.DeleteReddit)
				creds.POST("/reddit/validate", credentialsHandler.ValidateReddit)
				creds.POST("/raindrop", credentialsHandler.SetRaindrop)
				creds.DELETE("/raindrop", credentialsHandler.DeleteRaindrop)
				creds.POST("/raindrop/validate", credentialsHandler.ValidateRaindrop)
				creds.POST("/youtube/browser", credentialsHandler.SetYouTubeBrowser)
				creds.POST("/youtube/validate", credentialsHandler.ValidateYouTube)
			}

			// GDPR import bypasses the live API's saved-items window
			sync.POST("/reddit/gdpr-import", syncHandler.GDPRImport)

			// Trigger; registered last so fixed paths above win
			sync.POST("/:source", syncHandler.Trigger)
		}
	}

	return r
}
