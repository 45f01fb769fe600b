package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/dig"

	"github.com/anishgillella/serene-sub003/internal/config"
	"github.com/anishgillella/serene-sub003/internal/handler"
	"github.com/anishgillella/serene-sub003/internal/middleware"
)

const maxMultipartMemory = 32 << 20

// RouterParams are the router dependencies
type RouterParams struct {
	dig.In

	Config         *config.Config
	ContextHandler *handler.ContextHandler
	ProfileHandler *handler.ProfileHandler
}

// NewRouter creates the HTTP router
func NewRouter(params RouterParams) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory

	origins := []string{"*"}
	if params.Config.Server != nil && len(params.Config.Server.AllowedOrigins) > 0 {
		origins = params.Config.Server.AllowedOrigins
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader, "traceparent"},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", handler.Health)

	v1 := r.Group("/api/v1")
	{
		RegisterContextRoutes(v1, params.ContextHandler)
		RegisterProfileRoutes(v1, params.ProfileHandler)
	}
	return r
}

// RegisterContextRoutes registers the context build and session routes
func RegisterContextRoutes(r *gin.RouterGroup, h *handler.ContextHandler) {
	r.POST("/context", h.BuildContext)
	r.POST("/conflicts/:id/reindex", h.ReindexConflict)
	r.POST("/sessions/:id/end", h.EndSession)
}

// RegisterProfileRoutes registers the profile upload route
func RegisterProfileRoutes(r *gin.RouterGroup, h *handler.ProfileHandler) {
	r.POST("/relationships/:id/profiles", h.UploadProfiles)
}
