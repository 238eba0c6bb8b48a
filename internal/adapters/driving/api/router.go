package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/mirrorsync/internal/core/ports/driving"
	"github.com/custodia-labs/mirrorsync/internal/logger"
)

// Server holds the handlers' dependencies.
type Server struct {
	engine driving.SyncEngine
}

// NewRouter builds the gin engine serving the API for engine.
func NewRouter(engine driving.SyncEngine) *gin.Engine {
	s := &Server{engine: engine}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.GET("/sources", s.listSources)
		api.POST("/sources", s.addSource)
		api.GET("/sources/:name", s.getSource)
		api.PUT("/sources/:name", s.updateSource)
		api.DELETE("/sources/:name", s.removeSource)
		api.POST("/sources/:name/enable", s.enableSource(true))
		api.POST("/sources/:name/disable", s.enableSource(false))
		api.GET("/sources/:name/status", s.sourceStatus)
		api.POST("/sources/:name/sync", s.startSync)

		api.GET("/tasks", s.listTasks)
		api.POST("/tasks/cleanup", s.cleanupTasks)
		api.GET("/tasks/:id", s.getTask)
		api.GET("/tasks/:id/logs", s.taskLogs)
		api.POST("/tasks/:id/stop", s.controlTask("stop", s.engine.StopSync))
		api.POST("/tasks/:id/pause", s.controlTask("pause", s.engine.PauseSync))
		api.POST("/tasks/:id/resume", s.controlTask("resume", s.engine.ResumeSync))

		api.GET("/history", s.history)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now(),
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logger.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request")
	}
}
