package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumetube/lume/internal/config"
	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/modules/modulemanager"
)

var startTime = time.Now()

// setupRoutes wires the engine-level endpoints and hands the router to
// every loaded module.
func setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		setupHealthRoutes(api)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	modulemanager.RegisterRoutes(r)
}

// setupHealthRoutes configures health and status endpoints
func setupHealthRoutes(api *gin.RouterGroup) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(startTime).String(),
		})
	})

	api.GET("/status", func(c *gin.Context) {
		cfg := config.Get()

		dbStatus := "ok"
		if db := database.GetDB(); db == nil {
			dbStatus = "unavailable"
		}

		pushStatus := "disabled"
		if pushChannel != nil {
			if pushChannel.Connected() {
				pushStatus = "connected"
			} else {
				pushStatus = "reconnecting"
			}
		}

		modules := modulemanager.ListModules()
		moduleIDs := make([]string, 0, len(modules))
		for _, m := range modules {
			moduleIDs = append(moduleIDs, m.ID())
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(startTime).String(),
			"backend":  cfg.Backend.BaseURL,
			"database": dbStatus,
			"push":     pushStatus,
			"modules":  moduleIDs,
		})
	})
}
