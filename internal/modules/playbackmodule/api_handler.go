package playbackmodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/lumetube/lume/internal/captions"
	"github.com/lumetube/lume/internal/client"
	"github.com/lumetube/lume/internal/errors"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core/history"
)

// APIHandler exposes the playback controller over the local HTTP API.
type APIHandler struct {
	controller *core.Controller
	history    *history.Store
	captions   *captions.Fetcher
	logger     hclog.Logger
}

// NewAPIHandler creates an API handler for the playback module.
func NewAPIHandler(controller *core.Controller, historyStore *history.Store, backendClient *client.Client, logger hclog.Logger) *APIHandler {
	return &APIHandler{
		controller: controller,
		history:    historyStore,
		captions:   captions.NewFetcher(backendClient),
		logger:     logger.Named("api"),
	}
}

// RegisterRoutes registers the player and caption routes.
func (h *APIHandler) RegisterRoutes(router *gin.Engine) {
	player := router.Group("/api/player")
	{
		player.POST("/:mount/load", h.Load)
		player.POST("/:mount/play", h.Play)
		player.POST("/:mount/pause", h.Pause)
		player.POST("/:mount/seek", h.Seek)
		player.POST("/:mount/volume", h.Volume)
		player.POST("/:mount/rate", h.Rate)
		player.GET("/:mount/status", h.Status)
		player.DELETE("/:mount", h.Unload)
	}

	// Lives outside the mount group: a literal segment under /api/player
	// would collide with the :mount parameter.
	router.GET("/api/player-sessions", h.Sessions)

	media := router.Group("/api/media")
	{
		media.GET("/:id/captions", h.Captions)
		media.GET("/:id/captions/active", h.ActiveCaption)
	}

	if h.history != nil {
		router.GET("/api/player-history", h.History)
	}
}

// Load establishes a playback session on a mount point.
func (h *APIHandler) Load(c *gin.Context) {
	mount := c.Param("mount")

	var opts core.SourceOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		errors.HandleValidationError(c, "Invalid load request", "body")
		return
	}
	if opts.SourceURL == "" {
		errors.HandleValidationError(c, "sourceUrl is required", "sourceUrl")
		return
	}
	if opts.MediaKind != core.MediaVideo && opts.MediaKind != core.MediaAudio {
		errors.HandleValidationError(c, "mediaKind must be video or audio", "mediaKind")
		return
	}

	session, err := h.controller.Load(c.Request.Context(), mount, opts, core.ElementListeners{})
	if err != nil {
		errors.HandleInternalError(c, "Failed to establish session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": session.Snapshot()})
}

// Play resumes playback on a mount.
func (h *APIHandler) Play(c *gin.Context) {
	h.controller.Play(c.Param("mount"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Pause pauses playback on a mount.
func (h *APIHandler) Pause(c *gin.Context) {
	h.controller.Pause(c.Param("mount"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Seek moves the playhead.
func (h *APIHandler) Seek(c *gin.Context) {
	var req struct {
		Position float64 `json:"position"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleValidationError(c, "Invalid seek request", "position")
		return
	}
	h.controller.SeekTo(c.Param("mount"), req.Position)
	c.JSON(http.StatusOK, gin.H{"position": h.controller.CurrentTime(c.Param("mount"))})
}

// Volume sets the playback volume. Inputs are accepted as-is and clamped.
func (h *APIHandler) Volume(c *gin.Context) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleValidationError(c, "Invalid volume request", "volume")
		return
	}
	h.controller.SetVolume(c.Param("mount"), req.Volume)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Rate sets the playback rate from the speed menu.
func (h *APIHandler) Rate(c *gin.Context) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleValidationError(c, "Invalid rate request", "rate")
		return
	}
	if !h.controller.SetRate(c.Param("mount"), req.Rate) {
		errors.HandleValidationError(c, "Unsupported playback rate", "rate")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status returns the session snapshot for a mount.
func (h *APIHandler) Status(c *gin.Context) {
	session := h.controller.Session(c.Param("mount"))
	if session == nil {
		errors.HandleNotFound(c, "session", c.Param("mount"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": session.Snapshot()})
}

// Unload tears down the session on a mount.
func (h *APIHandler) Unload(c *gin.Context) {
	h.controller.Unload(c.Param("mount"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Sessions lists every live session.
func (h *APIHandler) Sessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.controller.Sessions()})
}

// Captions returns the caption tracks for a media id.
func (h *APIHandler) Captions(c *gin.Context) {
	tracks, err := h.captions.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.HandleInternalError(c, "Failed to fetch captions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tracks})
}

// ActiveCaption resolves the active segment for a media id at time t.
func (h *APIHandler) ActiveCaption(c *gin.Context) {
	t, err := strconv.ParseFloat(c.Query("t"), 64)
	if err != nil {
		errors.HandleValidationError(c, "query parameter t must be a number", "t")
		return
	}

	tracks, err := h.captions.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.HandleInternalError(c, "Failed to fetch captions", err)
		return
	}

	language := c.Query("lang")
	for _, track := range tracks {
		if language != "" && track.Language != language {
			continue
		}
		idx := captions.ActiveSegment(t, track.Segments)
		if idx < 0 {
			c.JSON(http.StatusOK, gin.H{"data": nil})
			return
		}
		segment := track.Segments[idx]
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"language": track.Language,
			"segment":  segment,
			"weight":   captions.ProximityWeight(t, track.Segments, idx),
		}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nil})
}

// History returns recent playback sessions.
func (h *APIHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.history.Recent(limit)
	if err != nil {
		errors.HandleInternalError(c, "Failed to load playback history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
