package uploadmodule

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/lumetube/lume/internal/client"
	"github.com/lumetube/lume/internal/errors"
	"github.com/lumetube/lume/internal/modules/uploadmodule/core"
	"github.com/lumetube/lume/internal/modules/uploadmodule/store"
	"github.com/lumetube/lume/internal/utils"
)

// APIHandler exposes the upload controller over the local HTTP API,
// including a websocket relay that streams state snapshots to UI clients.
type APIHandler struct {
	controller *core.Controller
	jobStore   *store.Store
	logger     hclog.Logger

	wsUpgrader websocket.Upgrader
	wsMu       sync.Mutex
	wsClients  map[string]*websocket.Conn
}

// NewAPIHandler creates the upload API handler and hooks the relay into
// the controller's state stream.
func NewAPIHandler(controller *core.Controller, jobStore *store.Store, logger hclog.Logger) *APIHandler {
	h := &APIHandler{
		controller: controller,
		jobStore:   jobStore,
		logger:     logger.Named("api"),
		wsUpgrader: websocket.Upgrader{
			// Local API; the UI runs on a different origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsClients: make(map[string]*websocket.Conn),
	}
	controller.OnStateChange(h.broadcastState)
	return h
}

// RegisterRoutes registers the upload routes.
func (h *APIHandler) RegisterRoutes(router *gin.Engine) {
	uploads := router.Group("/api/uploads")
	{
		uploads.POST("", h.UploadFiles)
		uploads.POST("/url", h.SubmitURL)
		uploads.POST("/batch", h.UploadFiles)
		uploads.POST("/batch-url", h.SubmitURLs)
		uploads.POST("/cancel", h.Cancel)
		uploads.GET("/current", h.Current)
		uploads.GET("/history", h.History)
		uploads.GET("/ws", h.HandleWebSocket)
	}
}

// UploadFiles accepts one or more multipart files and submits them.
func (h *APIHandler) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		errors.HandleValidationError(c, "Invalid multipart request", "form")
		return
	}

	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		fileHeaders = form.File["files"]
	}
	if len(fileHeaders) == 0 {
		errors.HandleValidationError(c, "No files in request", "file")
		return
	}

	files := make([]client.FileInput, 0, len(fileHeaders))
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			closeFiles()
			errors.HandleInternalError(c, "Failed to read uploaded file", err)
			return
		}
		files = append(files, client.FileInput{
			Name:   header.Filename,
			Size:   header.Size,
			Reader: file,
		})
	}

	// The controller owns the readers once Submit accepts; until then they
	// are ours to release.
	err = h.controller.Submit(core.Submission{
		Files:    files,
		Metadata: metadataFromForm(c),
	})
	if err != nil {
		closeFiles()
		errors.HandleValidationError(c, err.Error(), "submission")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": h.controller.State()})
}

// SubmitURL submits a single remote URL for import.
func (h *APIHandler) SubmitURL(c *gin.Context) {
	var req struct {
		URL         string   `json:"url"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Visibility  string   `json:"visibility"`
		Tags        []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		errors.HandleValidationError(c, "url is required", "url")
		return
	}

	err := h.controller.Submit(core.Submission{
		URLs: []string{req.URL},
		Metadata: client.Metadata{
			Title:       req.Title,
			Description: req.Description,
			Visibility:  req.Visibility,
			Tags:        req.Tags,
		},
	})
	if err != nil {
		errors.HandleValidationError(c, err.Error(), "submission")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": h.controller.State()})
}

// SubmitURLs submits a batch of remote URLs.
func (h *APIHandler) SubmitURLs(c *gin.Context) {
	var req struct {
		URLs        []string `json:"urls"`
		Description string   `json:"description"`
		Visibility  string   `json:"visibility"`
		Tags        []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.URLs) == 0 {
		errors.HandleValidationError(c, "urls is required", "urls")
		return
	}

	err := h.controller.Submit(core.Submission{
		URLs: req.URLs,
		Metadata: client.Metadata{
			Description: req.Description,
			Visibility:  req.Visibility,
			Tags:        req.Tags,
		},
	})
	if err != nil {
		errors.HandleValidationError(c, err.Error(), "submission")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": h.controller.State()})
}

// Cancel aborts the active submission.
func (h *APIHandler) Cancel(c *gin.Context) {
	if err := h.controller.Cancel(); err != nil {
		errors.HandleInternalError(c, "Cancellation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.controller.State()})
}

// Current returns the live upload state snapshot.
func (h *APIHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.controller.State()})
}

// History returns recent upload jobs.
func (h *APIHandler) History(c *gin.Context) {
	if h.jobStore == nil {
		c.JSON(http.StatusOK, gin.H{"data": []interface{}{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.jobStore.Recent(limit)
	if err != nil {
		errors.HandleInternalError(c, "Failed to load upload history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// HandleWebSocket upgrades the connection and streams state snapshots.
func (h *APIHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	clientID := utils.GenerateShortUUID()
	h.wsMu.Lock()
	h.wsClients[clientID] = conn
	h.wsMu.Unlock()

	// Send the current snapshot immediately so new clients do not wait for
	// the next transition.
	h.sendState(conn, h.controller.State())

	go func() {
		defer func() {
			h.wsMu.Lock()
			delete(h.wsClients, clientID)
			h.wsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *APIHandler) broadcastState(state core.State) {
	h.wsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.wsClients))
	for _, conn := range h.wsClients {
		conns = append(conns, conn)
	}
	h.wsMu.Unlock()

	for _, conn := range conns {
		h.sendState(conn, state)
	}
}

func (h *APIHandler) sendState(conn *websocket.Conn, state core.State) {
	if err := conn.WriteJSON(gin.H{"event": "upload-state", "data": state}); err != nil {
		h.logger.Debug("websocket write failed", "error", err)
	}
}

func metadataFromForm(c *gin.Context) client.Metadata {
	return client.Metadata{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Visibility:  c.PostForm("visibility"),
		Tags:        c.PostFormArray("tags"),
	}
}
