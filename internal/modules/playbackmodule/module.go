// Package playbackmodule provides media playback functionality: mount-point
// sessions, the direct and segmented-streaming pipelines, and the control
// surface over them.
package playbackmodule

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/lumetube/lume/internal/client"
	"github.com/lumetube/lume/internal/config"
	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/logger"
	"github.com/lumetube/lume/internal/modules/modulemanager"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core/history"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	// ModuleID is the unique identifier for the playback module
	ModuleID = "system.playback"

	// ModuleName is the display name for the playback module
	ModuleName = "Playback Module"
)

// Module implements playback as a module
type Module struct {
	db     *gorm.DB
	client *client.Client
	logger hclog.Logger

	controller   *core.Controller
	historyStore *history.Store
}

// Register registers the playback module with the module system
func Register() {
	modulemanager.Register(&Module{})
}

// SetClient injects the backend transport before Init runs.
func (m *Module) SetClient(c *client.Client) {
	m.client = c
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return true
}

// Migrate performs database migrations
func (m *Module) Migrate(db *gorm.DB) error {
	logger.Info("Migrating playback database schema")

	if err := db.AutoMigrate(
		&database.PlaybackSessionRecord{},
		&database.SessionEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate playback models: %w", err)
	}
	return nil
}

// Init initializes the playback module
func (m *Module) Init() error {
	logger.Info("Initializing playback module")

	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.logger == nil {
		m.logger = hclog.New(&hclog.LoggerOptions{
			Name:  "lume.playback",
			Level: hclog.Info,
		})
	}
	if m.client == nil {
		cfg := config.Get()
		m.client = client.New(client.Options{
			BaseURL:        cfg.Backend.BaseURL,
			RequestTimeout: cfg.Backend.RequestTimeout,
			Logger:         m.logger,
		})
	}

	cfg := config.Get()

	var historyRecorder core.HistoryRecorder
	if cfg.Playback.HistoryEnabled && m.db != nil {
		m.historyStore = history.NewStore(m.logger, m.db)
		historyRecorder = m.historyStore
	}

	m.controller = core.NewController(core.ControllerOptions{
		Environment: core.Environment{
			AdaptiveSupport: cfg.Playback.AdaptiveStreaming,
			TickInterval:    cfg.Playback.TickInterval,
		},
		Fetcher: m.client,
		Surface: core.NewDefaultSurface(),
		History: historyRecorder,
		Logger:  m.logger,
	})

	logger.Info("Playback module initialized")
	return nil
}

// Stop tears down every live session
func (m *Module) Stop() error {
	if m.controller != nil {
		m.controller.Shutdown()
	}
	return nil
}

// Controller exposes the playback controller to other modules and the API
func (m *Module) Controller() *core.Controller {
	return m.controller
}

// RegisterRoutes registers HTTP routes for the playback module
func (m *Module) RegisterRoutes(router *gin.Engine) {
	handler := NewAPIHandler(m.controller, m.historyStore, m.client, m.logger)
	handler.RegisterRoutes(router)
}
