// Package uploadmodule provides upload functionality: submissions to the
// backend, push-channel job tracking, cancellation, watch folders, and job
// history.
package uploadmodule

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/lumetube/lume/internal/client"
	"github.com/lumetube/lume/internal/config"
	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/events"
	"github.com/lumetube/lume/internal/logger"
	"github.com/lumetube/lume/internal/modules/modulemanager"
	"github.com/lumetube/lume/internal/modules/uploadmodule/core"
	"github.com/lumetube/lume/internal/modules/uploadmodule/store"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	// ModuleID is the unique identifier for the upload module
	ModuleID = "system.upload"

	// ModuleName is the display name for the upload module
	ModuleName = "Upload Module"
)

// Module implements uploads as a module
type Module struct {
	db       *gorm.DB
	client   *client.Client
	eventBus events.EventBus
	logger   hclog.Logger

	controller *core.Controller
	jobStore   *store.Store
	governor   *core.LoadGovernor
	watcher    *core.Watcher
}

// Register registers the upload module with the module system
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
	logger.Info("Migrating upload database schema")

	if err := db.AutoMigrate(&database.UploadJobRecord{}); err != nil {
		return fmt.Errorf("failed to migrate upload models: %w", err)
	}
	return nil
}

// Init initializes the upload module
func (m *Module) Init() error {
	logger.Info("Initializing upload module")

	cfg := config.Get()

	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.eventBus == nil {
		m.eventBus = events.GetGlobalEventBus()
	}
	if m.logger == nil {
		m.logger = hclog.New(&hclog.LoggerOptions{
			Name:  "lume.upload",
			Level: hclog.Info,
		})
	}
	if m.client == nil {
		m.client = client.New(client.Options{
			BaseURL:        cfg.Backend.BaseURL,
			RequestTimeout: cfg.Backend.RequestTimeout,
			Logger:         m.logger,
		})
	}

	if m.db != nil {
		m.jobStore = store.NewStore(m.logger, m.db)
	}

	var coreStore core.JobStore
	if m.jobStore != nil {
		coreStore = m.jobStore
	}
	m.controller = core.NewController(core.ControllerOptions{
		Transport:     m.client,
		EventBus:      m.eventBus,
		Store:         coreStore,
		CancelTimeout: cfg.Backend.CancelTimeout,
		Logger:        m.logger,
	})
	if err := m.controller.Start(); err != nil {
		return fmt.Errorf("failed to start upload controller: %w", err)
	}

	if cfg.Upload.ThrottleEnabled {
		m.governor = core.NewLoadGovernor(core.GovernorConfig{
			MaxConcurrent: cfg.Upload.MaxConcurrent,
			MaxCPUPercent: cfg.Upload.MaxCPUPercent,
			MaxMemPercent: cfg.Upload.MaxMemPercent,
		}, m.logger)
		m.governor.Start()
	}

	if len(cfg.Upload.WatchDirs) > 0 {
		m.watcher = core.NewWatcher(core.WatcherConfig{
			Directories: cfg.Upload.WatchDirs,
			Visibility:  cfg.Upload.WatchVisibility,
			SettleDelay: cfg.Upload.SettleDelay,
		}, m.controller, m.governor, m.logger)
		if err := m.watcher.Start(); err != nil {
			logger.Warn("Watch folders disabled: %v", err)
			m.watcher = nil
		}
	}

	logger.Info("Upload module initialized")
	return nil
}

// Stop winds down the watcher, governor, and controller subscription
func (m *Module) Stop() error {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.governor != nil {
		m.governor.Stop()
	}
	if m.controller != nil {
		return m.controller.Stop()
	}
	return nil
}

// Controller exposes the upload controller to other modules and the API
func (m *Module) Controller() *core.Controller {
	return m.controller
}

// RegisterRoutes registers HTTP routes for the upload module
func (m *Module) RegisterRoutes(router *gin.Engine) {
	handler := NewAPIHandler(m.controller, m.jobStore, m.logger)
	handler.RegisterRoutes(router)
}
