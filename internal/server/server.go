// Package server assembles the engine: event bus, backend client, push
// channel, module system, and the local HTTP API.
package server

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/lumetube/lume/internal/client"
	"github.com/lumetube/lume/internal/config"
	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/events"
	"github.com/lumetube/lume/internal/logger"
	"github.com/lumetube/lume/internal/middleware"
	"github.com/lumetube/lume/internal/modules/modulemanager"
	"github.com/lumetube/lume/internal/modules/playbackmodule"
	"github.com/lumetube/lume/internal/modules/uploadmodule"
	"github.com/lumetube/lume/internal/push"
)

// Global instances
var (
	systemEventBus events.EventBus
	backendClient  *client.Client
	pushChannel    *push.Channel
)

var moduleInitialized bool
var disabledModules = make(map[string]bool)

// SetupRouter configures and returns the main router
func SetupRouter() *gin.Engine {
	r := gin.Default()

	cfg := config.Get()

	if cfg.Server.EnableCORS {
		r.Use(corsMiddleware())
	}
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorLogger())

	// Initialize event bus system
	if err := initializeEventBus(); err != nil {
		log.Printf("Failed to initialize event bus: %v", err)
	}

	// Connect to the backend before modules come up so they can share the
	// client and receive push events.
	initializeBackend()

	// Initialize module system
	if err := initializeModules(); err != nil {
		log.Printf("Failed to initialize modules: %v", err)
	}

	setupRoutes(r)

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// DisableModule disables a specific module (for development/testing only)
func DisableModule(moduleID string) {
	if moduleInitialized {
		logger.Warn("Attempting to disable module %s after modules have been initialized", moduleID)
		return
	}

	disabledModules[moduleID] = true
	modulemanager.DisableModule(moduleID)
	logger.Info("Module disabled for development: %s", moduleID)
}

// initializeModules sets up the module system and loads all modules
func initializeModules() error {
	if moduleInitialized {
		return nil
	}

	db := database.GetDB()

	// Register the event bus globally so modules can access it
	events.SetGlobalEventBus(systemEventBus)

	// Hand the shared backend client to the modules that talk upstream.
	for _, module := range modulemanager.ListModules() {
		switch m := module.(type) {
		case *playbackmodule.Module:
			m.SetClient(backendClient)
		case *uploadmodule.Module:
			m.SetClient(backendClient)
		}
	}

	if err := modulemanager.LoadAll(db); err != nil {
		return err
	}

	moduleInitialized = true
	logModuleStatus()

	return nil
}

// initializeBackend creates the shared backend client and opens the push
// channel. The engine stays usable without a live backend connection; the
// channel keeps reconnecting in the background.
func initializeBackend() {
	cfg := config.Get()

	hcl := hclog.New(&hclog.LoggerOptions{
		Name:  "lume",
		Level: hclog.LevelFromString(cfg.Logging.Level),
	})

	var tokens client.TokenProvider
	if cfg.Auth.APIToken != "" {
		tokens = client.StaticToken(cfg.Auth.APIToken)
	}
	backendClient = client.New(client.Options{
		BaseURL:        cfg.Backend.BaseURL,
		Tokens:         tokens,
		RequestTimeout: cfg.Backend.RequestTimeout,
		Logger:         hcl,
	})

	if cfg.Push.URL == "" || cfg.Auth.UserID == "" {
		log.Printf("Push channel disabled: no URL or user id configured")
		return
	}

	pushChannel = push.NewChannel(push.Config{
		URL:              cfg.Push.URL,
		UserID:           cfg.Auth.UserID,
		HandshakeTimeout: cfg.Push.HandshakeTimeout,
		PingInterval:     cfg.Push.PingInterval,
		ReconnectMin:     cfg.Push.ReconnectMin,
		ReconnectMax:     cfg.Push.ReconnectMax,
	}, systemEventBus, hcl)
	if err := pushChannel.Start(context.Background()); err != nil {
		log.Printf("Failed to start push channel: %v", err)
		pushChannel = nil
	}
}

// logModuleStatus logs the loaded modules
func logModuleStatus() {
	modules := modulemanager.ListModules()

	log.Printf("✅ Module system initialized with %d modules", len(modules))

	log.Printf("┌────────────────────────────────────────────────────────────────┐")
	log.Printf("│ %-20s │ %-25s │ %-8s │", "MODULE NAME", "MODULE ID", "CORE")
	log.Printf("├────────────────────────────────────────────────────────────────┤")

	for _, module := range modules {
		coreStatus := "No"
		if module.Core() {
			coreStatus = "Yes"
		}
		log.Printf("│ %-20s │ %-25s │ %-8s │",
			truncate(module.Name(), 20),
			truncate(module.ID(), 25),
			coreStatus)
	}

	log.Printf("└────────────────────────────────────────────────────────────────┘")
}

// truncate shortens a string to the given length, adding ... if needed
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// initializeEventBus sets up the system-wide event bus
func initializeEventBus() error {
	busConfig := events.DefaultEventBusConfig()

	cfg := config.Get()
	busLogger := hclog.New(&hclog.LoggerOptions{
		Name:  "lume.events",
		Level: hclog.LevelFromString(cfg.Logging.Level),
	})

	systemEventBus = events.NewEventBus(busConfig, busLogger)

	ctx := context.Background()
	if err := systemEventBus.Start(ctx); err != nil {
		log.Printf("Failed to start event bus: %v", err)
		return err
	}

	log.Println("✅ System event bus initialized and started")
	return nil
}

// GetEventBus returns the system event bus instance
func GetEventBus() events.EventBus {
	return systemEventBus
}

// GetBackendClient returns the shared backend client
func GetBackendClient() *client.Client {
	return backendClient
}

// ShutdownPushChannel closes the push channel connection
func ShutdownPushChannel() error {
	if pushChannel == nil {
		return nil
	}
	log.Println("INFO: Shutting down push channel...")
	return pushChannel.Close()
}

// ShutdownModules stops all loaded modules in reverse order
func ShutdownModules() {
	log.Println("INFO: Shutting down modules...")
	modulemanager.StopAll()
}

// ShutdownEventBus gracefully shuts down the event bus
func ShutdownEventBus() error {
	if systemEventBus == nil {
		return nil
	}
	log.Println("INFO: Shutting down event bus...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return systemEventBus.Stop(ctx)
}
