package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumetube/lume/internal/config"
	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/server"

	// Force module inclusion by importing directly in main
	_ "github.com/lumetube/lume/internal/modules/playbackmodule"
	_ "github.com/lumetube/lume/internal/modules/uploadmodule"
)

func main() {
	fmt.Println("=======================================")
	fmt.Println("   Lume Engine - Streaming & Uploads   ")
	fmt.Println("=======================================")

	// Initialize configuration system first
	configPath := os.Getenv("LUME_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./lume.yaml"); err == nil {
			configPath = "./lume.yaml"
		}
	}

	if err := config.Load(configPath); err != nil {
		log.Printf("⚠️  Warning: Failed to load configuration from %s: %v", configPath, err)
		log.Printf("Using default configuration")
	} else if configPath != "" {
		log.Printf("✅ Configuration loaded from: %s", configPath)
	} else {
		log.Printf("✅ Using default configuration")
	}

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Setup router with modules, event bus, and push channel
	r := server.SetupRouter()

	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\nShutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		if err := server.ShutdownPushChannel(); err != nil {
			log.Printf("Push channel shutdown error: %v", err)
		}

		server.ShutdownModules()

		if err := server.ShutdownEventBus(); err != nil {
			log.Printf("Event bus shutdown error: %v", err)
		}

		cancel()
	}()

	log.Printf("🚀 Starting Lume engine on %s:%d", cfg.Server.Host, cfg.Server.Port)
	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}

	<-ctx.Done()
	log.Println("Server shutdown complete")
}
