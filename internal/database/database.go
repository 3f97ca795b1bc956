// Package database provides the local persistence layer used for upload-job
// records and playback-session history.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lumetube/lume/internal/config"
	"github.com/lumetube/lume/internal/logger"
)

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// Initialize sets up the database connection from the loaded configuration.
func Initialize() error {
	cfg := config.Get().Database

	var (
		conn *gorm.DB
		err  error
	)

	logMode := gormlogger.Silent
	if cfg.LogQueries {
		logMode = gormlogger.Info
	}
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(logMode)}

	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)
		conn, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		if mkErr := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); mkErr != nil {
			return fmt.Errorf("failed to create data directory: %w", mkErr)
		}
		conn, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormCfg)
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	dbMu.Lock()
	db = conn
	dbMu.Unlock()

	logger.Info("Database initialized", "type", cfg.Type)
	return nil
}

// GetDB returns the database instance, or nil before Initialize.
func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// SetDB overrides the database instance. Used by tests.
func SetDB(conn *gorm.DB) {
	dbMu.Lock()
	defer dbMu.Unlock()
	db = conn
}
