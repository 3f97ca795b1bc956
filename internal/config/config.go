package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Local HTTP server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Remote backend configuration
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Push channel configuration
	Push PushConfig `yaml:"push" json:"push"`

	// Backend account credentials
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Database configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Playback configuration
	Playback PlaybackConfig `yaml:"playback" json:"playback"`

	// Upload configuration
	Upload UploadConfig `yaml:"upload" json:"upload"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds local HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"LUME_HOST" default:"127.0.0.1"`
	Port         int           `yaml:"port" json:"port" env:"LUME_PORT" default:"8480"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"LUME_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"LUME_WRITE_TIMEOUT" default:"30s"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"LUME_ENABLE_CORS" default:"true"`
}

// BackendConfig holds remote backend API configuration
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url" env:"LUME_BACKEND_URL" default:"http://localhost:4000"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" env:"LUME_BACKEND_TIMEOUT" default:"30s"`
	UploadTimeout  time.Duration `yaml:"upload_timeout" json:"upload_timeout" env:"LUME_UPLOAD_TIMEOUT" default:"30m"`
	CancelTimeout  time.Duration `yaml:"cancel_timeout" json:"cancel_timeout" env:"LUME_CANCEL_TIMEOUT" default:"5s"`
}

// PushConfig holds push channel configuration
type PushConfig struct {
	URL              string        `yaml:"url" json:"url" env:"LUME_PUSH_URL" default:"ws://localhost:4000/socket"`
	ReconnectMin     time.Duration `yaml:"reconnect_min" json:"reconnect_min" env:"LUME_PUSH_RECONNECT_MIN" default:"1s"`
	ReconnectMax     time.Duration `yaml:"reconnect_max" json:"reconnect_max" env:"LUME_PUSH_RECONNECT_MAX" default:"30s"`
	PingInterval     time.Duration `yaml:"ping_interval" json:"ping_interval" env:"LUME_PUSH_PING_INTERVAL" default:"25s"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout" env:"LUME_PUSH_HANDSHAKE_TIMEOUT" default:"10s"`
}

// AuthConfig holds backend account credentials. The user ID doubles as the
// push channel room name.
type AuthConfig struct {
	APIToken string `yaml:"api_token" json:"-" env:"LUME_API_TOKEN"`
	UserID   string `yaml:"user_id" json:"user_id" env:"LUME_USER_ID"`
}

// DatabaseConfig holds local persistence configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"LUME_DB_TYPE" default:"sqlite"`
	DataDir      string `yaml:"data_dir" json:"data_dir" env:"LUME_DATA_DIR" default:"./lume-data"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"LUME_DATABASE_PATH"`
	Host         string `yaml:"host" json:"host" env:"LUME_PG_HOST" default:"localhost"`
	Port         int    `yaml:"port" json:"port" env:"LUME_PG_PORT" default:"5432"`
	Username     string `yaml:"username" json:"username" env:"LUME_PG_USER" default:"lume"`
	Password     string `yaml:"password" json:"-" env:"LUME_PG_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"LUME_PG_DB" default:"lume"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"LUME_DB_LOG_QUERIES" default:"false"`
}

// PlaybackConfig holds player controller configuration
type PlaybackConfig struct {
	AdaptiveStreaming bool          `yaml:"adaptive_streaming" json:"adaptive_streaming" env:"LUME_ADAPTIVE_STREAMING" default:"true"`
	TickInterval      time.Duration `yaml:"tick_interval" json:"tick_interval" env:"LUME_PLAYBACK_TICK" default:"250ms"`
	HistoryEnabled    bool          `yaml:"history_enabled" json:"history_enabled" env:"LUME_PLAYBACK_HISTORY" default:"true"`
}

// UploadConfig holds upload controller configuration
type UploadConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent" json:"max_concurrent" env:"LUME_UPLOAD_MAX_CONCURRENT" default:"3"`
	WatchDirs       []string      `yaml:"watch_dirs" json:"watch_dirs" env:"LUME_UPLOAD_WATCH_DIRS"`
	WatchVisibility string        `yaml:"watch_visibility" json:"watch_visibility" env:"LUME_UPLOAD_WATCH_VISIBILITY" default:"private"`
	SettleDelay     time.Duration `yaml:"settle_delay" json:"settle_delay" env:"LUME_UPLOAD_SETTLE_DELAY" default:"2s"`
	ThrottleEnabled bool          `yaml:"throttle_enabled" json:"throttle_enabled" env:"LUME_UPLOAD_THROTTLE" default:"true"`
	MaxCPUPercent   float64       `yaml:"max_cpu_percent" json:"max_cpu_percent" env:"LUME_UPLOAD_MAX_CPU" default:"85.0"`
	MaxMemPercent   float64       `yaml:"max_mem_percent" json:"max_mem_percent" env:"LUME_UPLOAD_MAX_MEM" default:"90.0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT" default:"plain"`
}

// ConfigManager manages application configuration
type ConfigManager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: DefaultConfig(),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8480,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   true,
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:4000",
			RequestTimeout: 30 * time.Second,
			UploadTimeout:  30 * time.Minute,
			CancelTimeout:  5 * time.Second,
		},
		Push: PushConfig{
			URL:              "ws://localhost:4000/socket",
			ReconnectMin:     1 * time.Second,
			ReconnectMax:     30 * time.Second,
			PingInterval:     25 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Type:     "sqlite",
			DataDir:  "./lume-data",
			Host:     "localhost",
			Port:     5432,
			Username: "lume",
			Database: "lume",
		},
		Playback: PlaybackConfig{
			AdaptiveStreaming: true,
			TickInterval:      250 * time.Millisecond,
			HistoryEnabled:    true,
		},
		Upload: UploadConfig{
			MaxConcurrent:   3,
			WatchVisibility: "private",
			SettleDelay:     2 * time.Second,
			ThrottleEnabled: true,
			MaxCPUPercent:   85.0,
			MaxMemPercent:   90.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "plain",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	cm.config = newConfig
	return nil
}

// GetConfig returns a copy of the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	configCopy := *cm.config
	return &configCopy
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(value, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(values))
		}
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Backend.BaseURL == "" {
		return fmt.Errorf("backend base URL must not be empty")
	}

	if config.Backend.CancelTimeout <= 0 {
		return fmt.Errorf("invalid cancel timeout: %v", config.Backend.CancelTimeout)
	}

	if config.Upload.MaxConcurrent < 1 {
		return fmt.Errorf("invalid max concurrent uploads: %d", config.Upload.MaxConcurrent)
	}

	if config.Playback.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("playback tick interval too small: %v", config.Playback.TickInterval)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "lume.db")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}
