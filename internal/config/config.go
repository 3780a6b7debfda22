package config

import (
	"path/filepath"
	"time"
)

// Config is the resolved service configuration.
type Config struct {
	Port    string
	GinMode string
	DataDir string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	Database DatabaseConfig

	MaxUploadBytes int64
	MaxPixels      int
	MaxDimension   int

	RateLimitPerMinute int
	RateLimitBurst     int

	LinkSigningSecret string
	LinkTTL           time.Duration
	ResultRetention   time.Duration
	CleanupInterval   time.Duration

	FetchTimeout    time.Duration
	BlockPrivateIPs bool
	BlockedDomains  []string

	PresetsFile string
	CORSOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string // "sqlite" or "postgres"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // SQLite file
}

// Load reads the configuration from the environment.
func Load() Config {
	dataDir := Get("DATA_DIR", "./data")
	return Config{
		Port:    Get("PORT", "8000"),
		GinMode: Get("GIN_MODE", ""),
		DataDir: dataDir,

		LogLevel:      Get("LOG_LEVEL", "INFO"),
		LogFormat:     Get("LOG_FORMAT", "text"),
		LogFile:       Get("LOG_FILE", ""),
		LogMaxSizeMB:  GetInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: GetInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: GetInt("LOG_MAX_AGE_DAYS", 28),

		Database: DatabaseConfig{
			Type:     Get("DB_TYPE", "sqlite"),
			Host:     Get("DB_HOST", "localhost"),
			Port:     GetInt("DB_PORT", 5432),
			User:     Get("DB_USER", "ditherbox"),
			Password: Get("DB_PASSWORD", ""),
			DBName:   Get("DB_NAME", "ditherbox"),
			SSLMode:  Get("DB_SSLMODE", "disable"),
			Path:     Get("DB_PATH", filepath.Join(dataDir, "ditherbox.db")),
		},

		MaxUploadBytes: int64(GetInt("MAX_UPLOAD_MB", 20)) << 20,
		MaxPixels:      GetInt("MAX_PIXELS", 40_000_000),
		MaxDimension:   GetInt("MAX_DIMENSION", 0),

		RateLimitPerMinute: GetInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     GetInt("RATE_LIMIT_BURST", 10),

		LinkSigningSecret: Get("LINK_SIGNING_SECRET", ""),
		LinkTTL:           GetDuration("LINK_TTL", 24*time.Hour),
		ResultRetention:   GetDuration("RESULT_RETENTION", 7*24*time.Hour),
		CleanupInterval:   GetDuration("CLEANUP_INTERVAL", time.Hour),

		FetchTimeout:    GetDuration("FETCH_TIMEOUT", 30*time.Second),
		BlockPrivateIPs: GetBool("BLOCK_PRIVATE_IPS", true),
		BlockedDomains:  GetList("BLOCKED_DOMAINS", nil),

		PresetsFile: Get("PRESETS_FILE", ""),
		CORSOrigins: GetList("CORS_ALLOWED_ORIGINS", nil),
	}
}
