package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Secrets (DB password, login password) have no defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppHost     string
	AppPort     string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Shared login secret; PasswordHash (bcrypt) takes precedence when set
	Password     string
	PasswordHash string
	// Media storage
	UploadDir      string
	MaxStorageMB   int
	MaxBodyMB      int
	StorageDriver  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// Token lifecycle and login throttling
	TokenMaxAgeDays     int
	TokenCleanupMinutes int
	LoginRateLimit      int
	LoginRateWindowSec  int
	RateLimitPerMinute  int
	AllowedOrigins      []string
	// Proxies whose X-Forwarded-For is honoured when resolving the client address
	TrustedProxies []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis backs the login limiter when RedisHost is set
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: .env (process env) -> config/config.json -> defaults -> environment variable overrides
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("invalid config/config.json: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.Password == "" && cfg.PasswordHash == "" {
		log.Println("PASSWORD is not set; all logins will fail.")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// MaxStorageBytes is the configured quota in bytes.
func (c AppConfig) MaxStorageBytes() int64 {
	return int64(c.MaxStorageMB) * 1024 * 1024
}

// MaxBodyBytes is the cap applied to non-multipart request bodies.
func (c AppConfig) MaxBodyBytes() int64 {
	return int64(c.MaxBodyMB) * 1024 * 1024
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped JSON config into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getStrings := func(m map[string]any, key string) []string {
		var out []string
		if arr, ok := m[key].([]any); ok {
			for _, it := range arr {
				if s, ok := it.(string); ok {
					out = append(out, s)
				}
			}
		}
		return out
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppHost = getString(app, "Host")
		out.AppPort = getString(app, "Port")
		out.Password = getString(app, "Password")
		out.PasswordHash = getString(app, "PasswordHash")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStrings(app, "AllowedOrigins")
		out.TrustedProxies = getStrings(app, "TrustedProxies")
	}
	if st, ok := raw["storage"].(map[string]any); ok {
		out.UploadDir = getString(st, "UploadDir")
		out.MaxStorageMB = getInt(st, "MaxStorageMB")
		out.MaxBodyMB = getInt(st, "MaxBodyMB")
		out.StorageDriver = getString(st, "Driver")
		out.MinioEndpoint = getString(st, "MinioEndpoint")
		out.MinioAccessKey = getString(st, "MinioAccessKey")
		out.MinioSecretKey = getString(st, "MinioSecretKey")
		out.MinioBucket = getString(st, "MinioBucket")
		out.MinioUseSSL = getBool(st, "MinioUseSSL")
	}
	if au, ok := raw["auth"].(map[string]any); ok {
		out.TokenMaxAgeDays = getInt(au, "TokenMaxAgeDays")
		out.TokenCleanupMinutes = getInt(au, "TokenCleanupMinutes")
		out.LoginRateLimit = getInt(au, "LoginRateLimit")
		out.LoginRateWindowSec = getInt(au, "LoginRateWindowSec")
	}
	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}
	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}
	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}
	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}
	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppHost == "" {
		c.AppHost = "0.0.0.0"
	}
	if c.AppPort == "" {
		c.AppPort = "8000"
	}
	if c.DBHost == "" {
		c.DBHost = "localhost"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "meme_archive"
	}
	if c.UploadDir == "" {
		c.UploadDir = "/data/uploads"
	}
	if c.MaxStorageMB == 0 {
		c.MaxStorageMB = 5000
	}
	if c.MaxBodyMB == 0 {
		c.MaxBodyMB = 10
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "local"
	}
	if c.MinioBucket == "" {
		c.MinioBucket = "memes"
	}
	if c.TokenMaxAgeDays == 0 {
		c.TokenMaxAgeDays = 7
	}
	if c.TokenCleanupMinutes == 0 {
		c.TokenCleanupMinutes = 60
	}
	if c.LoginRateLimit == 0 {
		c.LoginRateLimit = 10
	}
	if c.LoginRateWindowSec == 0 {
		c.LoginRateWindowSec = 60
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 600
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/app.log"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("HOST", ""); v != "" {
		c.AppHost = v
	}
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	// MYSQL_* names win over the generic DB_* ones
	for _, pair := range []struct {
		dst  *string
		keys []string
	}{
		{&c.DBHost, []string{"DB_HOST", "MYSQL_HOST"}},
		{&c.DBPort, []string{"DB_PORT", "MYSQL_PORT"}},
		{&c.DBUser, []string{"DB_USER", "MYSQL_USER"}},
		{&c.DBPassword, []string{"DB_PASSWORD", "MYSQL_PASSWORD"}},
		{&c.DBName, []string{"DB_NAME", "MYSQL_DATABASE"}},
	} {
		for _, k := range pair.keys {
			if v := getEnv(k, ""); v != "" {
				*pair.dst = v
			}
		}
	}
	if v := getEnv("PASSWORD", ""); v != "" {
		c.Password = v
	}
	if v := getEnv("PASSWORD_HASH", ""); v != "" {
		c.PasswordHash = v
	}
	if v := getEnv("UPLOAD_DIR", ""); v != "" {
		c.UploadDir = v
	}
	if v := getEnv("STORAGE_DRIVER", ""); v != "" {
		c.StorageDriver = strings.ToLower(v)
	}
	if v := getEnv("MINIO_ENDPOINT", ""); v != "" {
		c.MinioEndpoint = v
	}
	if v := getEnv("MINIO_ACCESS_KEY", ""); v != "" {
		c.MinioAccessKey = v
	}
	if v := getEnv("MINIO_SECRET_KEY", ""); v != "" {
		c.MinioSecretKey = v
	}
	if v := getEnv("MINIO_BUCKET", ""); v != "" {
		c.MinioBucket = v
	}
	if v := getEnv("MINIO_USE_SSL", ""); v != "" {
		c.MinioUseSSL = parseBool(v)
	}
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := getEnv("TRUSTED_PROXIES", ""); v != "" {
		c.TrustedProxies = splitList(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = parseBool(v)
	}

	for _, pair := range []struct {
		dst *int
		key string
	}{
		{&c.MaxStorageMB, "MAX_STORAGE_MB"},
		{&c.MaxBodyMB, "MAX_BODY_MB"},
		{&c.TokenMaxAgeDays, "TOKEN_MAX_AGE_DAYS"},
		{&c.TokenCleanupMinutes, "TOKEN_CLEANUP_MINUTES"},
		{&c.LoginRateLimit, "LOGIN_RATE_LIMIT"},
		{&c.LoginRateWindowSec, "LOGIN_RATE_WINDOW_SEC"},
		{&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE"},
		{&c.RedisPort, "REDIS_PORT"},
		{&c.RedisDB, "REDIS_DB"},
		{&c.LogMaxSizeMB, "LOG_MAX_SIZE_MB"},
		{&c.LogMaxBackups, "LOG_MAX_BACKUPS"},
		{&c.LogMaxAgeDays, "LOG_MAX_AGE_DAYS"},
	} {
		if v := getEnv(pair.key, ""); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*pair.dst = n
			} else {
				log.Printf("ignoring non-numeric %s=%q", pair.key, v)
			}
		}
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
