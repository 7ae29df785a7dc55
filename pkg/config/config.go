package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 支持的存储后端
const (
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSupabase = "supabase"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 存储配置
	StorageBackend string
	DataDir        string
	BadgerDir      string
	KeyPrefix      string
	PostgresDSN    string
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	SupabaseURL    string
	SupabaseKey    string

	// RemoteSync 为 true 时，NGO/捐赠/志愿者记录同步到 Supabase 远程数据服务
	RemoteSync bool

	// JWT配置
	JWTSecret string

	// 管理员账户（启动时写入凭据集合）
	AdminEmail    string
	AdminPassword string

	// 告警阈值
	LowStockThreshold int
	ExpiryWindow      time.Duration

	// CORS配置
	AllowedOrigins []string

	// 日志与调试
	LogLevel string
	Debug    bool
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// godotenv.Load never overrides variables that are already set
	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}

	config := &Config{
		Environment:       getEnvWithDefault("ENVIRONMENT", "development"),
		Port:              getEnvWithDefault("PORT", "3000"),
		StorageBackend:    strings.ToLower(getEnvWithDefault("STORAGE_BACKEND", BackendFile)),
		DataDir:           getEnvWithDefault("DATA_DIR", "./data"),
		KeyPrefix:         getEnvWithDefault("KEY_PREFIX", "sevaconnect"),
		RedisAddress:      getEnvWithDefault("REDIS_ADDRESS", "localhost:6379"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RemoteSync:        getEnvBool("REMOTE_SYNC", false),
		JWTSecret:         getEnvWithDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		LowStockThreshold: getEnvInt("LOW_STOCK_THRESHOLD", 5),
		ExpiryWindow:      time.Duration(getEnvInt("EXPIRY_WINDOW_DAYS", 7)) * 24 * time.Hour,
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		Debug:             getEnvBool("DEBUG", false),
	}
	config.BadgerDir = getEnvWithDefault("BADGER_DIR", config.DataDir+"/badger")

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.RedisPassword = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	config.SupabaseURL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY"))
	config.AdminEmail = strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	config.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		for _, origin := range strings.Split(allowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, origin)
			}
		}
	}

	if config.IsProduction() {
		// 生产环境关闭调试
		config.Debug = false
	}
	if config.Debug {
		config.LogLevel = "debug"
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == "your-secret-key-change-in-production" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	if c.LowStockThreshold <= 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must be positive")
	}
	if c.ExpiryWindow < 0 {
		return fmt.Errorf("EXPIRY_WINDOW_DAYS must not be negative")
	}

	switch c.StorageBackend {
	case BackendFile:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for the file backend")
		}
	case BackendBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("BADGER_DIR is required for the badger backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required for the redis backend")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.RemoteSync && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("REMOTE_SYNC requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}
