package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/infra/setup"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DB              setup.DBConfig
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string // Redis Key 前缀
	JWTSecret       string
	JWTExpiryHours  int
	ServerPort      string
	LogLevel        string
	AppEnv          string // development / production
	CORSOrigin      string
	RateLimitMax    int // HTTP 请求每个 IP 每个窗口的上限
	RateLimitWindow time.Duration
	ActionLimitMax  int // 每个用户在每个房间每个窗口的操作上限
	ActionWindow    time.Duration
	MaxHistory      int
	RoomIdleTTL     time.Duration
	IdleRooms       int
	InstanceID      string // 跨实例同步时的本实例标识，为空时随机生成
	SeenWindow      int
	WorkerCount     int
	SnapshotEvery   string // 周期快照检查的 cron 表达式
}

// LoadConfig 从环境变量加载配置，.env 文件存在时先加载它
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DB: setup.DBConfig{
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			Name:     os.Getenv("DB_NAME"),
		},
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         envInt("REDIS_DB", 0),
		KeyPrefix:       envString("REDIS_KEY_PREFIX", "wb:"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTExpiryHours:  envInt("JWT_EXPIRY_HOURS", 24),
		ServerPort:      envString("SERVER_PORT", "8080"),
		LogLevel:        envString("LOG_LEVEL", "info"),
		AppEnv:          envString("APP_ENV", "development"),
		CORSOrigin:      envString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		RateLimitMax:    envInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: time.Second,
		ActionLimitMax:  envInt("ACTION_RATE_LIMIT_MAX", 120),
		ActionWindow:    time.Second,
		MaxHistory:      envInt("MAX_HISTORY", 500),
		RoomIdleTTL:     envDuration("ROOM_IDLE_TTL", 10*time.Minute),
		IdleRooms:       envInt("ROOM_IDLE_MAX", 128),
		InstanceID:      os.Getenv("INSTANCE_ID"),
		SeenWindow:      envInt("SYNC_SEEN_WINDOW", 0),
		WorkerCount:     envInt("WORKER_CONCURRENCY", 10),
		SnapshotEvery:   envString("SNAPSHOT_CHECK_SCHEDULE", "@every 5m"),
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if _, err := cfg.DB.DSN(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt 读取整数，格式错误时记录警告并使用默认值
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("Invalid %s '%s', using default %d", key, v, def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logrus.Warnf("Invalid %s '%s', using default %s", key, v, def)
		return def
	}
	return d
}
