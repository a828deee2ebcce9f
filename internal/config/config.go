package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	StorageLocal = "local"
	StorageMinIO = "minio"

	EnvDev = "dev"

	// Shipped defaults; only acceptable in a dev environment.
	defaultJWTSecret     = "qingyin_secret"
	defaultAdminPassword = "admin123"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	MySQL    MySQLConfig    `toml:"mysql"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Storage  StorageConfig  `toml:"storage"`
	Upload   UploadConfig   `toml:"upload"`
	Log      LogConfig      `toml:"log"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	JWTExpireHour int    `toml:"jwt_expire_hour"`
	AdminUsername string `toml:"admin_username"`
	AdminPassword string `toml:"admin_password"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
}

type MySQLConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DB       string `toml:"db"`
	Params   string `toml:"params"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig leaves Addr empty to fall back to the in-process cache.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// RabbitMQConfig leaves URL empty to persist moderation events synchronously.
type RabbitMQConfig struct {
	URL             string `toml:"url"`
	ModerationQueue string `toml:"moderation_queue"`
}

type StorageConfig struct {
	Backend        string `toml:"backend"`
	LocalDir       string `toml:"local_dir"`
	MinIOEndpoint  string `toml:"minio_endpoint"`
	MinIOAccessKey string `toml:"minio_access_key"`
	MinIOSecretKey string `toml:"minio_secret_key"`
	MinIOBucket    string `toml:"minio_bucket"`
	MinIOUseSSL    bool   `toml:"minio_use_ssl"`
}

type UploadConfig struct {
	MaxScreenshotBytes int64 `toml:"max_screenshot_bytes"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type SweeperConfig struct {
	IntervalMinute int `toml:"interval_minute"`
	GraceMinute    int `toml:"grace_minute"`
}

func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("DOTENV_FILE", ".env")); err != nil {
		return nil, fmt.Errorf("load dotenv failed: %w", err)
	}

	cfg := Default()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageMinIO:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.App.Env != EnvDev {
		if c.Auth.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("auth.jwt_secret must be changed outside the %s environment", EnvDev)
		}
		if c.Auth.AdminUsername != "" && c.Auth.AdminPassword == defaultAdminPassword {
			return fmt.Errorf("auth.admin_password must be changed outside the %s environment", EnvDev)
		}
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.DB,
		c.MySQL.Params,
	)
}

func (c *Config) JWTExpiration() time.Duration {
	return time.Duration(c.Auth.JWTExpireHour) * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "qingyin-guild",
			Env:     EnvDev,
			Host:    "0.0.0.0",
			Port:    5000,
			GinMode: "debug",
		},
		Auth: AuthConfig{
			JWTSecret:     defaultJWTSecret,
			JWTExpireHour: 7 * 24,
			AdminUsername: "admin",
			AdminPassword: defaultAdminPassword,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
		},
		MySQL: MySQLConfig{
			Host:     "127.0.0.1",
			Port:     3306,
			User:     "root",
			Password: "",
			DB:       "qingyin",
			Params:   "parseTime=true&loc=Local&charset=utf8mb4",
		},
		SQLite: SQLiteConfig{
			Path: "database/qingyin.db",
		},
		Redis: RedisConfig{
			Addr:            "",
			DB:              0,
			CacheTTLSeconds: 60,
		},
		RabbitMQ: RabbitMQConfig{
			URL:             "",
			ModerationQueue: "guild.moderation.events",
		},
		Storage: StorageConfig{
			Backend:     StorageLocal,
			LocalDir:    "data",
			MinIOBucket: "qingyin-attachments",
		},
		Upload: UploadConfig{
			MaxScreenshotBytes: 5 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxAgeDays: 28,
		},
		Sweeper: SweeperConfig{
			IntervalMinute: 60,
			GraceMinute:    60,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireHour = getEnvAsInt("JWT_EXPIRE_HOUR", cfg.Auth.JWTExpireHour)
	cfg.Auth.AdminUsername = getEnv("ADMIN_USERNAME", cfg.Auth.AdminUsername)
	cfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.Auth.AdminPassword)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.MySQL.Host = getEnv("MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.Port = getEnvAsInt("MYSQL_PORT", cfg.MySQL.Port)
	cfg.MySQL.User = getEnv("MYSQL_USER", cfg.MySQL.User)
	cfg.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.DB = getEnv("MYSQL_DB", cfg.MySQL.DB)
	cfg.MySQL.Params = getEnv("MYSQL_PARAMS", cfg.MySQL.Params)
	cfg.SQLite.Path = getEnv("SQLITE_PATH", cfg.SQLite.Path)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.CacheTTLSeconds = getEnvAsInt("REDIS_CACHE_TTL_SECONDS", cfg.Redis.CacheTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.ModerationQueue = getEnv("RABBITMQ_MODERATION_QUEUE", cfg.RabbitMQ.ModerationQueue)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = getEnv("STORAGE_LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.MinIOEndpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.MinIOEndpoint)
	cfg.Storage.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.MinIOAccessKey)
	cfg.Storage.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.MinIOSecretKey)
	cfg.Storage.MinIOBucket = getEnv("MINIO_BUCKET", cfg.Storage.MinIOBucket)
	cfg.Storage.MinIOUseSSL = getEnvAsBool("MINIO_USE_SSL", cfg.Storage.MinIOUseSSL)

	cfg.Upload.MaxScreenshotBytes = int64(getEnvAsInt("UPLOAD_MAX_SCREENSHOT_BYTES", int(cfg.Upload.MaxScreenshotBytes)))

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Sweeper.IntervalMinute = getEnvAsInt("SWEEPER_INTERVAL_MINUTE", cfg.Sweeper.IntervalMinute)
	cfg.Sweeper.GraceMinute = getEnvAsInt("SWEEPER_GRACE_MINUTE", cfg.Sweeper.GraceMinute)
}

// loadDotEnv does not overwrite variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
