// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Backend     string
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// DSN renders the lib/pq keyword connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// StorageConfig holds the S3-compatible object store settings. With only
// AccountID set, the endpoint resolves to Cloudflare R2.
type StorageConfig struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Endpoint      string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	PartSizeMB    int
	UploadThreads int
	SignedURLTTL  time.Duration
}

type QueueConfig struct {
	Backend       string
	Key           string
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type PipelineConfig struct {
	Workers      int
	MaxBytes     int64
	FetchTimeout time.Duration
	UserAgent    string
}

type WorkerConfig struct {
	HealthPort string
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	once     sync.Once
	instance *Config
)

// Load reads configuration from the environment (and .env when present) once per process.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		SetDefaults(v)

		// Read from environment variables
		v.AutomaticEnv()

		instance = FromViper(v)
	})

	return instance
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "fetchvault")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("R2_ACCOUNT_ID", "")
	v.SetDefault("R2_ACCESS_KEY_ID", "")
	v.SetDefault("R2_SECRET_ACCESS_KEY", "")
	v.SetDefault("R2_BUCKET_NAME", "r2c")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_REGION", "auto")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "")
	v.SetDefault("STORAGE_PART_SIZE_MB", 10)
	v.SetDefault("STORAGE_UPLOAD_THREADS", 4)
	v.SetDefault("SIGNED_URL_TTL_SECONDS", 3600)

	v.SetDefault("QUEUE_BACKEND", BackendMemory)
	v.SetDefault("QUEUE_KEY", "fetchvault:downloads:queue")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("PIPELINE_WORKERS", 4)
	v.SetDefault("PIPELINE_MAX_BYTES", 0)
	v.SetDefault("FETCH_TIMEOUT_SECONDS", 0)
	v.SetDefault("FETCH_USER_AGENT", DefaultUserAgent)

	v.SetDefault("WORKER_HEALTH_PORT", "8081")
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	ttl := time.Duration(v.GetInt("SIGNED_URL_TTL_SECONDS")) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	workers := v.GetInt("PIPELINE_WORKERS")
	if workers < 1 {
		workers = 1
	}

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Backend:     strings.ToLower(v.GetString("STORE_BACKEND")),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Storage: StorageConfig{
			AccountID:     v.GetString("R2_ACCOUNT_ID"),
			AccessKey:     v.GetString("R2_ACCESS_KEY_ID"),
			SecretKey:     v.GetString("R2_SECRET_ACCESS_KEY"),
			Bucket:        v.GetString("R2_BUCKET_NAME"),
			Endpoint:      v.GetString("STORAGE_ENDPOINT"),
			Region:        v.GetString("STORAGE_REGION"),
			UseSSL:        v.GetBool("STORAGE_USE_SSL"),
			PublicBaseURL: v.GetString("STORAGE_PUBLIC_BASE_URL"),
			PartSizeMB:    v.GetInt("STORAGE_PART_SIZE_MB"),
			UploadThreads: v.GetInt("STORAGE_UPLOAD_THREADS"),
			SignedURLTTL:  ttl,
		},
		Queue: QueueConfig{
			Backend:       strings.ToLower(v.GetString("QUEUE_BACKEND")),
			Key:           v.GetString("QUEUE_KEY"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
		},
		Pipeline: PipelineConfig{
			Workers:      workers,
			MaxBytes:     v.GetInt64("PIPELINE_MAX_BYTES"),
			FetchTimeout: time.Duration(v.GetInt("FETCH_TIMEOUT_SECONDS")) * time.Second,
			UserAgent:    v.GetString("FETCH_USER_AGENT"),
		},
		Worker: WorkerConfig{
			HealthPort: v.GetString("WORKER_HEALTH_PORT"),
		},
	}
}
