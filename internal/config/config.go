package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Gateway   GatewayConfig `mapstructure:"gateway"`
	Storage   StorageConfig
	Session   SessionConfig `mapstructure:"session"`
	Redis     RedisConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port string
	Mode string
}

// GatewayConfig 上游问卷后端地址
// BackendURL 对应主 API（登录、资料、题目、提交），LegacyURL 对应旧版服务（健康检查、手机号查重、音频题目）
type GatewayConfig struct {
	BackendURL    string        `mapstructure:"backend_url"`
	LegacyURL     string        `mapstructure:"legacy_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LoginFallback bool          `mapstructure:"login_fallback"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
	S3Region      string `mapstructure:"s3_region"`
	S3AccessKey   string `mapstructure:"s3_access_key"`
	S3SecretKey   string `mapstructure:"s3_secret_key"`
	S3Bucket      string `mapstructure:"s3_bucket"`
	MaxUploadMB   int64  `mapstructure:"max_upload_mb"`

	// 上传后使用 ffprobe 校验时长，需要运行环境安装 ffmpeg
	ProbeMedia  bool    `mapstructure:"probe_media"`
	MaxDuration float64 `mapstructure:"max_duration_seconds"`
}

// SessionConfig 终端（scripts/kiosk.go）的会话后端，网关本身无状态
type SessionConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "release")

	v.SetDefault("gateway.backend_url", "https://pulscore.org/api")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.login_fallback", false)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("storage.s3_region", "ap-south-1")
	v.SetDefault("storage.s3_bucket", "puls-webapp-prod")
	v.SetDefault("storage.max_upload_mb", 100)
	v.SetDefault("storage.max_duration_seconds", 32.0)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", 12*time.Hour)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
}

// LoadConfig 从 path 目录读取 config.yaml，环境变量优先
// 配置文件不存在时使用默认值，便于容器内只通过环境变量部署
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PULS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Gateway
	v.BindEnv("gateway.backend_url", "BACKEND_URL")
	v.BindEnv("gateway.legacy_url", "LEGACY_BACKEND_URL")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.s3_region", "AWS_REGION")
	v.BindEnv("storage.s3_access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.s3_secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("storage.s3_bucket", "AWS_S3_BUCKET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Gateway.BackendURL == "" {
		return fmt.Errorf("gateway.backend_url must be set")
	}
	if c.Gateway.LegacyURL == "" {
		c.Gateway.LegacyURL = c.Gateway.BackendURL
	}
	c.Gateway.BackendURL = strings.TrimRight(c.Gateway.BackendURL, "/")
	c.Gateway.LegacyURL = strings.TrimRight(c.Gateway.LegacyURL, "/")

	switch c.Storage.Type {
	case "local", "minio", "oss", "s3":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}

	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session backend %q", c.Session.Backend)
	}

	// 生产环境禁止伪造登录回退
	if c.Server.Mode == "release" && c.Gateway.LoginFallback {
		return fmt.Errorf("gateway.login_fallback cannot be enabled in release mode")
	}
	return nil
}
