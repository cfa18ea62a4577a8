package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AuthTypeNone        = "none"
	AuthTypeServiceHTTP = "service_http"

	StorageDriverSupabase   = "supabase"
	StorageDriverFilesystem = "filesystem"
	StorageDriverGCS        = "gcs"
	StorageDriverS3         = "s3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	GoAPI    GoAPIConfig    `yaml:"goapi"`
	Youchuan YouchuanConfig `yaml:"youchuan"`
	Storage  StorageConfig  `yaml:"storage"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Proxy    ProxyConfig    `yaml:"proxy"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Environment     string        `yaml:"environment"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	// Type is "none" or "service_http".
	Type        string `yaml:"type"`
	BearerToken string `yaml:"bearer_token"`
	JWTSecret   string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// RedisConfig enables the Redis progress bus when URL is set.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// PollConfig bounds how long a job may stay pending and how often it is polled.
type PollConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

type GoAPIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	ProcessMode    string        `yaml:"process_mode"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
	Poll           PollConfig    `yaml:"poll"`
}

type YouchuanConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AppID          string        `yaml:"app_id"`
	Secret         string        `yaml:"secret"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"`
	Poll           PollConfig    `yaml:"poll"`
}

type StorageConfig struct {
	Driver     string           `yaml:"driver"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	GCS        GCSConfig        `yaml:"gcs"`
	S3         S3Config         `yaml:"s3"`
}

type SupabaseConfig struct {
	URL    string `yaml:"url"`
	Key    string `yaml:"key"`
	Bucket string `yaml:"bucket"`
}

type FilesystemConfig struct {
	BasePath  string `yaml:"base_path"`
	PublicURL string `yaml:"public_url"`
}

type GCSConfig struct {
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"public_url"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicURL       string `yaml:"public_url"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

type ArtifactConfig struct {
	KeyPrefix       string        `yaml:"key_prefix"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

type ProxyConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Exclude []string `yaml:"exclude"`
}

// Default returns the built-in configuration used before the YAML file and
// environment are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "3000",
			Environment:     "development",
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{Type: AuthTypeNone},
		Log:  LogConfig{Level: "info", Format: "json"},
		Redis: RedisConfig{
			Prefix: "monkeys:",
		},
		GoAPI: GoAPIConfig{
			BaseURL:        "https://api.midjourneyapi.xyz",
			ProcessMode:    "relax",
			RequestTimeout: 30 * time.Second,
			Poll: PollConfig{
				Timeout:  10 * time.Minute,
				Interval: 500 * time.Millisecond,
			},
		},
		Youchuan: YouchuanConfig{
			BaseURL:        "https://ali.youchuan.cn",
			RequestTimeout: 30 * time.Second,
			Poll: PollConfig{
				Timeout:  10 * time.Minute,
				Interval: 3 * time.Second,
			},
		},
		Storage: StorageConfig{
			Driver: StorageDriverSupabase,
			Supabase: SupabaseConfig{
				Bucket: "workflow-artifacts",
			},
			Filesystem: FilesystemConfig{
				BasePath:  "tmp-files",
				PublicURL: "http://localhost:3000/static",
			},
		},
		Artifact: ArtifactConfig{
			KeyPrefix:       "workflow/artifact",
			DownloadTimeout: 60 * time.Second,
		},
	}
}

// Load reads defaults, then the YAML file named by CONFIG_FILE (or
// ./config.yaml when present), then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := getEnv("CONFIG_FILE", "")
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile merges a YAML file into c. Keys missing from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)

	c.Auth.Type = getEnv("AUTH_TYPE", c.Auth.Type)
	c.Auth.BearerToken = getEnv("AUTH_BEARER_TOKEN", c.Auth.BearerToken)
	c.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", c.Auth.JWTSecret)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)

	c.GoAPI.BaseURL = getEnv("GOAPI_BASE_URL", c.GoAPI.BaseURL)
	c.GoAPI.APIKey = getEnv("GOAPI_KEY", c.GoAPI.APIKey)
	c.GoAPI.Poll.Timeout = getEnvDuration("GOAPI_TIMEOUT", c.GoAPI.Poll.Timeout)
	c.GoAPI.Poll.Interval = getEnvDuration("GOAPI_POLL_INTERVAL", c.GoAPI.Poll.Interval)

	c.Youchuan.BaseURL = getEnv("YOUCHUAN_BASE_URL", c.Youchuan.BaseURL)
	c.Youchuan.AppID = getEnv("YOUCHUAN_APP_ID", c.Youchuan.AppID)
	c.Youchuan.Secret = getEnv("YOUCHUAN_SECRET", c.Youchuan.Secret)
	c.Youchuan.Poll.Timeout = getEnvDuration("YOUCHUAN_TIMEOUT", c.Youchuan.Poll.Timeout)
	c.Youchuan.Poll.Interval = getEnvDuration("YOUCHUAN_POLL_INTERVAL", c.Youchuan.Poll.Interval)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Supabase.URL = getEnv("SUPABASE_URL", c.Storage.Supabase.URL)
	c.Storage.Supabase.Key = getEnv("SUPABASE_SERVICE_KEY", c.Storage.Supabase.Key)
	c.Storage.Supabase.Bucket = getEnv("SUPABASE_STORAGE_BUCKET", c.Storage.Supabase.Bucket)
	c.Storage.Filesystem.BasePath = getEnv("STORAGE_BASE_PATH", c.Storage.Filesystem.BasePath)
	c.Storage.Filesystem.PublicURL = getEnv("STORAGE_PUBLIC_URL", c.Storage.Filesystem.PublicURL)
	c.Storage.GCS.Bucket = getEnv("GCS_BUCKET_NAME", c.Storage.GCS.Bucket)
	c.Storage.GCS.PublicURL = getEnv("GCS_PUBLIC_URL", c.Storage.GCS.PublicURL)
	c.Storage.S3.Endpoint = getEnv("S3_ENDPOINT", c.Storage.S3.Endpoint)
	c.Storage.S3.Region = getEnv("S3_REGION", c.Storage.S3.Region)
	c.Storage.S3.Bucket = getEnv("S3_BUCKET", c.Storage.S3.Bucket)
	c.Storage.S3.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", c.Storage.S3.AccessKeyID)
	c.Storage.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", c.Storage.S3.SecretAccessKey)
	c.Storage.S3.PublicURL = getEnv("S3_PUBLIC_URL", c.Storage.S3.PublicURL)
	c.Storage.S3.ForcePathStyle = getEnvBool("S3_FORCE_PATH_STYLE", c.Storage.S3.ForcePathStyle)

	c.Artifact.KeyPrefix = getEnv("ARTIFACT_KEY_PREFIX", c.Artifact.KeyPrefix)

	c.Proxy.Enabled = getEnvBool("PROXY_ENABLED", c.Proxy.Enabled)
	c.Proxy.URL = getEnv("PROXY_URL", c.Proxy.URL)
	if v := getEnv("PROXY_EXCLUDE", ""); v != "" {
		c.Proxy.Exclude = strings.Split(v, ",")
	}
}

func (c *Config) Validate() error {
	switch c.Auth.Type {
	case AuthTypeNone:
	case AuthTypeServiceHTTP:
		if c.Auth.BearerToken == "" && c.Auth.JWTSecret == "" {
			return errors.New("auth.bearer_token or auth.jwt_secret is required when auth.type is service_http")
		}
	default:
		return fmt.Errorf("unsupported auth.type %q", c.Auth.Type)
	}

	switch c.Storage.Driver {
	case StorageDriverSupabase:
		if c.Storage.Supabase.URL == "" || c.Storage.Supabase.Key == "" {
			return errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase storage driver")
		}
	case StorageDriverFilesystem:
		if c.Storage.Filesystem.BasePath == "" {
			return errors.New("storage.filesystem.base_path is required")
		}
	case StorageDriverGCS:
		if c.Storage.GCS.Bucket == "" {
			return errors.New("GCS_BUCKET_NAME is required for the gcs storage driver")
		}
	case StorageDriverS3:
		s3 := c.Storage.S3
		if s3.Endpoint == "" || s3.Region == "" || s3.Bucket == "" || s3.AccessKeyID == "" || s3.SecretAccessKey == "" {
			return errors.New("storage.s3 endpoint, region, bucket, access_key_id and secret_access_key are required for the s3 storage driver")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}

	if c.Proxy.Enabled && c.Proxy.URL == "" {
		return errors.New("proxy enabled but no url provided")
	}

	for name, p := range map[string]PollConfig{"goapi": c.GoAPI.Poll, "youchuan": c.Youchuan.Poll} {
		if p.Timeout <= 0 || p.Interval <= 0 {
			return fmt.Errorf("%s.poll timeout and interval must be positive", name)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain milliseconds ("1500").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
