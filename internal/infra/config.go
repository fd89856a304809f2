package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendPostgres   = "postgres"
	BackendRedis      = "redis"
	BackendFilesystem = "filesystem"
	BackendGCS        = "gcs"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	MetadataBackend string
	DatabaseURL     string
	DBMaxConns      int
	RedisURL        string

	BlobBackend    string
	StoragePath    string
	StorageBaseURL string
	GCSBucket      string
	GCloudProject  string
	GCloudKeyFile  string
	StagingDir     string
	MaxUploadBytes int64

	VAPIDSubject    string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushTTL         time.Duration
	NotifyTitle     string
	NotifyContent   string
	NotifyURL       string

	DispatchConcurrency  int
	UploadTimeout        time.Duration
	StoreTimeout         time.Duration
	PushTimeout          time.Duration
	StrictSubscriberRead bool

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "3000")
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 port,
		MetadataBackend:      strings.ToLower(getEnv("METADATA_BACKEND", BackendPostgres)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBMaxConns:           getEnvInt("DB_MAX_CONNS", 10),
		RedisURL:             os.Getenv("REDIS_URL"),
		BlobBackend:          strings.ToLower(getEnv("BLOB_BACKEND", BackendFilesystem)),
		StoragePath:          getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:       strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/v1/blobs"), "/"),
		GCSBucket:            os.Getenv("GCS_BUCKET"),
		GCloudProject:        os.Getenv("GCLOUD_PROJECT"),
		GCloudKeyFile:        os.Getenv("GCLOUD_KEYFILE"),
		StagingDir:           getEnv("STAGING_DIR", os.TempDir()),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		VAPIDSubject:         os.Getenv("VAPID_SUBJECT"),
		VAPIDPublicKey:       os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:      os.Getenv("VAPID_PRIVATE_KEY"),
		PushTTL:              time.Second * time.Duration(getEnvInt("PUSH_TTL_SECONDS", 60)),
		NotifyTitle:          getEnv("NOTIFY_TITLE", "New post"),
		NotifyContent:        getEnv("NOTIFY_CONTENT", "New post added"),
		NotifyURL:            getEnv("NOTIFY_URL", "/help"),
		DispatchConcurrency:  getEnvInt("DISPATCH_CONCURRENCY", 0),
		UploadTimeout:        time.Second * time.Duration(getEnvInt("UPLOAD_TIMEOUT_SECONDS", 60)),
		StoreTimeout:         time.Second * time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 10)),
		PushTimeout:          time.Second * time.Duration(getEnvInt("PUSH_TIMEOUT_SECONDS", 15)),
		StrictSubscriberRead: getEnvBool("STRICT_SUBSCRIBER_READ", false),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.MetadataBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required")
		}
	default:
		return nil, fmt.Errorf("unsupported METADATA_BACKEND %q", cfg.MetadataBackend)
	}

	switch cfg.BlobBackend {
	case BackendFilesystem:
	case BackendGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required")
		}
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}

	if cfg.DispatchConcurrency < 0 {
		cfg.DispatchConcurrency = 0
	}
	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = 1
	}

	return cfg, nil
}

// PushEnabled reports whether VAPID credentials are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
