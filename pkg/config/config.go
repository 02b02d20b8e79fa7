package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds server configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	StorageBackend string
	DatabaseURL    string
	SQLitePath     string

	// Token balances live in Redis when RedisAddr is set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// The journal relay is disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	Artifacts ArtifactConfig

	EngineParamsFile string
	AdminAccount     string

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string

	OTelEnabled  bool
	OTelEndpoint string
}

// ArtifactConfig selects where dossiers and retirement certificates go.
type ArtifactConfig struct {
	Type       string // fs | s3 | gcs
	Dir        string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
	GCSBucket  string
	GCSPrefix  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:      envOr("PORT", "8080"),
		LogLevel:  strings.ToUpper(envOr("LOG_LEVEL", "INFO")),
		LogFormat: strings.ToLower(envOr("LOG_FORMAT", "text")),

		StorageBackend: strings.ToLower(envOr("STORAGE_BACKEND", BackendMemory)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     envOr("SQLITE_PATH", "data/ecoproof.db"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOr("KAFKA_TOPIC", "ecoproof.journal"),

		Artifacts: ArtifactConfig{
			Type:       strings.ToLower(envOr("ARTIFACT_STORAGE_TYPE", "fs")),
			Dir:        envOr("ARTIFACT_DIR", "data/artifacts"),
			S3Bucket:   os.Getenv("ARTIFACT_S3_BUCKET"),
			S3Region:   envOr("ARTIFACT_S3_REGION", "us-east-1"),
			S3Endpoint: os.Getenv("ARTIFACT_S3_ENDPOINT"),
			S3Prefix:   os.Getenv("ARTIFACT_S3_PREFIX"),
			GCSBucket:  os.Getenv("ARTIFACT_GCS_BUCKET"),
			GCSPrefix:  os.Getenv("ARTIFACT_GCS_PREFIX"),
		},

		EngineParamsFile: os.Getenv("ENGINE_PARAMS_FILE"),
		AdminAccount:     os.Getenv("ADMIN_ACCOUNT"),

		JWTSecret:      os.Getenv("JWT_HMAC_SECRET"),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 40),
		CORSOrigins:    splitList(os.Getenv("CORS_ORIGINS")),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: envOr("OTEL_ENDPOINT", "localhost:4317"),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}
	switch c.Artifacts.Type {
	case "fs":
	case "s3":
		if c.Artifacts.S3Bucket == "" {
			return fmt.Errorf("config: ARTIFACT_S3_BUCKET is required for s3 artifact storage")
		}
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("config: ARTIFACT_GCS_BUCKET is required for gcs artifact storage")
		}
	default:
		return fmt.Errorf("config: unknown ARTIFACT_STORAGE_TYPE %q", c.Artifacts.Type)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limits must not be negative")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
