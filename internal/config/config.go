package config

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	PublicBaseURL   string
}

type BlobStoreConfig struct {
	Backend string // "http" or "r2"
	URL     string
	APIKey  string
	Timeout time.Duration
	Retries int
}

type UploadConfig struct {
	ChunkSize         int64
	MaxUploadSize     int64
	Wait              time.Duration
	PollInterval      time.Duration
	DefaultTTLDays    float64
	MaxTTLDays        float64
	MinRetention      time.Duration
	FallbackRetention time.Duration
}

type HubConfig struct {
	PollInterval time.Duration
	Grace        time.Duration
}

type RateLimitConfig struct {
	Limit float64
	Burst int
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string
}

type Config struct {
	DB_URL        string
	Port          string
	JWTSecret     string
	Environment   string
	LogLevel      string
	PublicURL     string
	SweepSchedule string
	CorsConfig    cors.Options
	R2            R2Config
	BlobStore     BlobStoreConfig
	Upload        UploadConfig
	Hub           HubConfig
	RateLimit     RateLimitConfig
}

var Envs = initConfig()

func initConfig() Config {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No", envFile, "file found")
	}

	return Config{
		DB_URL:        getEnv("DB_URL", ""),
		Port:          getEnv("PORT", "8080"),
		JWTSecret:     getEnv("JWT_SECRET", "not-so-secret-now-is-it?"),
		Environment:   getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicURL:     strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:5173"), "/"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 1h"),
		CorsConfig:    CorsConfig(),
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Region:          getEnv("R2_REGION", "auto"),
			PublicBaseURL:   getEnv("R2_PUBLIC_BASE_URL", ""),
		},
		BlobStore: BlobStoreConfig{
			Backend: getEnv("BLOB_BACKEND", "http"),
			URL:     strings.TrimRight(getEnv("BLOB_STORE_URL", "http://localhost:9000"), "/"),
			APIKey:  getEnv("BLOB_STORE_API_KEY", ""),
			Timeout: getDuration("BLOB_STORE_TIMEOUT", 30*time.Second),
			Retries: getInt("BLOB_STORE_RETRIES", 3),
		},
		Upload: UploadConfig{
			ChunkSize:         getRAMSize("CHUNK_SIZE", 512*units.KiB),
			MaxUploadSize:     getHumanSize("MAX_UPLOAD_SIZE", 50*units.MB),
			Wait:              getDuration("UPLOAD_WAIT", 30*time.Second),
			PollInterval:      getDuration("UPLOAD_POLL_INTERVAL", time.Second),
			DefaultTTLDays:    getFloat("DEFAULT_TTL_DAYS", 7),
			MaxTTLDays:        getFloat("MAX_TTL_DAYS", 30),
			MinRetention:      getDuration("MIN_RETENTION", time.Minute),
			FallbackRetention: getDuration("FALLBACK_RETENTION", 7*24*time.Hour),
		},
		Hub: HubConfig{
			PollInterval: getDuration("HUB_POLL_INTERVAL", time.Second),
			Grace:        getDuration("HUB_GRACE", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Limit: getFloat("RATE_LIMIT", 10),
			Burst: getInt("RATE_BURST", 20),

			TrustedProxies: getList("TRUSTED_PROXIES"),
		},
	}
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getList splits a comma separated variable, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Invalid duration for %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		log.Printf("Invalid number for %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return v
}

// getRAMSize parses binary sizes such as "512KiB" or "1m".
func getRAMSize(key string, fallback int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := units.RAMInBytes(raw)
	if err != nil || v <= 0 {
		log.Printf("Invalid size for %s=%q, using %s", key, raw, units.BytesSize(float64(fallback)))
		return fallback
	}
	return v
}

// getHumanSize parses decimal sizes such as "50MB".
func getHumanSize(key string, fallback int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := units.FromHumanSize(raw)
	if err != nil || v <= 0 {
		log.Printf("Invalid size for %s=%q, using %s", key, raw, units.HumanSize(float64(fallback)))
		return fallback
	}
	return v
}

func CorsConfig() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://clipdrop.vercel.app"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
}
