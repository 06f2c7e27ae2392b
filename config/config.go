package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds both the chat client settings and the dev relay settings.
// Environment variables win over the optional .env file.
type Config struct {
	AppMode string
	Client  ClientConfig
	Relay   RelayConfig
	Redis   RedisConfig
	S3      S3Config
}

type ClientConfig struct {
	APIBaseURL         string
	WSURL              string
	AuthToken          string
	RequestTimeout     time.Duration
	FallbackWindow     time.Duration
	IndicatorDecay     time.Duration
	UnreadPollInterval time.Duration
	MaxVideoDuration   time.Duration
	KeepaliveInterval  time.Duration
}

type RelayConfig struct {
	Port      string
	PublicURL string
	JWTSecret string
	TokenTTL  time.Duration
	RPS       int
	Burst     int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppMode: getEnv("APP_MODE", "development"),
		Client: ClientConfig{
			APIBaseURL:         getEnv("API_BASE_URL", "http://localhost:8080"),
			WSURL:              getEnv("WS_URL", "ws://localhost:8080/ws"),
			AuthToken:          getEnv("AUTH_TOKEN", ""),
			RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
			FallbackWindow:     getEnvAsDuration("FALLBACK_WINDOW", 3*time.Second),
			IndicatorDecay:     getEnvAsDuration("INDICATOR_DECAY", 3*time.Second),
			UnreadPollInterval: getEnvAsDuration("UNREAD_POLL_INTERVAL", 30*time.Second),
			MaxVideoDuration:   getEnvAsDuration("MAX_VIDEO_DURATION", 120*time.Second),
			KeepaliveInterval:  getEnvAsDuration("KEEPALIVE_INTERVAL", 25*time.Second),
		},
		Relay: RelayConfig{
			Port:      getEnv("RELAY_PORT", "8080"),
			PublicURL: getEnv("RELAY_PUBLIC_URL", "http://localhost:8080"),
			JWTSecret: getEnv("JWT_SECRET", "change-me"),
			TokenTTL:  getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
			RPS:       getEnvAsInt("RELAY_RPS", 20),
			Burst:     getEnvAsInt("RELAY_BURST", 40),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		S3: S3Config{
			Region:     getEnv("S3_REGION", ""),
			Bucket:     getEnv("S3_BUCKET", ""),
			AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			SecretKey:  getEnv("S3_SECRET_KEY", ""),
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings ("3s", "2m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return fallback
}
