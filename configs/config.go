package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	// Endpoint overrides the Cloudflare endpoint derived from AccountID,
	// e.g. a local MinIO during development.
	Endpoint string
}

type Twitter struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	TokenURL     string
}

type Media struct {
	LeaseTimeout  time.Duration
	PollInterval  time.Duration
	Concurrency   int
	MaxAttempts   int
	FFmpegBinary  string
	FFprobeBinary string
	FFmpegThreads int
}

type Config struct {
	PostgresURI            string
	RedisURI               string
	FrontendURL            string
	ServerAddr             string
	R2                     R2
	LocalStoragePath       string
	Twitter                Twitter
	Media                  Media
	PlatformRequestTimeout time.Duration
	TokenExpirySkew        time.Duration
	SecretKey              string
	CookieName             string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		ServerAddr:  getEnv("SERVER_ADDR", ":3000"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			Endpoint:   getEnv("R2_ENDPOINT", ""),
		},
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", ""),
		Twitter: Twitter{
			ClientID:     getEnv("TWITTER_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
			APIURL:       getEnv("TWITTER_API_URL", "https://api.x.com"),
			TokenURL:     getEnv("TWITTER_TOKEN_URL", "https://api.x.com/2/oauth2/token"),
		},
		Media: Media{
			LeaseTimeout:  getEnvDuration("MEDIA_LEASE_TIMEOUT", 15*time.Minute),
			PollInterval:  getEnvDuration("MEDIA_POLL_INTERVAL", 5*time.Second),
			Concurrency:   getEnvInt("MEDIA_CONCURRENCY", 12),
			MaxAttempts:   getEnvInt("MEDIA_MAX_ATTEMPTS", 5),
			FFmpegBinary:  getEnv("FFMPEG_BINARY", "ffmpeg"),
			FFprobeBinary: getEnv("FFPROBE_BINARY", "ffprobe"),
			FFmpegThreads: getEnvInt("FFMPEG_THREADS", 1),
		},
		PlatformRequestTimeout: getEnvDuration("PLATFORM_REQUEST_TIMEOUT", 60*time.Second),
		TokenExpirySkew:        getEnvDuration("TOKEN_EXPIRY_SKEW", 30*time.Second),
		SecretKey:              getEnv("SECRET_KEY", ""),
		CookieName:             getEnv("COOKIE_NAME", "screenpost_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go duration strings ("15m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return defaultValue
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
