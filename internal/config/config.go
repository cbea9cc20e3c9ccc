package config

import (
	"encoding/base64"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN    string
	HTTPAddr string
	LogLevel string
	RedisDSN string

	// Google OAuth app used to refresh linked-account tokens.
	GoogleClientID     string
	GoogleClientSecret string

	// raw secrets kept in-memory only; never log these
	CronSecret        string
	EncryptionKeysRaw string
	EncryptionKey     []byte // decoded from EncryptionKeysRaw
	CORSOrigins       []string

	// batch driver tuning
	SyncBatchSize       int
	TokenRefreshWindowS int
	GCalQPS             float64

	// optional report archive (S3/R2 compatible)
	ReportsEndpoint  string
	ReportsBucket    string
	ReportsRegion    string
	ReportsAccessKey string
	ReportsSecretKey string
}

func Load() (Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := Config{
		DBDSN:              os.Getenv("DB_DSN"),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		RedisDSN:           getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		CronSecret:         os.Getenv("CRON_SECRET"),
		ReportsEndpoint:    os.Getenv("REPORTS_ENDPOINT"),
		ReportsBucket:      os.Getenv("REPORTS_BUCKET"),
		ReportsRegion:      getenvDefault("REPORTS_REGION", "auto"),
		ReportsAccessKey:   os.Getenv("REPORTS_ACCESS_KEY_ID"),
		ReportsSecretKey:   os.Getenv("REPORTS_SECRET_ACCESS_KEY"),
	}

	cfg.EncryptionKeysRaw = os.Getenv("ENCRYPTION_KEY")

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}

	cfg.SyncBatchSize = getenvInt("SYNC_BATCH_SIZE", 25)
	if cfg.SyncBatchSize < 1 {
		return Config{}, errors.New("SYNC_BATCH_SIZE must be >= 1")
	}

	cfg.TokenRefreshWindowS = getenvInt("TOKEN_REFRESH_WINDOW_SECONDS", 60)
	if cfg.TokenRefreshWindowS < 0 {
		return Config{}, errors.New("TOKEN_REFRESH_WINDOW_SECONDS must be >= 0")
	}

	qps, err := strconv.ParseFloat(getenvDefault("GCAL_QPS", "5"), 64)
	if err != nil || qps <= 0 {
		return Config{}, errors.New("GCAL_QPS must be a positive number")
	}
	cfg.GCalQPS = qps

	// decode encryption key (base64, must be 32 bytes)
	if cfg.EncryptionKeysRaw != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKeysRaw)
		if err != nil {
			return Config{}, errors.New("ENCRYPTION_KEY must be valid base64")
		}
		if len(key) != 32 {
			return Config{}, errors.New("ENCRYPTION_KEY must be 32 bytes (256 bits)")
		}
		cfg.EncryptionKey = key
	}

	// parse CORS origins
	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
