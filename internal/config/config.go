package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBDSN    string
	HTTPAddr string
	LogLevel string
	RedisDSN string

	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3PublicURL string

	// raw secrets kept in-memory only; never log these
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	BcryptCost  int
	CORSOrigins []string
	SeedVideos  string // optional json fixture file, dev only
}

func Load() (Config, error) {
	cfg := Config{
		DBDSN:              os.Getenv("DB_DSN"),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		RedisDSN:           getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		S3Endpoint:         getenvDefault("S3_ENDPOINT", ""),
		S3Bucket:           getenvDefault("S3_BUCKET", ""),
		S3Region:           getenvDefault("S3_REGION", "auto"),
		S3PublicURL:        getenvDefault("S3_PUBLIC_URL", ""),
		AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		SeedVideos:         os.Getenv("SEED_VIDEOS"),
	}

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		return Config{}, errors.New("missing ACCESS_TOKEN_SECRET / REFRESH_TOKEN_SECRET")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return Config{}, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	var err error
	cfg.AccessTokenTTL, err = parseDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.RefreshTokenTTL, err = parseDurationDefault("REFRESH_TOKEN_TTL", 240*time.Hour)
	if err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return Config{}, errors.New("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}

	// cost is fixed at deploy time; changing it only affects new hashes
	cost := getenvDefault("BCRYPT_COST", "10")
	cfg.BcryptCost, err = strconv.Atoi(cost)
	if err != nil || cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, errors.New("BCRYPT_COST must be an integer between 4 and 31")
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

func parseDurationDefault(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, errors.New(k + " must be a positive duration (e.g. 15m, 240h)")
	}
	return d, nil
}
