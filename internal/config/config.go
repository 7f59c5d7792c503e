package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Env          string
	ListenAddr   string
	LogLevel     string
	DatabaseURL  string
	StorageDir   string
	PreferLocal  bool
	CatalogPath  string
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	MaxRedirects int
	ScanWorkers  int
	MaxBodyBytes int64
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:          getenv("APP_ENV", "development"),
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StorageDir:   getenv("STORAGE_DIR", "data"),
		PreferLocal:  getenvBool("PREFER_LOCAL_STORAGE", false),
		CatalogPath:  os.Getenv("CATALOG_PATH"),
		CacheTTL:     time.Duration(getenvInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
		FetchTimeout: time.Duration(getenvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
		MaxRedirects: getenvInt("MAX_REDIRECTS", 10),
		ScanWorkers:  getenvInt("SCAN_WORKERS", 5),
		MaxBodyBytes: int64(getenvInt("MAX_BODY_BYTES", 512*1024)),
	}
	if cfg.DatabaseURL == "" && !cfg.PreferLocal {
		// Not fatal; storage selection falls back to the file-backed store.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
