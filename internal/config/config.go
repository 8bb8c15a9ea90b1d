package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// Config holds environment-driven configuration.
type Config struct {
	Addr string

	// StoreBackend is one of memory, file, postgres or nats.
	StoreBackend string
	StoreFile    string
	DatabaseURL  string
	KVTable      string
	NATSURL      string
	NATSBucket   string
	// CacheFrontSize enables an LRU in front of the store when > 0.
	CacheFrontSize int

	JWTSecret      string
	LogLevel       log.Level
	RecentMaxItems int
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		Addr:           getenv("ADDR", ":8080"),
		StoreBackend:   strings.ToLower(getenv("STORE_BACKEND", "memory")),
		StoreFile:      getenv("STORE_FILE", "data/recently-viewed.json"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		KVTable:        getenv("KV_TABLE", "kv_store"),
		NATSURL:        os.Getenv("NATS_URL"),
		NATSBucket:     getenv("NATS_BUCKET", "recently_viewed"),
		CacheFrontSize: getint("CACHE_FRONT_SIZE", 0),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       ParseLevel(os.Getenv("LOG_LEVEL")),
		RecentMaxItems: getint("RECENT_MAX_ITEMS", 10),
	}
}

// ParseLevel maps a LOG_LEVEL value to a fiber log level. Unknown values
// fall back to info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "fatal":
		return log.LevelFatal
	case "panic":
		return log.LevelPanic
	default:
		return log.LevelInfo
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Warnf("config: ignoring %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
