package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Relay targets
	WebhookURL string
	UploadURL  string
	UploadKey  string

	// Where per-uid credential databases live
	DataDir string

	// Registration store: "memory" o "firestore"
	StorageBackend string
	GCPProjectID   string

	// License/quota database (MySQL DSN). Empty disables quota checks.
	MySQLDSN string

	JWTSecret string

	FFmpegBin string

	QRTimeout time.Duration

	// Print pairing QR codes to the terminal (dev)
	DebugQR bool
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load reads all env vars and builds the config
func Load() *Config {
	cfg := &Config{
		Port: getEnv("WAGATE_PORT", "3000"),

		WebhookURL: getEnv("WAGATE_WEBHOOK_URL", ""),
		UploadURL:  getEnv("WAGATE_UPLOAD_URL", ""),
		UploadKey:  getEnv("WAGATE_UPLOAD_KEY", ""),

		DataDir: getEnv("WAGATE_DATA_DIR", ".wagate"),

		StorageBackend: getEnv("WAGATE_STORAGE_BACKEND", "memory"),
		GCPProjectID:   getEnv("WAGATE_GCP_PROJECT", ""),

		MySQLDSN: getEnv("WAGATE_MYSQL_DSN", ""),

		JWTSecret: getEnv("WAGATE_JWT_SECRET", ""),

		FFmpegBin: getEnv("WAGATE_FFMPEG_BIN", "ffmpeg"),

		QRTimeout: getDurationEnv("WAGATE_QR_TIMEOUT", 60*time.Second),

		DebugQR: getBoolEnv("WAGATE_DEBUG_QR", false),
	}

	if cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		log.Fatal("WAGATE_GCP_PROJECT must be set for the firestore backend")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("WAGATE_JWT_SECRET must be set")
	}

	return cfg
}
