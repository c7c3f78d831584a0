package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Defaults for requests that leave fields out
	Scale    string
	Tempo    float64 // BPM
	Duration float64 // seconds
	Seed     uint64  // 0 draws a fresh seed per session

	// Voices and scales
	AssetsDir  string // empty synthesizes every voice
	ScalesFile string // optional YAML with extra maqamat

	// Exports
	ExportDir   string
	ExportScope string

	// Session timing
	StopGuard      time.Duration
	CaptureTimeout time.Duration
	Tick           time.Duration

	// Local playback on the host audio device
	Speaker bool

	// Optional LLM titles
	OllamaURL   string
	OllamaModel string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("AMBIENCE_PORT", 8080),

		Scale:    envStr("AMBIENCE_SCALE", "rast"),
		Tempo:    envFloat("AMBIENCE_TEMPO", 80),
		Duration: envFloat("AMBIENCE_DURATION", 60),
		Seed:     envUint("AMBIENCE_SEED", 0),

		AssetsDir:  envStr("AMBIENCE_ASSETS_DIR", ""),
		ScalesFile: envStr("AMBIENCE_SCALES_FILE", ""),

		ExportDir:   envStr("AMBIENCE_EXPORT_DIR", "exports"),
		ExportScope: envStr("AMBIENCE_EXPORT_SCOPE", "maqam_ambience"),

		StopGuard:      envMillis("AMBIENCE_STOP_GUARD_MS", 500),
		CaptureTimeout: envMillis("AMBIENCE_CAPTURE_TIMEOUT_MS", 3000),
		Tick:           envMillis("AMBIENCE_TICK_MS", 10),

		Speaker: envBool("AMBIENCE_SPEAKER", false),

		OllamaURL:   envStr("OLLAMA_URL", ""),
		OllamaModel: envStr("OLLAMA_MODEL", "qwen3:8b"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envMillis reads a whole number of milliseconds. Negative values fall
// back to the default.
func envMillis(key string, fallbackMS int) time.Duration {
	ms := envInt(key, fallbackMS)
	if ms < 0 {
		ms = fallbackMS
	}
	return time.Duration(ms) * time.Millisecond
}
