package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvGatewayURL = "ALARMS_GATEWAY_URL"
	EnvLogLevel   = "ALARMS_LOG_LEVEL"
	EnvHTTPAddr   = "ALARMS_HTTP_ADDR"
	EnvNatsURL    = "ALARMS_NATS_URL"
)

// LoadDotEnv loads the first readable .env file from paths into the process
// environment. Variables already set are not replaced. It reports the file
// used, or an empty string when none was found.
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}

	return ""
}

// ApplyEnv overrides settings with non-empty environment variables.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := os.Getenv(EnvGatewayURL); v != "" {
		cfg.Gateway.URL = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv(EnvHTTPAddr); v != "" {
		cfg.HTTPAddress = v
	}

	if v := os.Getenv(EnvNatsURL); v != "" {
		cfg.Notify.NatsURL = v
	}
}
